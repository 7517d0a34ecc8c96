// Package ads manages storefront ad campaigns on third-party platforms. Only campaign file
// parsing and validation exist today; platform API calls report ErrNotImplemented.
package ads

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Platform identifies an ads network.
type Platform string

const (
	PlatformMeta   Platform = "meta"
	PlatformGoogle Platform = "google"
)

var (
	// ErrNotImplemented is returned by every platform operation.
	ErrNotImplemented = errors.New("ads: platform integration not implemented")
	// ErrInvalidCampaign marks validation failures.
	ErrInvalidCampaign = errors.New("ads: invalid campaign")
	// ErrUnknownPlatform is returned for platforms other than meta and google.
	ErrUnknownPlatform = errors.New("ads: unknown platform")
)

// ParsePlatform normalises user input.
func ParsePlatform(raw string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(raw))) {
	case PlatformMeta:
		return PlatformMeta, nil
	case PlatformGoogle:
		return PlatformGoogle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, raw)
	}
}

// File is the YAML document read by adsctl.
type File struct {
	Version   string     `yaml:"version"`
	Campaigns []Campaign `yaml:"campaigns"`
}

// Campaign describes one campaign promoting catalog products.
type Campaign struct {
	Name        string   `yaml:"name"`
	Platform    Platform `yaml:"platform"`
	Objective   string   `yaml:"objective"`
	DailyBudget int64    `yaml:"daily_budget"`
	Currency    string   `yaml:"currency"`
	StartDate   string   `yaml:"start_date"`
	EndDate     string   `yaml:"end_date"`
	ProductIDs  []string `yaml:"products"`
	Audience    Audience `yaml:"audience"`
}

// Audience narrows who sees the campaign.
type Audience struct {
	Countries []string `yaml:"countries"`
	AgeMin    int      `yaml:"age_min"`
	AgeMax    int      `yaml:"age_max"`
}

// LoadFile reads and validates a campaign file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read campaign file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a campaign file, applies defaults and validates every campaign.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse campaign yaml: %w", err)
	}
	if f.Version == "" {
		f.Version = "1"
	}
	if len(f.Campaigns) == 0 {
		return nil, fmt.Errorf("%w: file declares no campaigns", ErrInvalidCampaign)
	}

	seen := make(map[string]struct{}, len(f.Campaigns))
	var errs []error
	for i := range f.Campaigns {
		c := &f.Campaigns[i]
		c.normalise()
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("campaign %d: %w", i+1, err))
			continue
		}
		if _, dup := seen[c.Name]; dup {
			errs = append(errs, fmt.Errorf("campaign %d: %w: duplicate name %q", i+1, ErrInvalidCampaign, c.Name))
		}
		seen[c.Name] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &f, nil
}

// ForPlatform returns the campaigns targeting p.
func (f *File) ForPlatform(p Platform) []Campaign {
	if f == nil {
		return nil
	}
	var out []Campaign
	for _, c := range f.Campaigns {
		if c.Platform == p {
			out = append(out, c)
		}
	}
	return out
}

func (c *Campaign) normalise() {
	c.Name = strings.TrimSpace(c.Name)
	c.Platform = Platform(strings.ToLower(strings.TrimSpace(string(c.Platform))))
	c.Objective = strings.ToLower(strings.TrimSpace(c.Objective))
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	for i, country := range c.Audience.Countries {
		c.Audience.Countries[i] = strings.ToUpper(strings.TrimSpace(country))
	}
}

// Validate reports the first problem found in the campaign.
func (c Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCampaign)
	}
	if _, err := ParsePlatform(string(c.Platform)); err != nil {
		return err
	}
	if c.DailyBudget <= 0 {
		return fmt.Errorf("%w: %s: daily_budget must be positive", ErrInvalidCampaign, c.Name)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("%w: %s: currency must be an ISO 4217 code", ErrInvalidCampaign, c.Name)
	}
	start, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return fmt.Errorf("%w: %s: start_date must be YYYY-MM-DD", ErrInvalidCampaign, c.Name)
	}
	if c.EndDate != "" {
		end, err := time.Parse(dateLayout, c.EndDate)
		if err != nil {
			return fmt.Errorf("%w: %s: end_date must be YYYY-MM-DD", ErrInvalidCampaign, c.Name)
		}
		if !end.After(start) {
			return fmt.Errorf("%w: %s: end_date must be after start_date", ErrInvalidCampaign, c.Name)
		}
	}
	if len(c.ProductIDs) == 0 {
		return fmt.Errorf("%w: %s: at least one product is required", ErrInvalidCampaign, c.Name)
	}
	a := c.Audience
	if a.AgeMin < 0 || a.AgeMax < 0 || (a.AgeMax != 0 && a.AgeMin > a.AgeMax) {
		return fmt.Errorf("%w: %s: audience age range is invalid", ErrInvalidCampaign, c.Name)
	}
	return nil
}
