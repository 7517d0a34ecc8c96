package ads

import (
	"context"
	"fmt"
	"strings"
)

// Client talks to one ads platform.
type Client interface {
	Platform() Platform
	List(ctx context.Context) ([]Campaign, error)
	Create(ctx context.Context, campaign Campaign) (string, error)
	Pause(ctx context.Context, campaignID string) error
	Sync(ctx context.Context, campaigns []Campaign) error
}

// NewClient returns the client for p. Both platforms validate input and then report
// ErrNotImplemented until their marketing APIs are wired.
func NewClient(p Platform) (Client, error) {
	if _, err := ParsePlatform(string(p)); err != nil {
		return nil, err
	}
	return &pendingClient{platform: p}, nil
}

type pendingClient struct {
	platform Platform
}

func (c *pendingClient) Platform() Platform { return c.platform }

func (c *pendingClient) List(ctx context.Context) ([]Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, c.notImplemented("list")
}

func (c *pendingClient) Create(ctx context.Context, campaign Campaign) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.accepts(campaign); err != nil {
		return "", err
	}
	return "", c.notImplemented("create")
}

func (c *pendingClient) Pause(ctx context.Context, campaignID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(campaignID) == "" {
		return fmt.Errorf("%w: campaign id is required", ErrInvalidCampaign)
	}
	return c.notImplemented("pause")
}

func (c *pendingClient) Sync(ctx context.Context, campaigns []Campaign) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, campaign := range campaigns {
		if err := c.accepts(campaign); err != nil {
			return err
		}
	}
	return c.notImplemented("sync")
}

func (c *pendingClient) accepts(campaign Campaign) error {
	if err := campaign.Validate(); err != nil {
		return err
	}
	if campaign.Platform != c.platform {
		return fmt.Errorf("%w: %s targets %s, not %s", ErrInvalidCampaign, campaign.Name, campaign.Platform, c.platform)
	}
	return nil
}

func (c *pendingClient) notImplemented(op string) error {
	return fmt.Errorf("%s %s: %w", c.platform, op, ErrNotImplemented)
}
