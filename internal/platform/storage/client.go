package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/acrylicworks/api/internal/platform/auth"
)

const (
	defaultUploadURLExpiry   = 15 * time.Minute
	defaultDownloadURLExpiry = 5 * time.Minute
	maxURLExpiry             = 60 * time.Minute
)

var (
	errNoSigner           = errors.New("storage: signer is required")
	errInvalidOptions     = errors.New("storage: exactly one of upload or download options must be provided")
	errInvalidBucket      = errors.New("storage: bucket name is required")
	errInvalidObject      = errors.New("storage: object name is required")
	errContentTypeMissing = errors.New("storage: content type is required for uploads")
	errMD5Invalid         = errors.New("storage: content MD5 must be base64 encoded")
	errExpiryTooLong      = errors.New("storage: expiry exceeds permitted maximum")
)

// Client issues V4 signed URLs for customer files.
type Client struct {
	signer Signer
	scheme storage.SigningScheme
	now    func() time.Time
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a signed URL client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	client := &Client{
		signer: signer,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SignedURLOptions selects an upload or a download URL. Exactly one must be set.
type SignedURLOptions struct {
	Upload   *UploadOptions
	Download *DownloadOptions
}

// UploadOptions describe the PUT the customer will perform.
type UploadOptions struct {
	ContentType string
	ContentMD5  string
	// MaxSize is enforced by GCS through the x-goog-content-length-range header.
	MaxSize   int64
	ExpiresIn time.Duration
}

// DownloadOptions describe a GET and who may perform it.
type DownloadOptions struct {
	ExpiresIn    time.Duration
	Disposition  string
	ResponseType string
	OwnerID      string
	Identity     *auth.Identity
}

// SignedURLResult describes the generated signed URL. Headers must be sent verbatim with the request.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// SignedURL creates a signed URL according to the provided options. Downloads are authorised
// against the owner before anything is signed and fail with ErrDownloadDenied.
func (c *Client) SignedURL(ctx context.Context, bucket, object string, opts SignedURLOptions) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURLResult{}, errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	switch {
	case opts.Upload != nil && opts.Download == nil:
		return c.signUpload(ctx, bucket, object, *opts.Upload)
	case opts.Download != nil && opts.Upload == nil:
		return c.signDownload(ctx, bucket, object, *opts.Download)
	default:
		return SignedURLResult{}, errInvalidOptions
	}
}

func (c *Client) signUpload(ctx context.Context, bucket, object string, opts UploadOptions) (SignedURLResult, error) {
	contentType := strings.TrimSpace(opts.ContentType)
	if contentType == "" {
		return SignedURLResult{}, errContentTypeMissing
	}
	md5 := strings.TrimSpace(opts.ContentMD5)
	if md5 != "" {
		if _, err := base64.StdEncoding.DecodeString(md5); err != nil {
			return SignedURLResult{}, errMD5Invalid
		}
	}
	expiry, err := resolveExpiry(opts.ExpiresIn, defaultUploadURLExpiry)
	if err != nil {
		return SignedURLResult{}, err
	}

	headers := map[string]string{"Content-Type": contentType}
	var extHeaders []string
	if md5 != "" {
		headers["Content-MD5"] = md5
	}
	if opts.MaxSize > 0 {
		sizeRange := fmt.Sprintf("0,%d", opts.MaxSize)
		extHeaders = append(extHeaders, "x-goog-content-length-range:"+sizeRange)
		headers["x-goog-content-length-range"] = sizeRange
	}

	urlOpts := c.baseOptions(ctx, http.MethodPut, expiry)
	urlOpts.ContentType = contentType
	urlOpts.MD5 = md5
	urlOpts.Headers = extHeaders
	signed, err := storage.SignedURL(bucket, object, urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURLResult{
		URL:       signed,
		Method:    http.MethodPut,
		ExpiresAt: urlOpts.Expires,
		Headers:   headers,
	}, nil
}

func (c *Client) signDownload(ctx context.Context, bucket, object string, opts DownloadOptions) (SignedURLResult, error) {
	if err := CanDownload(opts.Identity, opts.OwnerID); err != nil {
		return SignedURLResult{}, err
	}
	expiry, err := resolveExpiry(opts.ExpiresIn, defaultDownloadURLExpiry)
	if err != nil {
		return SignedURLResult{}, err
	}

	urlOpts := c.baseOptions(ctx, http.MethodGet, expiry)
	query := url.Values{}
	if opts.Disposition != "" {
		query.Set("response-content-disposition", opts.Disposition)
	}
	if opts.ResponseType != "" {
		query.Set("response-content-type", opts.ResponseType)
	}
	if len(query) > 0 {
		urlOpts.QueryParameters = query
	}
	signed, err := storage.SignedURL(bucket, object, urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURLResult{
		URL:       signed,
		Method:    http.MethodGet,
		ExpiresAt: urlOpts.Expires,
	}, nil
}

func (c *Client) baseOptions(ctx context.Context, method string, expiry time.Duration) *storage.SignedURLOptions {
	return &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		Method:         method,
		Expires:        c.now().Add(expiry),
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	}
}

func resolveExpiry(requested, fallback time.Duration) (time.Duration, error) {
	if requested <= 0 {
		return fallback, nil
	}
	if requested > maxURLExpiry {
		return 0, errExpiryTooLong
	}
	return requested, nil
}
