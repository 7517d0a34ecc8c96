package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Objects manages stored customer files.
type Objects struct {
	client *gcs.Client
}

// NewObjects constructs Objects backed by the provided Cloud Storage client.
func NewObjects(client *gcs.Client) (*Objects, error) {
	if client == nil {
		return nil, errors.New("storage objects: client is required")
	}
	return &Objects{client: client}, nil
}

// DeleteObject removes bucket/object. A missing object is not an error.
func (o *Objects) DeleteObject(ctx context.Context, bucket, object string) error {
	if o == nil || o.client == nil {
		return errors.New("storage objects: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return errors.New("storage objects: bucket and object must be provided")
	}
	err := o.client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

// Exists reports whether bucket/object has been written.
func (o *Objects) Exists(ctx context.Context, bucket, object string) (bool, error) {
	if o == nil || o.client == nil {
		return false, errors.New("storage objects: client is not initialised")
	}
	_, err := o.client.Bucket(strings.TrimSpace(bucket)).Object(strings.TrimSpace(object)).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gcs.ErrObjectNotExist):
		return false, nil
	default:
		return false, err
	}
}
