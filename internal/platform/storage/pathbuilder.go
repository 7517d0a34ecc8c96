package storage

import (
	"fmt"
	"strings"
	"sync"
)

// ObjectPurpose selects the key layout for a stored object.
type ObjectPurpose string

const (
	// PurposeCustomerUpload is the first file a customer uploads for an order item.
	PurposeCustomerUpload ObjectPurpose = "customer-upload"
	// PurposeUploadRevision is a replacement file sent after a rejection.
	PurposeUploadRevision ObjectPurpose = "upload-revision"
	// PurposeProductImage is a catalog image managed from the back office.
	PurposeProductImage ObjectPurpose = "product-image"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	UserID    string
	UploadID  string
	VersionID string
	ProductID string
	FileName  string
}

// PathBuilder composes the object path for a given purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[ObjectPurpose]PathBuilder{
		PurposeCustomerUpload: buildCustomerUploadPath,
		PurposeUploadRevision: buildUploadRevisionPath,
		PurposeProductImage:   buildProductImagePath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose ObjectPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose ObjectPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported object purpose %q", purpose)
	}
	return builder(params)
}

// ObjectURL returns the gs:// location of an object.
func ObjectURL(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", strings.TrimSpace(bucket), strings.TrimPrefix(strings.TrimSpace(object), "/"))
}

func buildCustomerUploadPath(params PathParams) (string, error) {
	userID, err := validateSegment("userID", params.UserID)
	if err != nil {
		return "", err
	}
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("uploads/%s/%s/%s", userID, uploadID, fileName), nil
}

func buildUploadRevisionPath(params PathParams) (string, error) {
	userID, err := validateSegment("userID", params.UserID)
	if err != nil {
		return "", err
	}
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	versionID, err := validateSegment("versionID", params.VersionID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("uploads/%s/%s/revisions/%s/%s", userID, uploadID, versionID, fileName), nil
}

func buildProductImagePath(params PathParams) (string, error) {
	productID, err := validateSegment("productID", params.ProductID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("catalog/products/%s/%s", productID, fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
