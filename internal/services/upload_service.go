package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/acrylicworks/api/internal/domain"
	pstorage "github.com/acrylicworks/api/internal/platform/storage"
	"github.com/acrylicworks/api/internal/platform/textutil"
	"github.com/acrylicworks/api/internal/repositories"
)

const (
	uploadIDPrefix            = "upl_"
	defaultUploadMaxSize      = int64(50 * 1024 * 1024) // 50 MiB
	defaultUploadURLTTL       = 15 * time.Minute
	defaultStalePendingUpload = 24 * time.Hour
	defaultReviewQueueLimit   = 50
	maxReviewQueueLimit       = 200
	defaultPurgeLimit         = 100
)

var (
	// ErrUploadInvalidInput signals the caller provided invalid data.
	ErrUploadInvalidInput = errors.New("upload: invalid input")
	// ErrUploadNotFound indicates the upload could not be located.
	ErrUploadNotFound = errors.New("upload: not found")
	// ErrUploadPermissionDenied indicates the caller acted on another user's upload or order.
	ErrUploadPermissionDenied = errors.New("upload: permission denied")
	// ErrUploadNotDeletable indicates the upload is already linked to an order.
	ErrUploadNotDeletable = errors.New("upload: not deletable")
	// ErrUploadInvalidTransition indicates the requested review status change is not permitted.
	ErrUploadInvalidTransition = errors.New("upload: invalid status transition")
	// ErrUploadConflict indicates a concurrent modification.
	ErrUploadConflict = errors.New("upload: conflict")
)

var uploadStateTransitions = map[UploadStatus][]UploadStatus{
	domain.UploadStatusPending:   {domain.UploadStatusSubmitted},
	domain.UploadStatusSubmitted: {domain.UploadStatusReviewing, domain.UploadStatusApproved, domain.UploadStatusRejected},
	domain.UploadStatusReviewing: {domain.UploadStatusApproved, domain.UploadStatusRejected},
	domain.UploadStatusRejected:  {domain.UploadStatusReviewing},
}

// orderStatusesAcceptingUploads lists the order states in which customers may still attach files.
var orderStatusesAcceptingUploads = []OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusAwaitingPayment,
	domain.OrderStatusPaid,
	domain.OrderStatusRevisionRequired,
	domain.OrderStatusReviewing,
}

// UploadURLSigner issues presigned storage URLs.
type UploadURLSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts pstorage.SignedURLOptions) (pstorage.SignedURLResult, error)
}

// UploadObjectRemover deletes stored objects. Removing a missing object must succeed.
type UploadObjectRemover interface {
	DeleteObject(ctx context.Context, bucket, object string) error
}

// UploadServiceDeps bundles collaborators required to construct the upload service.
type UploadServiceDeps struct {
	Uploads          repositories.UploadRepository
	Orders           repositories.OrderRepository
	Coordinator      UploadReviewCoordinator
	Signer           UploadURLSigner
	Objects          UploadObjectRemover
	Bucket           string
	MaxSize          int64
	AllowedMimeTypes []string
	URLTTL           time.Duration
	StaleAfter       time.Duration
	UnitOfWork       repositories.UnitOfWork
	Clock            func() time.Time
	IDGenerator      func() string
	Events           OrderEventPublisher
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type uploadService struct {
	uploads      repositories.UploadRepository
	orders       repositories.OrderRepository
	coordinator  UploadReviewCoordinator
	signer       UploadURLSigner
	objects      UploadObjectRemover
	bucket       string
	maxSize      int64
	allowedTypes []string
	urlTTL       time.Duration
	staleAfter   time.Duration
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	events       orderEventEmitter
	logger       func(context.Context, string, map[string]any)
}

var _ UploadService = (*uploadService)(nil)

// NewUploadService wires dependencies into a concrete UploadService implementation.
func NewUploadService(deps UploadServiceDeps) (UploadService, error) {
	if deps.Uploads == nil {
		return nil, errors.New("upload service: upload repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("upload service: order repository is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("upload service: coordinator is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("upload service: url signer is required")
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errors.New("upload service: bucket is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	maxSize := deps.MaxSize
	if maxSize <= 0 {
		maxSize = defaultUploadMaxSize
	}
	ttl := deps.URLTTL
	if ttl <= 0 {
		ttl = defaultUploadURLTTL
	}
	staleAfter := deps.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStalePendingUpload
	}

	allowed := make([]string, 0, len(deps.AllowedMimeTypes))
	for _, mime := range deps.AllowedMimeTypes {
		if trimmed := strings.ToLower(strings.TrimSpace(mime)); trimmed != "" {
			allowed = append(allowed, trimmed)
		}
	}

	return &uploadService{
		uploads:      deps.Uploads,
		orders:       deps.Orders,
		coordinator:  deps.Coordinator,
		signer:       deps.Signer,
		objects:      deps.Objects,
		bucket:       bucket,
		maxSize:      maxSize,
		allowedTypes: allowed,
		urlTTL:       ttl,
		staleAfter:   staleAfter,
		unitOfWork:   unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: orderEventEmitter{publisher: deps.Events, logger: logger},
		logger: logger,
	}, nil
}

func (s *uploadService) RequestUpload(ctx context.Context, cmd RequestUploadCommand) (UploadTicket, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UploadTicket{}, fmt.Errorf("%w: user id is required", ErrUploadInvalidInput)
	}
	file, err := s.validateFile(cmd.FileName, cmd.MimeType, cmd.Size)
	if err != nil {
		return UploadTicket{}, err
	}

	uploadID := uploadIDPrefix + s.newID()
	key, err := pstorage.BuildObjectPath(pstorage.PurposeCustomerUpload, pstorage.PathParams{
		UserID:   userID,
		UploadID: uploadID,
		FileName: file.name,
	})
	if err != nil {
		return UploadTicket{}, fmt.Errorf("%w: %v", ErrUploadInvalidInput, err)
	}

	target, err := s.signUpload(ctx, key, file)
	if err != nil {
		return UploadTicket{}, err
	}

	now := s.now()
	upload := Upload{
		ID:         uploadID,
		UserID:     userID,
		FileName:   file.name,
		StorageKey: key,
		URL:        pstorage.ObjectURL(s.bucket, key),
		MimeType:   file.mimeType,
		Size:       file.size,
		UploadType: normalizeUploadType(cmd.UploadType),
		Status:     domain.UploadStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.uploads.Insert(ctx, upload); err != nil {
		return UploadTicket{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "uploads.requested", map[string]any{
		"uploadId": upload.ID,
		"userId":   userID,
		"mimeType": file.mimeType,
		"size":     file.size,
	})
	return UploadTicket{Upload: upload, Target: target}, nil
}

// Link attaches pending uploads to an order item. Missing uploads and uploads owned by someone else
// abort the whole batch; uploads that are no longer pending are skipped.
func (s *uploadService) Link(ctx context.Context, cmd LinkUploadsCommand) (LinkUploadsResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	orderID := strings.TrimSpace(cmd.OrderID)
	itemID := strings.TrimSpace(cmd.OrderItemID)
	if userID == "" {
		return LinkUploadsResult{}, fmt.Errorf("%w: user id is required", ErrUploadInvalidInput)
	}
	if orderID == "" {
		return LinkUploadsResult{}, fmt.Errorf("%w: order id is required", ErrUploadInvalidInput)
	}
	ids := uniqueIDs(cmd.UploadIDs)
	if len(ids) == 0 {
		return LinkUploadsResult{}, fmt.Errorf("%w: at least one upload id is required", ErrUploadInvalidInput)
	}

	now := s.now()
	var result LinkUploadsResult
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		result = LinkUploadsResult{}

		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order %s belongs to another user", ErrUploadPermissionDenied, orderID)
		}
		if !slices.Contains(orderStatusesAcceptingUploads, order.Status) {
			return fmt.Errorf("%w: order %s no longer accepts uploads (status %s)", ErrUploadInvalidInput, orderID, order.Status)
		}
		if err := validateQuantityIndex(order, itemID, cmd.QuantityIndex); err != nil {
			return err
		}

		linked := make([]Upload, 0, len(ids))
		for _, id := range ids {
			upload, err := s.uploads.FindByID(txCtx, id)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			ok, err := checkLinkable(upload, userID)
			if err != nil {
				return err
			}
			if !ok {
				result.Skipped = append(result.Skipped, id)
				continue
			}
			upload.OrderID = valuePtr(orderID)
			upload.OrderItemID = optionalString(itemID)
			upload.QuantityIndex = cmd.QuantityIndex
			upload.Status = domain.UploadStatusSubmitted
			upload.UpdatedAt = now
			linked = append(linked, upload)
		}

		outcome, err := s.coordinator.AfterLink(txCtx, orderID, linked)
		if err != nil {
			return err
		}
		for _, upload := range linked {
			if err := s.uploads.LinkToOrderItem(txCtx, repositories.UploadLink{
				UploadID:      upload.ID,
				OrderID:       orderID,
				OrderItemID:   itemID,
				QuantityIndex: cmd.QuantityIndex,
				Status:        domain.UploadStatusSubmitted,
				UpdatedAt:     now,
			}); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		result.Linked = len(linked)
		result.Outcome = outcome
		return nil
	})
	if err != nil {
		return LinkUploadsResult{}, err
	}

	s.events.outcome(ctx, result.Outcome, userID, userID, now)
	s.logger(ctx, "uploads.linked", map[string]any{
		"orderId": orderID,
		"itemId":  itemID,
		"linked":  result.Linked,
		"skipped": len(result.Skipped),
	})
	return result, nil
}

func (s *uploadService) StartReview(ctx context.Context, cmd ReviewUploadCommand) (Upload, error) {
	adminID, uploadID, err := validateReviewCommand(cmd)
	if err != nil {
		return Upload{}, err
	}

	now := s.now()
	var reviewed Upload
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		upload, err := s.uploads.FindByID(txCtx, uploadID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if upload.Status == domain.UploadStatusReviewing {
			reviewed = upload
			return nil
		}
		if err := applyUploadTransition(&upload, domain.UploadStatusReviewing, now); err != nil {
			return err
		}
		upload.ReviewerID = valuePtr(adminID)
		if err := s.uploads.Update(txCtx, upload); err != nil {
			return s.mapRepositoryError(err)
		}
		reviewed = upload
		return nil
	})
	if err != nil {
		return Upload{}, err
	}
	return reviewed, nil
}

// Approve marks the upload approved and lets the coordinator confirm the order. Approving an already
// approved upload is a no-op.
func (s *uploadService) Approve(ctx context.Context, cmd ReviewUploadCommand) (UploadReviewResult, error) {
	return s.review(ctx, cmd, domain.UploadStatusApproved, s.coordinator.AfterApprove)
}

// Reject marks the upload rejected and sends a reviewing order back for revision.
func (s *uploadService) Reject(ctx context.Context, cmd ReviewUploadCommand) (UploadReviewResult, error) {
	return s.review(ctx, cmd, domain.UploadStatusRejected, s.coordinator.AfterReject)
}

// validateQuantityIndex checks that index names a unit of the item. Order level links carry no unit.
func validateQuantityIndex(order Order, itemID string, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: quantity index must not be negative", ErrUploadInvalidInput)
	}
	if itemID == "" {
		if index != 0 {
			return fmt.Errorf("%w: quantity index needs an order item", ErrUploadInvalidInput)
		}
		return nil
	}
	for _, item := range order.Items {
		if item.ID != itemID {
			continue
		}
		if index >= item.Quantity {
			return fmt.Errorf("%w: quantity index %d out of range for item %s (quantity %d)", ErrUploadInvalidInput, index, itemID, item.Quantity)
		}
		return nil
	}
	return fmt.Errorf("%w: order item %s not found on order %s", ErrUploadInvalidInput, itemID, order.ID)
}

// currentOutcome reports the linked order as it stands, for reviews that change nothing.
func (s *uploadService) currentOutcome(ctx context.Context, upload Upload) (CoordinatorOutcome, error) {
	if upload.OrderID == nil || strings.TrimSpace(*upload.OrderID) == "" {
		return CoordinatorOutcome{}, nil
	}
	order, err := s.orders.FindByID(ctx, strings.TrimSpace(*upload.OrderID))
	if err != nil {
		return CoordinatorOutcome{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	return CoordinatorOutcome{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: order.Status,
		NewStatus:      order.Status,
	}, nil
}

func (s *uploadService) review(ctx context.Context, cmd ReviewUploadCommand, target UploadStatus, after func(context.Context, Upload) (CoordinatorOutcome, error)) (UploadReviewResult, error) {
	adminID, uploadID, err := validateReviewCommand(cmd)
	if err != nil {
		return UploadReviewResult{}, err
	}
	notes := textutil.SanitizePlainText(cmd.Notes)

	now := s.now()
	var (
		result UploadReviewResult
		noop   bool
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		upload, err := s.uploads.FindByID(txCtx, uploadID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if target == domain.UploadStatusApproved && upload.Status == domain.UploadStatusApproved {
			outcome, err := s.currentOutcome(txCtx, upload)
			if err != nil {
				return err
			}
			result = UploadReviewResult{Upload: upload, Outcome: outcome}
			noop = true
			return nil
		}
		if err := applyUploadTransition(&upload, target, now); err != nil {
			return err
		}
		upload.ReviewerID = valuePtr(adminID)
		upload.ReviewedAt = valuePtr(now)
		if notes != "" {
			upload.AdminNotes = valuePtr(notes)
		}

		outcome, err := after(txCtx, upload)
		if err != nil {
			return err
		}
		if err := s.uploads.Update(txCtx, upload); err != nil {
			return s.mapRepositoryError(err)
		}
		result = UploadReviewResult{Upload: upload, Outcome: outcome}
		noop = false
		return nil
	})
	if err != nil {
		return UploadReviewResult{}, err
	}
	if noop {
		return result, nil
	}

	s.events.outcome(ctx, result.Outcome, result.Upload.UserID, adminID, now)
	s.logger(ctx, "uploads.reviewed", map[string]any{
		"uploadId": uploadID,
		"status":   string(target),
		"adminId":  adminID,
		"order":    result.Outcome.String(),
	})
	return result, nil
}

// Resubmit replaces the file of a rejected upload and puts it back into review.
func (s *uploadService) Resubmit(ctx context.Context, cmd ResubmitUploadCommand) (UploadResubmission, error) {
	userID := strings.TrimSpace(cmd.UserID)
	uploadID := strings.TrimSpace(cmd.UploadID)
	if userID == "" || uploadID == "" {
		return UploadResubmission{}, fmt.Errorf("%w: user id and upload id are required", ErrUploadInvalidInput)
	}
	file, err := s.validateFile(cmd.FileName, cmd.MimeType, cmd.Size)
	if err != nil {
		return UploadResubmission{}, err
	}

	current, err := s.uploads.FindByID(ctx, uploadID)
	if err != nil {
		return UploadResubmission{}, s.mapRepositoryError(err)
	}
	if err := checkResubmittable(current, userID); err != nil {
		return UploadResubmission{}, err
	}

	key, err := pstorage.BuildObjectPath(pstorage.PurposeUploadRevision, pstorage.PathParams{
		UserID:    userID,
		UploadID:  uploadID,
		VersionID: s.newID(),
		FileName:  file.name,
	})
	if err != nil {
		return UploadResubmission{}, fmt.Errorf("%w: %v", ErrUploadInvalidInput, err)
	}
	target, err := s.signUpload(ctx, key, file)
	if err != nil {
		return UploadResubmission{}, err
	}

	now := s.now()
	var (
		result      UploadResubmission
		previousKey string
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		upload, err := s.uploads.FindByID(txCtx, uploadID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := checkResubmittable(upload, userID); err != nil {
			return err
		}
		previousKey = upload.StorageKey

		if err := applyUploadTransition(&upload, domain.UploadStatusReviewing, now); err != nil {
			return err
		}
		upload.FileName = file.name
		upload.MimeType = file.mimeType
		upload.Size = file.size
		upload.StorageKey = key
		upload.URL = pstorage.ObjectURL(s.bucket, key)
		upload.ReviewerID = nil
		upload.ReviewedAt = nil

		outcome, err := s.coordinator.AfterResubmit(txCtx, upload)
		if err != nil {
			return err
		}
		if err := s.uploads.Update(txCtx, upload); err != nil {
			return s.mapRepositoryError(err)
		}
		result = UploadResubmission{
			Ticket:  UploadTicket{Upload: upload, Target: target},
			Outcome: outcome,
		}
		return nil
	})
	if err != nil {
		return UploadResubmission{}, err
	}

	s.removeObject(ctx, previousKey, "uploads.resubmit.cleanup_failed")
	s.events.outcome(ctx, result.Outcome, userID, userID, now)
	s.logger(ctx, "uploads.resubmitted", map[string]any{
		"uploadId": uploadID,
		"order":    result.Outcome.String(),
	})
	return result, nil
}

// Delete removes a pending upload together with its stored file.
func (s *uploadService) Delete(ctx context.Context, cmd DeleteUploadCommand) error {
	userID := strings.TrimSpace(cmd.UserID)
	uploadID := strings.TrimSpace(cmd.UploadID)
	if userID == "" || uploadID == "" {
		return fmt.Errorf("%w: user id and upload id are required", ErrUploadInvalidInput)
	}

	var storageKey string
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		upload, err := s.uploads.FindByID(txCtx, uploadID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if upload.UserID != userID {
			return fmt.Errorf("%w: upload %s belongs to another user", ErrUploadPermissionDenied, uploadID)
		}
		if upload.Status != domain.UploadStatusPending {
			return fmt.Errorf("%w: upload %s is %s", ErrUploadNotDeletable, uploadID, upload.Status)
		}
		if err := s.uploads.Delete(txCtx, uploadID); err != nil {
			return s.mapRepositoryError(err)
		}
		storageKey = upload.StorageKey
		return nil
	})
	if err != nil {
		return err
	}
	// the record is already gone; an orphaned object is logged, not returned
	s.removeObject(ctx, storageKey, "uploads.delete.cleanup_failed")
	return nil
}

func (s *uploadService) DownloadURL(ctx context.Context, cmd UploadDownloadCommand) (SignedURL, error) {
	uploadID := strings.TrimSpace(cmd.UploadID)
	if uploadID == "" {
		return SignedURL{}, fmt.Errorf("%w: upload id is required", ErrUploadInvalidInput)
	}
	upload, err := s.uploads.FindByID(ctx, uploadID)
	if err != nil {
		return SignedURL{}, s.mapRepositoryError(err)
	}

	signed, err := s.signer.SignedURL(ctx, s.bucket, upload.StorageKey, pstorage.SignedURLOptions{
		Download: &pstorage.DownloadOptions{
			Disposition: fmt.Sprintf("attachment; filename=%q", upload.FileName),
			OwnerID:     upload.UserID,
			Identity:    cmd.Identity,
		},
	})
	if err != nil {
		if errors.Is(err, pstorage.ErrDownloadDenied) {
			return SignedURL{}, fmt.Errorf("%w: upload %s", ErrUploadPermissionDenied, uploadID)
		}
		return SignedURL{}, fmt.Errorf("%w: sign download url: %v", ErrServiceUnavailable, err)
	}
	return toSignedURL(signed), nil
}

func (s *uploadService) ListOrderUploads(ctx context.Context, orderID string) ([]Upload, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrUploadInvalidInput)
	}
	uploads, err := s.uploads.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return uploads, nil
}

func (s *uploadService) ListMyUploads(ctx context.Context, userID string) ([]Upload, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrUploadInvalidInput)
	}
	uploads, err := s.uploads.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return uploads, nil
}

func (s *uploadService) ListReviewQueue(ctx context.Context, limit int) ([]Upload, error) {
	switch {
	case limit <= 0:
		limit = defaultReviewQueueLimit
	case limit > maxReviewQueueLimit:
		limit = maxReviewQueueLimit
	}
	uploads, err := s.uploads.ListByStatus(ctx, []UploadStatus{domain.UploadStatusSubmitted, domain.UploadStatusReviewing}, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return uploads, nil
}

// PurgeStalePending deletes uploads that were never linked to an order. Failures on individual
// uploads are logged and skipped so one bad object does not block the sweep.
func (s *uploadService) PurgeStalePending(ctx context.Context, cmd PurgeStaleUploadsCommand) (int, error) {
	olderThan := cmd.OlderThan
	if olderThan <= 0 {
		olderThan = s.staleAfter
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultPurgeLimit
	}

	cutoff := s.now().Add(-olderThan)
	stale, err := s.uploads.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}

	purged := 0
	for _, candidate := range stale {
		err := s.Delete(ctx, DeleteUploadCommand{UserID: candidate.UserID, UploadID: candidate.ID})
		switch {
		case err == nil:
			purged++
		case errors.Is(err, ErrUploadNotDeletable), errors.Is(err, ErrUploadNotFound):
			// linked or removed since the listing
		default:
			s.logger(ctx, "uploads.purge.failed", map[string]any{
				"uploadId": candidate.ID,
				"error":    err.Error(),
			})
		}
	}

	s.logger(ctx, "uploads.purge.completed", map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"purged":     purged,
	})
	return purged, nil
}

type uploadFile struct {
	name     string
	mimeType string
	size     int64
}

func (s *uploadService) validateFile(fileName, mimeType string, size int64) (uploadFile, error) {
	name := sanitizeFileName(fileName)
	if name == "" {
		return uploadFile{}, fmt.Errorf("%w: file name is required", ErrUploadInvalidInput)
	}
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if mime == "" {
		return uploadFile{}, fmt.Errorf("%w: mime type is required", ErrUploadInvalidInput)
	}
	if len(s.allowedTypes) > 0 && !mimeTypeAllowed(mime, s.allowedTypes) {
		return uploadFile{}, fmt.Errorf("%w: mime type %q not allowed", ErrUploadInvalidInput, mime)
	}
	if size <= 0 {
		return uploadFile{}, fmt.Errorf("%w: size must be positive", ErrUploadInvalidInput)
	}
	if size > s.maxSize {
		return uploadFile{}, fmt.Errorf("%w: size exceeds maximum (%d)", ErrUploadInvalidInput, s.maxSize)
	}
	return uploadFile{name: name, mimeType: mime, size: size}, nil
}

func (s *uploadService) signUpload(ctx context.Context, key string, file uploadFile) (SignedURL, error) {
	signed, err := s.signer.SignedURL(ctx, s.bucket, key, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			ContentType: file.mimeType,
			MaxSize:     file.size,
			ExpiresIn:   s.urlTTL,
		},
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("%w: sign upload url: %v", ErrServiceUnavailable, err)
	}
	return toSignedURL(signed), nil
}

func (s *uploadService) removeObject(ctx context.Context, key, failureEvent string) {
	if s.objects == nil || strings.TrimSpace(key) == "" {
		return
	}
	if err := s.objects.DeleteObject(ctx, s.bucket, key); err != nil {
		s.logger(ctx, failureEvent, map[string]any{
			"object": key,
			"error":  err.Error(),
		})
	}
}

func (s *uploadService) mapRepositoryError(err error) error {
	return mapRepositoryError(err, ErrUploadNotFound, ErrUploadConflict)
}

func (s *uploadService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *uploadService) now() time.Time {
	return s.clock()
}

// applyUploadTransition validates target against the upload transition table and stamps UpdatedAt.
func applyUploadTransition(upload *Upload, target UploadStatus, now time.Time) error {
	next, ok := uploadStateTransitions[upload.Status]
	if !ok || !slices.Contains(next, target) {
		return fmt.Errorf("%w: %s -> %s", ErrUploadInvalidTransition, upload.Status, target)
	}
	upload.Status = target
	upload.UpdatedAt = now
	return nil
}

// checkLinkable reports whether the upload can be linked by userID. Ownership failures are errors;
// uploads that already left pending are skipped.
func checkLinkable(upload Upload, userID string) (bool, error) {
	if upload.UserID != userID {
		return false, fmt.Errorf("%w: upload %s belongs to another user", ErrUploadPermissionDenied, upload.ID)
	}
	return upload.Status == domain.UploadStatusPending, nil
}

func checkResubmittable(upload Upload, userID string) error {
	if upload.UserID != userID {
		return fmt.Errorf("%w: upload %s belongs to another user", ErrUploadPermissionDenied, upload.ID)
	}
	if upload.Status != domain.UploadStatusRejected {
		return fmt.Errorf("%w: only rejected uploads can be resubmitted, upload is %s", ErrUploadInvalidTransition, upload.Status)
	}
	return nil
}

func validateReviewCommand(cmd ReviewUploadCommand) (string, string, error) {
	adminID := strings.TrimSpace(cmd.AdminID)
	uploadID := strings.TrimSpace(cmd.UploadID)
	if adminID == "" {
		return "", "", fmt.Errorf("%w: admin id is required", ErrUploadInvalidInput)
	}
	if uploadID == "" {
		return "", "", fmt.Errorf("%w: upload id is required", ErrUploadInvalidInput)
	}
	return adminID, uploadID, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return textutil.SanitizePlainText(base)
}

func normalizeUploadType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "artwork"
	}
	return value
}

func mimeTypeAllowed(mime string, allowed []string) bool {
	for _, candidate := range allowed {
		switch {
		case candidate == "*" || candidate == "*/*":
			return true
		case strings.HasSuffix(candidate, "/*"):
			if strings.HasPrefix(mime, strings.TrimSuffix(candidate, "*")) {
				return true
			}
		case candidate == mime:
			return true
		}
	}
	return false
}

func toSignedURL(result pstorage.SignedURLResult) SignedURL {
	return SignedURL{
		URL:       result.URL,
		Method:    result.Method,
		Headers:   result.Headers,
		ExpiresAt: result.ExpiresAt,
	}
}
