package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	pfirestore "github.com/acrylicworks/api/internal/platform/firestore"
)

const cartCollection = "carts"

type cartDocument struct {
	Currency  string             `firestore:"currency"`
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string         `firestore:"id"`
	ProductID string         `firestore:"productId"`
	Quantity  int            `firestore:"quantity"`
	UploadIDs []string       `firestore:"uploadIds,omitempty"`
	Options   map[string]any `firestore:"options,omitempty"`
	AddedAt   time.Time      `firestore:"addedAt"`
	UpdatedAt time.Time      `firestore:"updatedAt"`
}

// CartRepository persists one cart document per user, keyed by user id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
	}, nil
}

// GetCart returns the stored cart or an empty cart when none exists yet.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(userID), nil
}

// SaveCart overwrites the cart document.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}
	doc := cartToDocument(cart)
	if err := r.base.Set(ctx, userID, doc); err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(userID), nil
}

// ClearCart deletes the cart. Clearing a missing cart is not an error.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	err := r.base.Delete(ctx, strings.TrimSpace(userID))
	if pfirestore.IsNotFound(err) {
		return nil
	}
	return err
}

func cartToDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UploadIDs: cloneStrings(item.UploadIDs),
			Options:   cloneAnyMap(item.Options),
			AddedAt:   item.AddedAt.UTC(),
			UpdatedAt: item.UpdatedAt.UTC(),
		})
	}
	return doc
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	cart := domain.Cart{
		UserID:    userID,
		Currency:  d.Currency,
		UpdatedAt: d.UpdatedAt,
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UploadIDs: cloneStrings(item.UploadIDs),
			Options:   cloneAnyMap(item.Options),
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return cart
}
