package sqlstore

import (
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
)

type orderModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	OrderNumber     string `gorm:"size:64;uniqueIndex"`
	UserID          string `gorm:"size:128;index:idx_orders_user_created,priority:1"`
	Status          string `gorm:"size:32;index"`
	Currency        string `gorm:"size:8"`
	Subtotal        int64
	Tax             int64
	ShippingFee     int64
	Total           int64
	Items           []domain.OrderItem `gorm:"type:text;serializer:json"`
	ShippingAddress *domain.Address    `gorm:"type:text;serializer:json"`
	PaymentMethod   string             `gorm:"size:64"`
	PaymentIntentID *string            `gorm:"size:128;uniqueIndex"`
	TrackingNumber  *string
	Carrier         *string
	Notes           *string
	AdminNotes      *string
	CancelReason    *string
	Metadata        map[string]any `gorm:"type:text;serializer:json"`
	CreatedAt       time.Time      `gorm:"autoCreateTime:false;index:idx_orders_user_created,priority:2"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime:false"`
	PaidAt          *time.Time
	ConfirmedAt     *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

func (orderModel) TableName() string { return "orders" }

type uploadModel struct {
	ID            string  `gorm:"primaryKey;size:64"`
	UserID        string  `gorm:"size:128;index"`
	OrderID       *string `gorm:"size:64;index"`
	OrderItemID   *string `gorm:"size:64"`
	QuantityIndex int
	FileName      string
	StorageKey    string
	URL           string
	MimeType      string `gorm:"size:128"`
	Size          int64
	UploadType    string `gorm:"size:32"`
	Status        string `gorm:"size:32;index"`
	AdminNotes    *string
	ReviewerID    *string `gorm:"size:128"`
	ReviewedAt    *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime:false;index"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (uploadModel) TableName() string { return "uploads" }

type productModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	SKU            string `gorm:"size:64;index"`
	Name           string
	Description    string
	Category       string `gorm:"size:64;index"`
	Price          int64
	Currency       string `gorm:"size:8"`
	RequiresUpload bool
	Active         bool `gorm:"index"`
	Stock          *int
	ImageURLs      []string       `gorm:"type:text;serializer:json"`
	Attributes     map[string]any `gorm:"type:text;serializer:json"`
	CreatedAt      time.Time      `gorm:"autoCreateTime:false;index"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime:false"`
}

func (productModel) TableName() string { return "products" }

type cartModel struct {
	UserID    string            `gorm:"primaryKey;size:128"`
	Currency  string            `gorm:"size:8"`
	Items     []domain.CartItem `gorm:"type:text;serializer:json"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime:false"`
}

func (cartModel) TableName() string { return "carts" }

type customerModel struct {
	ID          string `gorm:"primaryKey;size:128"`
	Email       string `gorm:"size:320;index"`
	DisplayName string
	Phone       *string
	Addresses   []domain.Address `gorm:"type:text;serializer:json"`
	Disabled    bool
	CreatedAt   time.Time `gorm:"autoCreateTime:false;index"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (customerModel) TableName() string { return "customers" }

type adminModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Email        string `gorm:"size:320;uniqueIndex"`
	Name         string
	Role         string `gorm:"size:16"`
	PasswordHash string
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (adminModel) TableName() string { return "admins" }

type counterModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Value     int64
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (counterModel) TableName() string { return "counters" }

func orderFromDomain(o domain.Order) orderModel {
	m := orderModel{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Currency:        o.Currency,
		Subtotal:        o.Totals.Subtotal,
		Tax:             o.Totals.Tax,
		ShippingFee:     o.Totals.ShippingFee,
		Total:           o.Totals.Total,
		Items:           o.Items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		TrackingNumber:  o.TrackingNumber,
		Carrier:         o.Carrier,
		Notes:           o.Notes,
		AdminNotes:      o.AdminNotes,
		CancelReason:    o.CancelReason,
		Metadata:        o.Metadata,
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
		PaidAt:          o.PaidAt,
		ConfirmedAt:     o.ConfirmedAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
	}
	if o.PaymentIntentID != "" {
		intent := o.PaymentIntentID
		m.PaymentIntentID = &intent
	}
	return m
}

func (m orderModel) toDomain() domain.Order {
	status, ok := domain.ParseOrderStatus(m.Status)
	if !ok {
		status = domain.OrderStatus(m.Status)
	}
	o := domain.Order{
		ID:          m.ID,
		OrderNumber: m.OrderNumber,
		UserID:      m.UserID,
		Status:      status,
		Currency:    m.Currency,
		Totals: domain.OrderTotals{
			Subtotal:    m.Subtotal,
			Tax:         m.Tax,
			ShippingFee: m.ShippingFee,
			Total:       m.Total,
		},
		Items:           m.Items,
		ShippingAddress: m.ShippingAddress,
		PaymentMethod:   m.PaymentMethod,
		TrackingNumber:  m.TrackingNumber,
		Carrier:         m.Carrier,
		Notes:           m.Notes,
		AdminNotes:      m.AdminNotes,
		CancelReason:    m.CancelReason,
		Metadata:        m.Metadata,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
		PaidAt:          m.PaidAt,
		ConfirmedAt:     m.ConfirmedAt,
		ShippedAt:       m.ShippedAt,
		DeliveredAt:     m.DeliveredAt,
		CancelledAt:     m.CancelledAt,
	}
	if m.PaymentIntentID != nil {
		o.PaymentIntentID = *m.PaymentIntentID
	}
	return o
}

func uploadFromDomain(u domain.Upload) uploadModel {
	return uploadModel{
		ID:            u.ID,
		UserID:        u.UserID,
		OrderID:       u.OrderID,
		OrderItemID:   u.OrderItemID,
		QuantityIndex: u.QuantityIndex,
		FileName:      u.FileName,
		StorageKey:    u.StorageKey,
		URL:           u.URL,
		MimeType:      u.MimeType,
		Size:          u.Size,
		UploadType:    u.UploadType,
		Status:        string(u.Status),
		AdminNotes:    u.AdminNotes,
		ReviewerID:    u.ReviewerID,
		ReviewedAt:    u.ReviewedAt,
		CreatedAt:     u.CreatedAt.UTC(),
		UpdatedAt:     u.UpdatedAt.UTC(),
	}
}

func (m uploadModel) toDomain() domain.Upload {
	return domain.Upload{
		ID:            m.ID,
		UserID:        m.UserID,
		OrderID:       m.OrderID,
		OrderItemID:   m.OrderItemID,
		QuantityIndex: m.QuantityIndex,
		FileName:      m.FileName,
		StorageKey:    m.StorageKey,
		URL:           m.URL,
		MimeType:      m.MimeType,
		Size:          m.Size,
		UploadType:    m.UploadType,
		Status:        domain.UploadStatus(m.Status),
		AdminNotes:    m.AdminNotes,
		ReviewerID:    m.ReviewerID,
		ReviewedAt:    m.ReviewedAt,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func productFromDomain(p domain.Product) productModel {
	return productModel{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		Price:          p.Price,
		Currency:       p.Currency,
		RequiresUpload: p.RequiresUpload,
		Active:         p.Active,
		Stock:          p.Stock,
		ImageURLs:      p.ImageURLs,
		Attributes:     p.Attributes,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func (m productModel) toDomain() domain.Product {
	return domain.Product{
		ID:             m.ID,
		SKU:            m.SKU,
		Name:           m.Name,
		Description:    m.Description,
		Category:       m.Category,
		Price:          m.Price,
		Currency:       m.Currency,
		RequiresUpload: m.RequiresUpload,
		Active:         m.Active,
		Stock:          m.Stock,
		ImageURLs:      m.ImageURLs,
		Attributes:     m.Attributes,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

func customerFromDomain(c domain.Customer) customerModel {
	return customerModel{
		ID:          c.ID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Phone:       c.Phone,
		Addresses:   c.Addresses,
		Disabled:    c.Disabled,
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (m customerModel) toDomain() domain.Customer {
	return domain.Customer{
		ID:          m.ID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Phone:       m.Phone,
		Addresses:   m.Addresses,
		Disabled:    m.Disabled,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func adminFromDomain(a domain.Admin) adminModel {
	return adminModel{
		ID:           a.ID,
		Email:        a.Email,
		Name:         a.Name,
		Role:         string(a.Role),
		PasswordHash: a.PasswordHash,
		Active:       a.Active,
		LastLoginAt:  a.LastLoginAt,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (m adminModel) toDomain() domain.Admin {
	return domain.Admin{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		Role:         domain.AdminRole(m.Role),
		PasswordHash: m.PasswordHash,
		Active:       m.Active,
		LastLoginAt:  m.LastLoginAt,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}
