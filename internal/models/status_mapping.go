package models

import "time"

// StatusClass separates order statuses from payment statuses.
type StatusClass string

const (
	StatusClassOrder   StatusClass = "order"
	StatusClassPayment StatusClass = "payment"
)

func (c StatusClass) IsValid() bool {
	return c == StatusClassOrder || c == StatusClassPayment
}

// Canonical payment status keys produced by the payment classifier.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusPartiallyPaid     = "partially_paid"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusError             = "payment_error"
	PaymentStatusPending           = "pending"
)

// OrderStatus is one row of a tenant's status table: the authoritative
// target set for translating platform status vocabularies.
type OrderStatus struct {
	ID        string      `json:"id" db:"id"`
	TenantID  string      `json:"tenant_id" db:"tenant_id"`
	Type      StatusClass `json:"type" db:"type"`
	Key       string      `json:"key" db:"key"`
	Name      string      `json:"name" db:"name"`
	Color     string      `json:"color" db:"color"`
	IsActive  bool        `json:"is_active" db:"is_active"`
	IsDefault bool        `json:"is_default" db:"is_default"`
	IsFinal   bool        `json:"is_final" db:"is_final"`
	SortOrder int         `json:"sort_order" db:"sort_order"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}
