package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ExternalOrder is the canonical shape an order import driver produces from
// a platform's raw order payload.
type ExternalOrder struct {
	ExternalID       string          `json:"external_id"`
	Reference        string          `json:"reference,omitempty"`
	RawStatus        string          `json:"raw_status"`
	RawPaymentStatus string          `json:"raw_payment_status,omitempty"`
	Status           string          `json:"status,omitempty"`
	PaymentStatus    string          `json:"payment_status,omitempty"`
	Currency         string          `json:"currency"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	CustomerEmail    string          `json:"customer_email,omitempty"`
	CustomerName     string          `json:"customer_name,omitempty"`
	Lines            []ExternalOrderLine `json:"lines"`
	PlacedAt         time.Time       `json:"placed_at"`
	RawData          json.RawMessage `json:"raw_data,omitempty"`
}

// ExternalOrderLine is one line item of an external order.
type ExternalOrderLine struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPage is one page of an order fetch.
type OrderPage struct {
	Orders     []ExternalOrder `json:"orders"`
	TotalCount int64           `json:"total_count"`
	HasMore    bool            `json:"has_more"`
	NextOffset int             `json:"next_offset"`
}

// OrderFetchOptions controls pagination and filtering of an order fetch.
type OrderFetchOptions struct {
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	Since     *time.Time `json:"since,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	RawStatus string     `json:"raw_status,omitempty"`
}
