package statusmap

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/channelport/channelport-api/internal/models"
)

// ErrNoDefaultStatus is returned when a tenant has no active default status
// for the requested class. Provisioning seeds defaults, so hitting this
// means the tenant's status table was broken after the fact.
var ErrNoDefaultStatus = errors.New("statusmap: no active default status configured")

// StatusSource provides the tenant's authoritative status rows.
type StatusSource interface {
	ListByClass(ctx context.Context, tenantID string, class models.StatusClass) ([]models.OrderStatus, error)
}

// Translation is a per-platform, per-class table into local status keys.
// Configuration-driven, not hardcoded.
type Translation struct {
	// Orders maps raw platform order statuses to local order status keys.
	Orders map[string]string `json:"orders" mapstructure:"orders"`
	// Payments maps canonical payment classes (ClassifyPayment output)
	// to local payment keys, for tenants whose key set diverges from the
	// canonical vocabulary. Unlisted classes map to themselves.
	Payments map[string]string `json:"payments" mapstructure:"payments"`
}

// PaymentRules drives the payment classifier. Membership lists hold raw
// platform statuses. Rule order is fixed: later rules override earlier
// matches when a status appears in several lists.
type PaymentRules struct {
	PaidStatuses          []string `json:"paid_statuses" mapstructure:"paid_statuses"`
	PartialPaidStatuses   []string `json:"partial_paid_statuses" mapstructure:"partial_paid_statuses"`
	RefundedStatuses      []string `json:"refunded_statuses" mapstructure:"refunded_statuses"`
	PartialRefundStatuses []string `json:"partial_refund_statuses" mapstructure:"partial_refund_statuses"`
	ErrorStatuses         []string `json:"error_statuses" mapstructure:"error_statuses"`
}

// Mapper translates platform status vocabularies into a tenant's locally
// configured status set.
type Mapper struct {
	source StatusSource
	logger zerolog.Logger
}

func New(source StatusSource, logger zerolog.Logger) *Mapper {
	return &Mapper{
		source: source,
		logger: logger.With().Str("component", "status_mapper").Logger(),
	}
}

// MapOrderStatus resolves a raw platform order status to one active local
// status key. Unknown or inactive candidates fall back to the class default.
func (m *Mapper) MapOrderStatus(ctx context.Context, tenantID string, tr Translation, raw string) (string, error) {
	return m.mapStatus(ctx, tenantID, models.StatusClassOrder, tr.Orders, raw)
}

// MapPaymentClass resolves a canonical payment key from ClassifyPayment
// against the tenant's payment status table. The key is already canonical,
// so the Payments table only renames classes; a class it does not list
// resolves as itself. An inactive or missing key falls back to the class
// default.
func (m *Mapper) MapPaymentClass(ctx context.Context, tenantID string, tr Translation, key string) (string, error) {
	candidate := normalize(key)
	if renamed := tr.Payments[candidate]; renamed != "" {
		candidate = renamed
	}
	return m.resolveKey(ctx, tenantID, models.StatusClassPayment, candidate)
}

func (m *Mapper) mapStatus(ctx context.Context, tenantID string, class models.StatusClass, table map[string]string, raw string) (string, error) {
	return m.resolveKey(ctx, tenantID, class, table[normalize(raw)])
}

func (m *Mapper) resolveKey(ctx context.Context, tenantID string, class models.StatusClass, candidate string) (string, error) {
	statuses, err := m.source.ListByClass(ctx, tenantID, class)
	if err != nil {
		return "", errors.Wrap(err, "load tenant statuses")
	}

	if candidate != "" {
		for _, s := range statuses {
			if s.Key == candidate && s.IsActive {
				return s.Key, nil
			}
		}
		m.logger.Debug().
			Str("tenant_id", tenantID).
			Str("candidate", candidate).
			Msg("status not active locally, using default")
	}

	for _, s := range statuses {
		if s.IsDefault && s.IsActive {
			return s.Key, nil
		}
	}
	return "", errors.Wrapf(ErrNoDefaultStatus, "tenant %s class %s", tenantID, class)
}

// ClassifyPayment derives a canonical payment status from the raw platform
// status and amounts. Rules are evaluated in a fixed order and later rules
// override earlier ones, so a status listed both as fully-paid and as
// partially-paid classifies as partially_paid regardless of amounts.
func ClassifyPayment(rules PaymentRules, rawStatus string, totalPaid, orderTotal decimal.Decimal) string {
	result := models.PaymentStatusPending
	raw := normalize(rawStatus)

	if contains(rules.PaidStatuses, raw) {
		if totalPaid.GreaterThanOrEqual(orderTotal) && orderTotal.IsPositive() {
			result = models.PaymentStatusPaid
		} else if totalPaid.IsPositive() && totalPaid.LessThan(orderTotal) {
			result = models.PaymentStatusPartiallyPaid
		} else if orderTotal.IsZero() && totalPaid.GreaterThanOrEqual(orderTotal) {
			result = models.PaymentStatusPaid
		}
	}
	if contains(rules.PartialPaidStatuses, raw) {
		result = models.PaymentStatusPartiallyPaid
	}
	if contains(rules.RefundedStatuses, raw) {
		result = models.PaymentStatusRefunded
	}
	if contains(rules.PartialRefundStatuses, raw) {
		result = models.PaymentStatusPartiallyRefunded
	}
	if contains(rules.ErrorStatuses, raw) {
		result = models.PaymentStatusError
	}
	return result
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if normalize(item) == value {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
