package statusmap

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/models"
)

type fakeStatusSource struct {
	statuses map[models.StatusClass][]models.OrderStatus
}

func (f *fakeStatusSource) ListByClass(_ context.Context, _ string, class models.StatusClass) ([]models.OrderStatus, error) {
	return f.statuses[class], nil
}

func testMapper(statuses map[models.StatusClass][]models.OrderStatus) *Mapper {
	return New(&fakeStatusSource{statuses: statuses}, zerolog.Nop())
}

func TestMapOrderStatusTranslates(t *testing.T) {
	m := testMapper(map[models.StatusClass][]models.OrderStatus{
		models.StatusClassOrder: {
			{Key: "new", IsActive: true, IsDefault: true},
			{Key: "shipped", IsActive: true},
		},
	})

	tr := Translation{Orders: map[string]string{"shipment_in_transit": "shipped"}}
	key, err := m.MapOrderStatus(context.Background(), "t1", tr, "Shipment_In_Transit")
	require.NoError(t, err)
	assert.Equal(t, "shipped", key)
}

func TestMapOrderStatusFallsBackToDefault(t *testing.T) {
	m := testMapper(map[models.StatusClass][]models.OrderStatus{
		models.StatusClassOrder: {
			{Key: "new", IsActive: true, IsDefault: true},
			{Key: "archived", IsActive: false},
		},
	})

	tr := Translation{Orders: map[string]string{"weird": "archived"}}

	// Candidate exists but is inactive.
	key, err := m.MapOrderStatus(context.Background(), "t1", tr, "weird")
	require.NoError(t, err)
	assert.Equal(t, "new", key)

	// Completely unknown raw status.
	key, err = m.MapOrderStatus(context.Background(), "t1", tr, "never-seen")
	require.NoError(t, err)
	assert.Equal(t, "new", key)
}

func TestMapOrderStatusFailsClosedWithoutDefault(t *testing.T) {
	m := testMapper(map[models.StatusClass][]models.OrderStatus{
		models.StatusClassOrder: {{Key: "new", IsActive: true}},
	})

	_, err := m.MapOrderStatus(context.Background(), "t1", Translation{}, "anything")
	assert.ErrorIs(t, err, ErrNoDefaultStatus)
}

func TestMapPaymentClassSkipsRawTranslation(t *testing.T) {
	m := testMapper(map[models.StatusClass][]models.OrderStatus{
		models.StatusClassPayment: {
			{Key: "pending", IsActive: true, IsDefault: true},
			{Key: "paid", IsActive: true},
		},
	})

	// A fully paid order classifies as "paid"; the canonical key must
	// resolve against the tenant rows directly, not fall through to the
	// pending default because "paid" is no raw platform status.
	rules := PaymentRules{PaidStatuses: []string{"payment_accepted"}}
	classified := ClassifyPayment(rules, "payment_accepted", dec("100"), dec("100"))
	require.Equal(t, models.PaymentStatusPaid, classified)

	key, err := m.MapPaymentClass(context.Background(), "t1", Translation{}, classified)
	require.NoError(t, err)
	assert.Equal(t, "paid", key)
}

func TestMapPaymentClassHonorsRenames(t *testing.T) {
	m := testMapper(map[models.StatusClass][]models.OrderStatus{
		models.StatusClassPayment: {
			{Key: "pending", IsActive: true, IsDefault: true},
			{Key: "settled", IsActive: true},
		},
	})

	tr := Translation{Payments: map[string]string{"paid": "settled"}}
	key, err := m.MapPaymentClass(context.Background(), "t1", tr, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, "settled", key)
}

func TestMapPaymentClassFallsBackWhenKeyInactive(t *testing.T) {
	m := testMapper(map[models.StatusClass][]models.OrderStatus{
		models.StatusClassPayment: {
			{Key: "pending", IsActive: true, IsDefault: true},
			{Key: "refunded", IsActive: false},
		},
	})

	key, err := m.MapPaymentClass(context.Background(), "t1", Translation{}, models.PaymentStatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, "pending", key)
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestClassifyPayment(t *testing.T) {
	rules := PaymentRules{
		PaidStatuses:          []string{"payment_accepted"},
		PartialPaidStatuses:   []string{"partial_payment", "payment_accepted_partial"},
		RefundedStatuses:      []string{"refunded"},
		PartialRefundStatuses: []string{"partial_refund"},
		ErrorStatuses:         []string{"payment_error"},
	}

	cases := []struct {
		name      string
		rawStatus string
		paid      string
		total     string
		want      string
	}{
		{"full payment", "payment_accepted", "100", "100", models.PaymentStatusPaid},
		{"overpayment", "payment_accepted", "120", "100", models.PaymentStatusPaid},
		{"partial by amount", "payment_accepted", "50", "100", models.PaymentStatusPartiallyPaid},
		{"explicit partial", "partial_payment", "100", "100", models.PaymentStatusPartiallyPaid},
		{"refunded", "refunded", "100", "100", models.PaymentStatusRefunded},
		{"partial refund", "partial_refund", "50", "100", models.PaymentStatusPartiallyRefunded},
		{"payment error", "payment_error", "0", "100", models.PaymentStatusError},
		{"unknown status", "awaiting_check", "0", "100", models.PaymentStatusPending},
		{"paid status with nothing paid", "payment_accepted", "0", "100", models.PaymentStatusPending},
		{"case insensitive", "Payment_Accepted", "100", "100", models.PaymentStatusPaid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyPayment(rules, tc.rawStatus, dec(tc.paid), dec(tc.total))
			assert.Equal(t, tc.want, got)
		})
	}
}

// The precedence law: membership in a later rule's list always overrides an
// earlier classification, including the amount-based paid rule.
func TestClassifyPaymentPrecedence(t *testing.T) {
	rules := PaymentRules{
		PaidStatuses:        []string{"payment_accepted"},
		PartialPaidStatuses: []string{"payment_accepted"},
	}
	got := ClassifyPayment(rules, "payment_accepted", dec("100"), dec("100"))
	assert.Equal(t, models.PaymentStatusPartiallyPaid, got)

	rules = PaymentRules{
		PaidStatuses:     []string{"payment_accepted"},
		RefundedStatuses: []string{"payment_accepted"},
	}
	got = ClassifyPayment(rules, "payment_accepted", dec("100"), dec("100"))
	assert.Equal(t, models.PaymentStatusRefunded, got)

	rules = PaymentRules{
		RefundedStatuses: []string{"x"},
		ErrorStatuses:    []string{"x"},
	}
	got = ClassifyPayment(rules, "x", dec("0"), dec("100"))
	assert.Equal(t, models.PaymentStatusError, got)
}

// Scenario from the admin playbook: a paid status with half the total paid.
func TestClassifyPaymentPartialFromAmounts(t *testing.T) {
	rules := PaymentRules{PaidStatuses: []string{"payment_accepted"}}
	got := ClassifyPayment(rules, "payment_accepted", dec("50"), dec("100"))
	assert.Equal(t, models.PaymentStatusPartiallyPaid, got)
}
