package driver

import (
	"github.com/channelport/channelport-api/internal/statusmap"
)

// Default PrestaShop status vocabulary. Shops can override any of these
// through the integration config; the defaults match a stock installation.
func defaultPrestashopTranslation() statusmap.Translation {
	return statusmap.Translation{
		Orders: map[string]string{
			"awaiting_check":          "new",
			"awaiting_bank_wire":      "new",
			"awaiting_cod_validation": "new",
			"payment_accepted":        "processing",
			"processing_in_progress":  "processing",
			"on_backorder":            "processing",
			"shipped":                 "shipped",
			"delivered":               "delivered",
			"canceled":                "cancelled",
			"refunded":                "cancelled",
			"payment_error":           "on_hold",
		},
		// Payment classes keep their canonical names on a stock install;
		// the table exists so shops with renamed keys can remap them.
		Payments: map[string]string{},
	}
}

func defaultPrestashopPaymentRules() statusmap.PaymentRules {
	return statusmap.PaymentRules{
		PaidStatuses:          []string{"payment_accepted", "payment_remotely_accepted"},
		PartialPaidStatuses:   []string{"partially_paid"},
		RefundedStatuses:      []string{"refunded"},
		PartialRefundStatuses: []string{"partially_refunded"},
		ErrorStatuses:         []string{"payment_error"},
	}
}

// translationFromConfig merges per-integration status_map overrides over
// the platform defaults.
func translationFromConfig(cfg map[string]interface{}, defaults statusmap.Translation) statusmap.Translation {
	overrides, ok := cfg["status_map"].(map[string]interface{})
	if !ok {
		return defaults
	}
	mergeTable(defaults.Orders, overrides["orders"])
	mergeTable(defaults.Payments, overrides["payments"])
	return defaults
}

func mergeTable(table map[string]string, raw interface{}) {
	entries, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	for k, v := range entries {
		if s, ok := v.(string); ok && s != "" {
			table[k] = s
		}
	}
}

// paymentRulesFromConfig merges per-integration payment_rules overrides
// over the platform defaults. A present list replaces the default list.
func paymentRulesFromConfig(cfg map[string]interface{}, defaults statusmap.PaymentRules) statusmap.PaymentRules {
	overrides, ok := cfg["payment_rules"].(map[string]interface{})
	if !ok {
		return defaults
	}
	if l := stringList(overrides["paid_statuses"]); l != nil {
		defaults.PaidStatuses = l
	}
	if l := stringList(overrides["partial_paid_statuses"]); l != nil {
		defaults.PartialPaidStatuses = l
	}
	if l := stringList(overrides["refunded_statuses"]); l != nil {
		defaults.RefundedStatuses = l
	}
	if l := stringList(overrides["partial_refund_statuses"]); l != nil {
		defaults.PartialRefundStatuses = l
	}
	if l := stringList(overrides["error_statuses"]); l != nil {
		defaults.ErrorStatuses = l
	}
	return defaults
}

func stringList(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
