package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/models"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		NewPrestashopAPIDriver(time.Second, zerolog.Nop()),
		NewPrestashopDBDriver(time.Second, zerolog.Nop()),
		NewFileFeedDriver(time.Second, zerolog.Nop()),
	)
	require.NoError(t, err)
	return r
}

func TestRegistryMake(t *testing.T) {
	r := testRegistry(t)

	d, err := r.Make(models.IntegrationTypePrestashopAPI)
	require.NoError(t, err)
	assert.Equal(t, models.IntegrationTypePrestashopAPI, d.Type())

	_, err = r.Make(models.IntegrationType("shopify"))
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	_, err := NewRegistry(
		NewFileFeedDriver(time.Second, zerolog.Nop()),
		NewFileFeedDriver(time.Second, zerolog.Nop()),
	)
	assert.ErrorIs(t, err, ErrInvalidDriver)

	_, err = NewRegistry(nil)
	assert.ErrorIs(t, err, ErrInvalidDriver)
}

func TestRegistryOrderImporterCapability(t *testing.T) {
	r := testRegistry(t)

	_, err := r.OrderImporterFor(models.IntegrationTypePrestashopAPI)
	assert.NoError(t, err)

	_, err = r.OrderImporterFor(models.IntegrationTypePrestashopDB)
	assert.NoError(t, err)

	// File feeds report the missing capability explicitly.
	_, err = r.OrderImporterFor(models.IntegrationTypeFileFeed)
	assert.ErrorIs(t, err, ErrOrderImportUnsupported)
}

func TestValidateConfig(t *testing.T) {
	rules := Rules{
		"shop_url": "required,url",
		"api_key":  "required,min=16",
	}

	err := ValidateConfig(rules, map[string]interface{}{
		"shop_url": "https://shop.example.com",
		"api_key":  "0123456789abcdef",
	})
	assert.NoError(t, err)

	err = ValidateConfig(rules, map[string]interface{}{
		"shop_url": "not a url",
		"api_key":  "short",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shop_url")
	assert.Contains(t, err.Error(), "api_key")
}

func TestPrestashopAPIValidationRulesRelaxOnUpdate(t *testing.T) {
	d := NewPrestashopAPIDriver(time.Second, zerolog.Nop())

	create := d.ValidationRules(nil)
	assert.Equal(t, "required,min=16", create["api_key"])

	update := d.ValidationRules(&models.Integration{})
	assert.Equal(t, "omitempty,min=16", update["api_key"])
}

func TestSanitizeConfigIdempotent(t *testing.T) {
	drivers := []Driver{
		NewPrestashopAPIDriver(time.Second, zerolog.Nop()),
		NewPrestashopDBDriver(time.Second, zerolog.Nop()),
		NewFileFeedDriver(time.Second, zerolog.Nop()),
	}
	inputs := []map[string]interface{}{
		{
			"shop_url": "  https://shop.example.com/ ",
			"api_key":  " key-with-space ",
			"junk":     "dropped",
		},
		{
			"db_host": " db.example.com ", "db_name": "shop", "db_user": "reader",
			"db_password": "pw", "db_port": float64(3307), "table_prefix": "bad prefix!",
		},
		{"feed_url": " https://feeds.example.com/products.csv ", "extra": 1},
	}

	for i, d := range drivers {
		once := d.SanitizeConfig(inputs[i])
		twice := d.SanitizeConfig(once)
		assert.Equal(t, once, twice, "driver %s", d.Type())
		_, hasJunk := once["junk"]
		assert.False(t, hasJunk)
		_, hasExtra := once["extra"]
		assert.False(t, hasExtra)
	}
}

func TestPrestashopDBSanitizeRestoresDefaults(t *testing.T) {
	d := NewPrestashopDBDriver(time.Second, zerolog.Nop())
	out := d.SanitizeConfig(map[string]interface{}{
		"db_host": "db", "db_name": "shop", "db_user": "u",
		"table_prefix": "DROP TABLE;",
	})
	assert.Equal(t, "ps_", out["table_prefix"])
	assert.Equal(t, 3306, out["db_port"])
}

func TestPrestashopAPITestConnection(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		gotAuth = user
		if user != "valid-webservice-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewPrestashopAPIDriver(time.Second, zerolog.Nop())

	err := d.TestConnection(context.Background(), map[string]interface{}{
		"shop_url": srv.URL,
		"api_key":  "valid-webservice-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "valid-webservice-key", gotAuth)

	err = d.TestConnection(context.Background(), map[string]interface{}{
		"shop_url": srv.URL,
		"api_key":  "wrong-key",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestPrestashopAPIFetchOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orders":[
			{"id":1,"reference":"A1","current_state":"payment_accepted","total_paid":"100.00","total_paid_real":"100.00","date_add":"2026-01-10 09:30:00"},
			{"id":2,"reference":"A2","current_state":"shipped","total_paid":"50.00","total_paid_real":"25.00","date_add":"2026-01-11 10:00:00"}
		]}`))
	}))
	defer srv.Close()

	d := NewPrestashopAPIDriver(time.Second, zerolog.Nop())
	page, err := d.FetchOrders(context.Background(), map[string]interface{}{
		"shop_url": srv.URL,
		"api_key":  "0123456789abcdef",
	}, models.OrderFetchOptions{Limit: 10})
	require.NoError(t, err)

	require.Len(t, page.Orders, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, "1", page.Orders[0].ExternalID)
	assert.Equal(t, "payment_accepted", page.Orders[0].RawStatus)
	assert.Equal(t, "100", page.Orders[0].TotalAmount.String())
	assert.Equal(t, "25", page.Orders[1].TotalPaid.String())
}

func TestPrestashopAPIFetchOrdersReportsRealTotal(t *testing.T) {
	// Three orders in the shop; pages are served per the limit param,
	// counts through the id-only listing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("display") == "[id]" {
			w.Write([]byte(`{"orders":[{"id":1},{"id":2},{"id":3}]}`))
			return
		}
		w.Write([]byte(`{"orders":[
			{"id":1,"reference":"A1","current_state":"payment_accepted","total_paid":"10.00","total_paid_real":"10.00","date_add":"2026-01-10 09:30:00"},
			{"id":2,"reference":"A2","current_state":"shipped","total_paid":"20.00","total_paid_real":"20.00","date_add":"2026-01-11 10:00:00"}
		]}`))
	}))
	defer srv.Close()

	d := NewPrestashopAPIDriver(time.Second, zerolog.Nop())
	page, err := d.FetchOrders(context.Background(), map[string]interface{}{
		"shop_url": srv.URL,
		"api_key":  "0123456789abcdef",
	}, models.OrderFetchOptions{Limit: 1})
	require.NoError(t, err)

	// A probe page of one must still size the whole run.
	assert.Equal(t, int64(3), page.TotalCount)
	assert.True(t, page.HasMore)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, 1, page.NextOffset)
}

func TestFileFeedTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewFileFeedDriver(time.Second, zerolog.Nop())

	// No feed URL configured: nothing to test.
	assert.NoError(t, d.TestConnection(context.Background(), map[string]interface{}{}))

	assert.NoError(t, d.TestConnection(context.Background(), map[string]interface{}{
		"feed_url": srv.URL,
	}))
}

func TestTranslationOverrides(t *testing.T) {
	d := NewPrestashopAPIDriver(time.Second, zerolog.Nop())

	tr := d.Translation(map[string]interface{}{
		"status_map": map[string]interface{}{
			"orders": map[string]interface{}{"shipped": "dispatched"},
		},
	})
	assert.Equal(t, "dispatched", tr.Orders["shipped"])
	// Untouched entries keep platform defaults.
	assert.Equal(t, "delivered", tr.Orders["delivered"])
}

func TestLastSyncDateRoundTrip(t *testing.T) {
	integration := &models.Integration{}
	assert.Nil(t, LastSyncDate(integration))

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	SetLastSyncDate(integration, at)
	got := LastSyncDate(integration)
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))
}
