package driver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/statusmap"
)

// Table prefixes come from user config and are interpolated into SQL, so
// they are restricted to a safe shape.
var tablePrefixPattern = regexp.MustCompile(`^[a-z0-9_]{1,16}$`)

// PrestashopDBDriver reads a shop's MySQL database directly. Used for shops
// whose webservice API is disabled or too slow for bulk pulls.
type PrestashopDBDriver struct {
	timeout time.Duration
	logger  zerolog.Logger
}

func NewPrestashopDBDriver(timeout time.Duration, logger zerolog.Logger) *PrestashopDBDriver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PrestashopDBDriver{
		timeout: timeout,
		logger:  logger.With().Str("driver", "prestashop_db").Logger(),
	}
}

func (d *PrestashopDBDriver) Type() models.IntegrationType {
	return models.IntegrationTypePrestashopDB
}

func (d *PrestashopDBDriver) ValidationRules(existing *models.Integration) Rules {
	rules := Rules{
		"db_host":      "required,hostname|ip",
		"db_port":      "omitempty,min=1,max=65535",
		"db_name":      "required,min=1",
		"db_user":      "required,min=1",
		"db_password":  "required,min=1",
		"table_prefix": "omitempty,max=16",
	}
	if existing != nil {
		rules["db_password"] = "omitempty,min=1"
	}
	return rules
}

func (d *PrestashopDBDriver) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"db_host":      "",
		"db_port":      3306,
		"db_name":      "",
		"db_user":      "",
		"db_password":  "",
		"table_prefix": "ps_",
	}
}

func (d *PrestashopDBDriver) SanitizeConfig(cfg map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, 6)
	for _, key := range []string{"db_host", "db_name", "db_user"} {
		if v, ok := sanitizeString(cfg, key); ok {
			out[key] = v
		}
	}
	if v, ok := sanitizeString(cfg, "db_password"); ok && v != "" {
		out["db_password"] = v
	}
	out["db_port"] = portFromConfig(cfg)
	prefix, _ := sanitizeString(cfg, "table_prefix")
	if prefix == "" || !tablePrefixPattern.MatchString(prefix) {
		prefix = "ps_"
	}
	out["table_prefix"] = prefix
	if v, ok := cfg["status_map"].(map[string]interface{}); ok {
		out["status_map"] = v
	}
	if v, ok := cfg["payment_rules"].(map[string]interface{}); ok {
		out["payment_rules"] = v
	}
	return out
}

func (d *PrestashopDBDriver) dsn(cfg map[string]interface{}) (string, error) {
	host, _ := cfg["db_host"].(string)
	name, _ := cfg["db_name"].(string)
	user, _ := cfg["db_user"].(string)
	password, _ := cfg["db_password"].(string)
	if host == "" || name == "" || user == "" {
		return "", errors.New("db_host, db_name and db_user are required")
	}

	mc := mysql.NewConfig()
	mc.User = user
	mc.Passwd = password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", host, portFromConfig(cfg))
	mc.DBName = name
	mc.ParseTime = true
	mc.Timeout = d.timeout
	mc.ReadTimeout = d.timeout
	return mc.FormatDSN(), nil
}

func (d *PrestashopDBDriver) open(cfg map[string]interface{}) (*sql.DB, error) {
	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open shop database")
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Minute)
	return db, nil
}

func (d *PrestashopDBDriver) TestConnection(ctx context.Context, cfg map[string]interface{}) error {
	db, err := d.open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "shop database unreachable")
	}

	// The orders table must exist under the configured prefix.
	prefix, _ := cfg["table_prefix"].(string)
	var one int
	query := fmt.Sprintf("SELECT 1 FROM %sorders LIMIT 1", prefix)
	if err := db.QueryRowContext(ctx, query).Scan(&one); err != nil && err != sql.ErrNoRows {
		return errors.Wrapf(err, "orders table %sorders not readable", prefix)
	}
	return nil
}

func (d *PrestashopDBDriver) FetchOrders(ctx context.Context, cfg map[string]interface{}, opts models.OrderFetchOptions) (*models.OrderPage, error) {
	db, err := d.open(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}
	prefix, _ := cfg["table_prefix"].(string)

	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.Since != nil {
		where += " AND o.date_upd >= ?"
		args = append(args, opts.Since)
	}
	if opts.RawStatus != "" {
		where += " AND osl.name = ?"
		args = append(args, opts.RawStatus)
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %[1]sorders o
		JOIN %[1]sorder_state_lang osl ON osl.id_order_state = o.current_state AND osl.id_lang = 1
		%[2]s`, prefix, where)
	var total int64
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, errors.Wrap(err, "count orders")
	}

	query := fmt.Sprintf(`
		SELECT o.id_order, o.reference, osl.name, o.payment,
		       o.total_paid, o.total_paid_real, c.iso_code, cu.email, o.date_add
		FROM %[1]sorders o
		JOIN %[1]sorder_state_lang osl ON osl.id_order_state = o.current_state AND osl.id_lang = 1
		JOIN %[1]scurrency c ON c.id_currency = o.id_currency
		JOIN %[1]scustomer cu ON cu.id_customer = o.id_customer
		%[2]s
		ORDER BY o.id_order
		LIMIT ? OFFSET ?`, prefix, where)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	defer rows.Close()

	var orders []models.ExternalOrder
	for rows.Next() {
		var (
			id, reference, state, payment, currency, email string
			totalPaid, totalPaidReal                       string
			placedAt                                       time.Time
		)
		if err := rows.Scan(&id, &reference, &state, &payment, &totalPaid, &totalPaidReal, &currency, &email, &placedAt); err != nil {
			return nil, errors.Wrap(err, "scan order row")
		}
		totalAmount, err := decimal.NewFromString(totalPaid)
		if err != nil {
			d.logger.Warn().Err(err).Str("order_id", id).Msg("skipping order with bad total")
			continue
		}
		paid, err := decimal.NewFromString(totalPaidReal)
		if err != nil {
			paid = decimal.Zero
		}
		rawData, _ := json.Marshal(map[string]string{
			"id_order": id, "state": state, "payment": payment,
		})
		orders = append(orders, models.ExternalOrder{
			ExternalID:       id,
			Reference:        reference,
			RawStatus:        state,
			RawPaymentStatus: state,
			Currency:         currency,
			TotalAmount:      totalAmount,
			TotalPaid:        paid,
			CustomerEmail:    email,
			PlacedAt:         placedAt,
			RawData:          rawData,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	next := opts.Offset + len(orders)
	return &models.OrderPage{
		Orders:     orders,
		TotalCount: total,
		HasMore:    int64(next) < total,
		NextOffset: next,
	}, nil
}

func (d *PrestashopDBDriver) FetchOrderDetails(ctx context.Context, cfg map[string]interface{}, externalID string) (*models.ExternalOrder, error) {
	db, err := d.open(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	prefix, _ := cfg["table_prefix"].(string)
	query := fmt.Sprintf(`
		SELECT o.id_order, o.reference, osl.name, o.payment,
		       o.total_paid, o.total_paid_real, c.iso_code, cu.email, o.date_add
		FROM %[1]sorders o
		JOIN %[1]sorder_state_lang osl ON osl.id_order_state = o.current_state AND osl.id_lang = 1
		JOIN %[1]scurrency c ON c.id_currency = o.id_currency
		JOIN %[1]scustomer cu ON cu.id_customer = o.id_customer
		WHERE o.id_order = ?`, prefix)

	var (
		id, reference, state, payment, currency, email string
		totalPaid, totalPaidReal                       string
		placedAt                                       time.Time
	)
	err = db.QueryRowContext(ctx, query, externalID).
		Scan(&id, &reference, &state, &payment, &totalPaid, &totalPaidReal, &currency, &email, &placedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("order %s not found", externalID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}

	totalAmount, err := decimal.NewFromString(totalPaid)
	if err != nil {
		return nil, errors.Wrap(err, "parse order total")
	}
	paid, err := decimal.NewFromString(totalPaidReal)
	if err != nil {
		paid = decimal.Zero
	}
	return &models.ExternalOrder{
		ExternalID:       id,
		Reference:        reference,
		RawStatus:        state,
		RawPaymentStatus: state,
		Currency:         currency,
		TotalAmount:      totalAmount,
		TotalPaid:        paid,
		CustomerEmail:    email,
		PlacedAt:         placedAt,
	}, nil
}

func (d *PrestashopDBDriver) Translation(cfg map[string]interface{}) statusmap.Translation {
	return translationFromConfig(cfg, defaultPrestashopTranslation())
}

func (d *PrestashopDBDriver) PaymentRules(cfg map[string]interface{}) statusmap.PaymentRules {
	return paymentRulesFromConfig(cfg, defaultPrestashopPaymentRules())
}

func portFromConfig(cfg map[string]interface{}) int {
	switch v := cfg["db_port"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return int(n)
		}
	}
	return 3306
}
