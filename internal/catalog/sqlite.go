package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Messages returned for rejected codes. They reach the shopper verbatim.
const (
	MsgInvalidCode     = "Invalid discount code"
	MsgInactive        = "Discount code is not active"
	MsgNotYetValid     = "Discount code is not yet valid"
	MsgExpired         = "Discount code has expired"
	MsgUsageLimit      = "Discount code usage limit reached"
	MsgGiftUnavailable = "The gift product for this code is no longer available"
	MsgApplied         = "Discount applied successfully"
)

type PromoCode struct {
	Code             string
	DiscountType     domain.DiscountKind
	DiscountValue    domain.Money
	MinOrderAmount   domain.Money
	GrantedProductID *int64
	Active           bool
	StartsAt         time.Time
	EndsAt           *time.Time
	MaxUses          *int
}

// SQLiteCatalog is a local catalog used for development and tests.
type SQLiteCatalog struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteCatalog{db: db, now: time.Now}, nil
}

// WithClock replaces the clock used for code validity windows.
func (c *SQLiteCatalog) WithClock(now func() time.Time) *SQLiteCatalog {
	c.now = now
	return c
}

func (c *SQLiteCatalog) RunMigrations() error {
	driver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func (c *SQLiteCatalog) CheckStock(ctx context.Context, productIDs []int64) ([]Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(productIDs)), ",")
	query := `
		SELECT id, name, price, image_url
		FROM products
		WHERE orderable = 1 AND id IN (` + placeholders + `)
		ORDER BY id
	`
	args := make([]any, len(productIDs))
	for i, id := range productIDs {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (c *SQLiteCatalog) VerifyPromo(ctx context.Context, req VerifyRequest) (*Verification, error) {
	code := domain.NormalizeCode(req.Code)
	invalid := func(msg string) *Verification {
		return &Verification{Valid: false, Code: code, Message: msg}
	}

	promo, usedCount, err := c.getPromo(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return invalid(MsgInvalidCode), nil
	}
	if err != nil {
		return nil, err
	}

	now := c.now()
	switch {
	case !promo.Active:
		return invalid(MsgInactive), nil
	case now.Before(promo.StartsAt):
		return invalid(MsgNotYetValid), nil
	case promo.EndsAt != nil && now.After(*promo.EndsAt):
		return invalid(MsgExpired), nil
	case req.OrderAmount.LessThan(promo.MinOrderAmount):
		return invalid(fmt.Sprintf("Minimum order amount of %s required", promo.MinOrderAmount.StringFixed(2))), nil
	case promo.MaxUses != nil && usedCount >= *promo.MaxUses:
		return invalid(MsgUsageLimit), nil
	}

	v := &Verification{
		Valid:         true,
		Code:          code,
		DiscountType:  string(promo.DiscountType),
		DiscountValue: promo.DiscountValue,
		Message:       MsgApplied,
	}

	if promo.DiscountType == domain.DiscountFreeProduct {
		if promo.GrantedProductID == nil {
			return invalid(MsgGiftUnavailable), nil
		}
		gifts, err := c.CheckStock(ctx, []int64{*promo.GrantedProductID})
		if err != nil {
			return nil, err
		}
		if len(gifts) == 0 {
			return invalid(MsgGiftUnavailable), nil
		}
		v.DiscountValue = decimal.Zero
		v.GrantedProductID = &gifts[0].ID
		v.GrantedProductName = gifts[0].Name
		v.GrantedProductImage = gifts[0].ImageURL
	}

	return v, nil
}

func (c *SQLiteCatalog) getPromo(ctx context.Context, code string) (*PromoCode, int, error) {
	query := `
		SELECT code, discount_type, discount_value, min_order_amount, granted_product_id,
		       active, starts_at, ends_at, max_uses, used_count
		FROM promo_codes
		WHERE code = ?
	`
	var (
		p         PromoCode
		kind      string
		granted   sql.NullInt64
		startsAt  int64
		endsAt    sql.NullInt64
		maxUses   sql.NullInt64
		usedCount int
	)
	err := c.db.QueryRowContext(ctx, query, code).Scan(
		&p.Code,
		&kind,
		&p.DiscountValue,
		&p.MinOrderAmount,
		&granted,
		&p.Active,
		&startsAt,
		&endsAt,
		&maxUses,
		&usedCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("failed to get promo code: %w", err)
	}

	p.DiscountType = domain.DiscountKind(kind)
	p.StartsAt = time.Unix(startsAt, 0)
	if granted.Valid {
		id := granted.Int64
		p.GrantedProductID = &id
	}
	if endsAt.Valid {
		t := time.Unix(endsAt.Int64, 0)
		p.EndsAt = &t
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		p.MaxUses = &n
	}
	return &p, usedCount, nil
}

// UpsertProduct inserts or replaces a catalog product.
func (c *SQLiteCatalog) UpsertProduct(ctx context.Context, p Product, orderable bool) error {
	query := `
		INSERT INTO products (id, name, price, image_url, orderable)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			image_url = excluded.image_url,
			orderable = excluded.orderable
	`
	if _, err := c.db.ExecContext(ctx, query, p.ID, p.Name, p.Price.String(), p.ImageURL, orderable); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) SetOrderable(ctx context.Context, productID int64, orderable bool) error {
	res, err := c.db.ExecContext(ctx, `UPDATE products SET orderable = ? WHERE id = ?`, orderable, productID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("product %d not found", productID)
	}
	return nil
}

func (c *SQLiteCatalog) CreatePromo(ctx context.Context, p PromoCode) error {
	if _, ok := domain.ParseDiscountKind(string(p.DiscountType)); !ok {
		return fmt.Errorf("unknown discount type %q", p.DiscountType)
	}
	query := `
		INSERT INTO promo_codes (code, discount_type, discount_value, min_order_amount,
		                         granted_product_id, active, starts_at, ends_at, max_uses)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var endsAt, maxUses, granted any
	if p.EndsAt != nil {
		endsAt = p.EndsAt.Unix()
	}
	if p.MaxUses != nil {
		maxUses = *p.MaxUses
	}
	if p.GrantedProductID != nil {
		granted = *p.GrantedProductID
	}
	_, err := c.db.ExecContext(ctx, query,
		domain.NormalizeCode(p.Code),
		string(p.DiscountType),
		p.DiscountValue.String(),
		p.MinOrderAmount.String(),
		granted,
		p.Active,
		p.StartsAt.Unix(),
		endsAt,
		maxUses,
	)
	if err != nil {
		return fmt.Errorf("failed to create promo code: %w", err)
	}
	return nil
}

// RecordRedemption counts one use of code, called once an order is placed.
func (c *SQLiteCatalog) RecordRedemption(ctx context.Context, code string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE promo_codes SET used_count = used_count + 1 WHERE code = ?`, domain.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("failed to record redemption: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("promo code %s not found", code)
	}
	return nil
}
