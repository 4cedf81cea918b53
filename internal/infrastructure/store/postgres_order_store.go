package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const orderColumns = `id, user_id, customer, items, items_total, shipping_total, tax_total, grand_total,
	shipping_address, payment_method, status, is_paid, paid_at, payment_receipt,
	shipped_at, delivered_at, cancelled_at, created_at, updated_at`

// ConnectPostgres opens and verifies a PostgreSQL connection pool.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// MigratePostgres applies the embedded schema migrations.
func MigratePostgres(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// PostgresOrderStore stores orders in PostgreSQL
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

func (s *PostgresOrderStore) Create(ctx context.Context, o *order.Order) error {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return err
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, customer, items, items_total, shipping_total, tax_total, grand_total,
			shipping_address, payment_method, status, is_paid, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13)`,
		o.ID,
		o.UserID,
		string(customer),
		string(items),
		o.Pricing.ItemsTotal,
		o.Pricing.ShippingTotal,
		o.Pricing.TaxTotal,
		o.Pricing.GrandTotal,
		string(address),
		o.PaymentMethod,
		string(o.Status),
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PostgresOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	return o, err
}

func (s *PostgresOrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	return s.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

func (s *PostgresOrderStore) ListAll(ctx context.Context) ([]*order.Order, error) {
	return s.query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
}

func (s *PostgresOrderStore) MarkPaid(ctx context.Context, id string, receipt order.PaymentReceipt, paidAt time.Time) (bool, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET is_paid = TRUE, paid_at = $2, payment_receipt = $3, updated_at = $2
		 WHERE id = $1 AND is_paid = FALSE`,
		id, paidAt, string(data),
	)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return s.applied(ctx, id, res)
}

func (s *PostgresOrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $3::text,
		     updated_at = $4::timestamptz,
		     shipped_at = CASE WHEN $3::text = 'shipped' THEN $4::timestamptz ELSE shipped_at END,
		     delivered_at = CASE WHEN $3::text = 'delivered' THEN $4::timestamptz ELSE delivered_at END,
		     cancelled_at = CASE WHEN $3::text = 'cancelled' THEN $4::timestamptz ELSE cancelled_at END
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return s.applied(ctx, id, res)
}

// applied distinguishes a failed precondition from a missing order.
func (s *PostgresOrderStore) applied(ctx context.Context, id string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, order.ErrOrderNotFound
	}
	return false, nil
}

func (s *PostgresOrderStore) query(ctx context.Context, q string, args ...any) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o                                           order.Order
		status                                      string
		customer, items, address, receipt           []byte
		paidAt, shippedAt, deliveredAt, cancelledAt sql.NullTime
	)

	err := row.Scan(
		&o.ID, &o.UserID, &customer, &items,
		&o.Pricing.ItemsTotal, &o.Pricing.ShippingTotal, &o.Pricing.TaxTotal, &o.Pricing.GrandTotal,
		&address, &o.PaymentMethod, &status, &o.IsPaid, &paidAt, &receipt,
		&shippedAt, &deliveredAt, &cancelledAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = order.Status(status)
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	if len(receipt) > 0 {
		var r order.PaymentReceipt
		if err := json.Unmarshal(receipt, &r); err != nil {
			return nil, fmt.Errorf("decode payment receipt: %w", err)
		}
		o.PaymentReceipt = &r
	}
	o.PaidAt = nullTimePtr(paidAt)
	o.ShippedAt = nullTimePtr(shippedAt)
	o.DeliveredAt = nullTimePtr(deliveredAt)
	o.CancelledAt = nullTimePtr(cancelledAt)

	o.RecomputeTotals()
	return &o, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
