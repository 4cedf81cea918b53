//go:build integration

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresStore(t *testing.T) (*PostgresOrderStore, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := ConnectPostgres(connStr)
	require.NoError(t, err)
	require.NoError(t, MigratePostgres(db))

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return NewPostgresOrderStore(db), cleanup
}

func setupMongoStore(t *testing.T) (*MongoOrderStore, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	s := NewMongoOrderStore(db)
	require.NoError(t, s.EnsureIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return s, cleanup
}

func TestPostgresOrderStore_Integration(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()

	exerciseOrderStore(t, s)
}

func TestMongoOrderStore_Integration(t *testing.T) {
	s, cleanup := setupMongoStore(t)
	defer cleanup()

	exerciseOrderStore(t, s)
}

// exerciseOrderStore runs the behaviour every OrderStore backend must share.
func exerciseOrderStore(t *testing.T, s OrderStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := newTestOrder(t, "user-1", base)
	newer := newTestOrder(t, "user-1", base.Add(time.Minute))
	other := newTestOrder(t, "user-2", base.Add(2*time.Minute))
	for _, o := range []*order.Order{older, newer, other} {
		require.NoError(t, s.Create(ctx, o))
	}

	t.Run("get round trips the snapshot", func(t *testing.T) {
		got, err := s.Get(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, older.Customer, got.Customer)
		assert.Equal(t, older.ShippingAddress, got.ShippingAddress)
		require.Len(t, got.Items, 1)
		assert.True(t, decimal.NewFromInt(10).Equal(got.Items[0].UnitPrice))
		assert.True(t, decimal.NewFromInt(27).Equal(got.Pricing.GrandTotal))
		assert.True(t, older.CreatedAt.Equal(got.CreatedAt))
		assert.False(t, got.IsPaid)
	})

	t.Run("get unknown id", func(t *testing.T) {
		_, err := s.Get(ctx, "ord_missing")
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		mine, err := s.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, newer.ID, mine[0].ID)
		assert.Equal(t, older.ID, mine[1].ID)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, other.ID, all[0].ID)
	})

	t.Run("mark paid has a single winner", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				applied, err := s.MarkPaid(ctx, newer.ID, order.PaymentReceipt{Gateway: "fake", TransactionID: "tx"}, base)
				assert.NoError(t, err)
				if applied {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())

		got, err := s.Get(ctx, newer.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPaid)
		require.NotNil(t, got.PaymentReceipt)
		assert.Equal(t, "tx", got.PaymentReceipt.TransactionID)
	})

	t.Run("mark paid unknown id", func(t *testing.T) {
		_, err := s.MarkPaid(ctx, "ord_missing", order.PaymentReceipt{}, base)
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("update status is conditional", func(t *testing.T) {
		applied, err := s.UpdateStatus(ctx, older.ID, order.StatusProcessing, order.StatusShipped, base)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = s.UpdateStatus(ctx, older.ID, order.StatusProcessing, order.StatusCancelled, base)
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := s.Get(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusShipped, got.Status)
		require.NotNil(t, got.ShippedAt)
		assert.Nil(t, got.CancelledAt)
	})
}
