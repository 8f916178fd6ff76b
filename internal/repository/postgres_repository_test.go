package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
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

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../../migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func newStoredOrder(orderID string) *domain.Order {
	return domain.NewOrder(orderID, "buyer@example.com", "9876543210",
		[]domain.OrderItem{
			{ProductRef: "sku-7", Title: "Silk Saree", UnitPrice: 3200, Quantity: 1},
			{ProductRef: "sku-9", Title: "Blouse", UnitPrice: 600, Quantity: 2},
		},
		domain.Address{Line1: "12 MG Road", City: "Pune", State: "MH", PinCode: "411001"},
		4400, 99, "cart-sig-"+orderID, time.Now())
}

func TestPostgresCreateOrder_Success(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newStoredOrder("ORD-PG-1")

	require.NoError(t, repo.Create(ctx, order))

	fetched, err := repo.GetByOrderID(ctx, "ORD-PG-1")
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, fetched.OrderID)
	assert.Equal(t, order.EmailID, fetched.EmailID)
	assert.Equal(t, domain.PaymentPending, fetched.PaymentStatus)
	assert.Equal(t, domain.StatusPending, fetched.Status)
	assert.Len(t, fetched.Items, 2)
	assert.Equal(t, "sku-7", fetched.Items[0].ProductRef)
	assert.Len(t, fetched.StatusHistory, 1)
	assert.Equal(t, 1, fetched.Version)
}

func TestPostgresCreateOrder_Duplicate(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newStoredOrder("ORD-PG-1")))
	err := repo.Create(ctx, newStoredOrder("ORD-PG-1"))
	assert.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestPostgresUpdate_OptimisticLock(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newStoredOrder("ORD-PG-1")))

	first, err := repo.GetByOrderID(ctx, "ORD-PG-1")
	require.NoError(t, err)
	second, err := repo.GetByOrderID(ctx, "ORD-PG-1")
	require.NoError(t, err)

	_, err = first.MarkPaid("pay_pg1", "sig", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.MarkAuthorized(time.Now())
	assert.ErrorIs(t, repo.Update(ctx, second), ErrOptimisticLock)

	fetched, err := repo.GetByOrderID(ctx, "ORD-PG-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, fetched.PaymentStatus)
	assert.Equal(t, "pay_pg1", fetched.GatewayPaymentRef)
	assert.Equal(t, 2, fetched.Version)
}

func TestPostgresGatewayRefLookups(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newStoredOrder("ORD-PG-1")
	require.NoError(t, repo.Create(ctx, order))

	order.GatewayOrderRef = "order_gw1"
	_, err := order.MarkPaid("pay_gw1", "", time.Now())
	require.NoError(t, err)
	order.RefundRef = "rfnd_gw1"
	require.NoError(t, repo.Update(ctx, order))

	byOrder, err := repo.GetByGatewayOrderRef(ctx, "order_gw1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-PG-1", byOrder.OrderID)

	byPayment, err := repo.GetByGatewayPaymentRef(ctx, "pay_gw1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-PG-1", byPayment.OrderID)

	byRefund, err := repo.GetByRefundRef(ctx, "rfnd_gw1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-PG-1", byRefund.OrderID)

	_, err = repo.GetByGatewayOrderRef(ctx, "order_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPostgresFindRefundRequested(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	queued := newStoredOrder("ORD-PG-Q")
	require.NoError(t, repo.Create(ctx, queued))
	_, err := queued.MarkPaid("pay_q", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, queued.Cancel(domain.ActorUser, time.Now()))
	require.NoError(t, repo.Update(ctx, queued))

	exhausted := newStoredOrder("ORD-PG-X")
	require.NoError(t, repo.Create(ctx, exhausted))
	_, err = exhausted.MarkPaid("pay_x", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, exhausted.Cancel(domain.ActorUser, time.Now()))
	exhausted.RefundRetryCount = domain.MaxRefundRetries
	require.NoError(t, repo.Update(ctx, exhausted))

	out, err := repo.FindRefundRequested(ctx, domain.MaxRefundRetries, 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ORD-PG-Q", out[0].OrderID)
}

func TestPostgresCatalog_UnitPrice(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO products (product_ref, title, price, active) VALUES
		 ('sku-7', 'Silk Saree', 3200, TRUE),
		 ('sku-old', 'Retired', 100, FALSE)`)
	require.NoError(t, err)

	catalog := NewCatalog(repo)

	price, err := catalog.UnitPrice(ctx, "sku-7")
	require.NoError(t, err)
	assert.Equal(t, float64(3200), price)

	_, err = catalog.UnitPrice(ctx, "sku-ghost")
	assert.ErrorIs(t, err, ErrProductNotFound)

	// Inactive products are not sellable.
	_, err = catalog.UnitPrice(ctx, "sku-old")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestPostgresComplaints(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	c := domain.NewComplaint("ORD-PG-1", "buyer@example.com", "", domain.ComplaintTypeReturn,
		"wrong size", "requesting a return", []string{"https://img.example/1.jpg"}, time.Now())
	require.NoError(t, repo.CreateComplaint(ctx, c))

	got, err := repo.GetComplaintByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintOpen, got.Status)
	assert.Len(t, got.Images, 1)

	now := time.Now()
	got.Status = domain.ComplaintApproved
	got.ReturnApprovedAt = &now
	require.NoError(t, repo.UpdateComplaint(ctx, got))

	list, err := repo.ListComplaints(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.ComplaintApproved, list[0].Status)
	assert.NotNil(t, list[0].ReturnApprovedAt)
}
