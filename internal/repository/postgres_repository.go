package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

const orderColumns = `id, order_id, email_id, phone_number, items, address, total, shipping,
	payment_method, payment_status, status, current_step, status_history,
	gateway_order_ref, gateway_payment_ref, gateway_signature, gateway_receipt, failed_payment_ref,
	refund_ref, refund_context, refund_retry_count, cart_signature, admin_notes,
	delivered_at, cancelled_at, return_requested_at, return_accepted_at, return_received_at,
	return_completed_at, refund_attempted_at, refund_completed_at,
	version, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	addressJSON, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("failed to marshal address: %w", err)
	}
	historyJSON, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal status history: %w", err)
	}

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,NOW(),NOW())`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		order.OrderID,
		order.EmailID,
		order.PhoneNumber,
		itemsJSON,
		addressJSON,
		order.Total,
		order.Shipping,
		order.PaymentMethod,
		order.PaymentStatus,
		order.Status,
		order.CurrentStep,
		historyJSON,
		nullable(order.GatewayOrderRef),
		nullable(order.GatewayPaymentRef),
		nullable(order.GatewaySignature),
		nullable(order.GatewayReceipt),
		nullable(order.FailedPaymentRef),
		nullable(order.RefundRef),
		string(order.RefundContext),
		order.RefundRetryCount,
		order.CartSignature,
		order.AdminNotes,
		order.DeliveredAt,
		order.CancelledAt,
		order.ReturnRequestedAt,
		order.ReturnAcceptedAt,
		order.ReturnReceivedAt,
		order.ReturnCompletedAt,
		order.RefundAttemptedAt,
		order.RefundCompletedAt,
		1, // initial version
	)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	order.Version = 1
	return nil
}

// Update persists every mutable field with a version check. Zero rows
// affected means a concurrent writer won; the caller re-reads and retries.
func (r *Repository) Update(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	historyJSON, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal status history: %w", err)
	}

	query := `UPDATE orders SET
	            items = $1, total = $2, shipping = $3,
	            payment_status = $4, status = $5, current_step = $6, status_history = $7,
	            gateway_order_ref = $8, gateway_payment_ref = $9, gateway_signature = $10,
	            gateway_receipt = $11, failed_payment_ref = $12,
	            refund_ref = $13, refund_context = $14, refund_retry_count = $15,
	            admin_notes = $16,
	            delivered_at = $17, cancelled_at = $18, return_requested_at = $19,
	            return_accepted_at = $20, return_received_at = $21, return_completed_at = $22,
	            refund_attempted_at = $23, refund_completed_at = $24,
	            version = version + 1, updated_at = NOW()
	          WHERE id = $25 AND version = $26`

	result, execErr := r.db.ExecContext(ctx, query,
		itemsJSON,
		order.Total,
		order.Shipping,
		order.PaymentStatus,
		order.Status,
		order.CurrentStep,
		historyJSON,
		nullable(order.GatewayOrderRef),
		nullable(order.GatewayPaymentRef),
		nullable(order.GatewaySignature),
		nullable(order.GatewayReceipt),
		nullable(order.FailedPaymentRef),
		nullable(order.RefundRef),
		string(order.RefundContext),
		order.RefundRetryCount,
		order.AdminNotes,
		order.DeliveredAt,
		order.CancelledAt,
		order.ReturnRequestedAt,
		order.ReturnAcceptedAt,
		order.ReturnReceivedAt,
		order.ReturnCompletedAt,
		order.RefundAttemptedAt,
		order.RefundCompletedAt,
		order.ID,
		order.Version,
	)
	if execErr != nil {
		return fmt.Errorf("update order: %w", execErr)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return ErrOptimisticLock
	}
	order.Version++
	return nil
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.getOne(ctx, `order_id = $1`, orderID)
}

func (r *Repository) GetByGatewayOrderRef(ctx context.Context, ref string) (*domain.Order, error) {
	return r.getOne(ctx, `gateway_order_ref = $1`, ref)
}

func (r *Repository) GetByGatewayPaymentRef(ctx context.Context, ref string) (*domain.Order, error) {
	return r.getOne(ctx, `gateway_payment_ref = $1`, ref)
}

func (r *Repository) GetByRefundRef(ctx context.Context, ref string) (*domain.Order, error) {
	return r.getOne(ctx, `refund_ref = $1`, ref)
}

func (r *Repository) FindPendingByCartSignature(ctx context.Context, owner, cartSig string) (*domain.Order, error) {
	return r.getOne(ctx,
		`cart_signature = $1 AND payment_status = 'PENDING' AND (email_id = $2 OR phone_number = $2)`,
		cartSig, owner)
}

func (r *Repository) getOne(ctx context.Context, where string, args ...interface{}) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	row := r.db.QueryRowContext(ctx, query, args...)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

func (r *Repository) ListByOwner(ctx context.Context, emailID, phone string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE (email_id <> '' AND email_id = $1) OR (phone_number <> '' AND phone_number = $2)
	          ORDER BY created_at DESC`
	return r.list(ctx, query, emailID, phone)
}

func (r *Repository) ListAll(ctx context.Context) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	return r.list(ctx, query)
}

func (r *Repository) FindRefundRequested(ctx context.Context, maxRetries, limit int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE payment_status = 'REFUND_REQUESTED' AND refund_retry_count < $1
	          ORDER BY refund_attempted_at NULLS FIRST
	          LIMIT $2`
	return r.list(ctx, query, maxRetries, limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan order row: %w", scanErr)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order        domain.Order
		itemsJSON    []byte
		addressJSON  []byte
		historyJSON  []byte
		orderRef     sql.NullString
		paymentRef   sql.NullString
		signature    sql.NullString
		receipt      sql.NullString
		failedRef    sql.NullString
		refundRef    sql.NullString
		refundCtx    string
	)

	err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.EmailID,
		&order.PhoneNumber,
		&itemsJSON,
		&addressJSON,
		&order.Total,
		&order.Shipping,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.Status,
		&order.CurrentStep,
		&historyJSON,
		&orderRef,
		&paymentRef,
		&signature,
		&receipt,
		&failedRef,
		&refundRef,
		&refundCtx,
		&order.RefundRetryCount,
		&order.CartSignature,
		&order.AdminNotes,
		&order.DeliveredAt,
		&order.CancelledAt,
		&order.ReturnRequestedAt,
		&order.ReturnAcceptedAt,
		&order.ReturnReceivedAt,
		&order.ReturnCompletedAt,
		&order.RefundAttemptedAt,
		&order.RefundCompletedAt,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.Address); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &order.StatusHistory); err != nil {
			return nil, fmt.Errorf("unmarshal status history: %w", err)
		}
	}

	order.GatewayOrderRef = orderRef.String
	order.GatewayPaymentRef = paymentRef.String
	order.GatewaySignature = signature.String
	order.GatewayReceipt = receipt.String
	order.FailedPaymentRef = failedRef.String
	order.RefundRef = refundRef.String
	order.RefundContext = domain.RefundContext(refundCtx)
	return &order, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// complaint persistence

func (r *Repository) CreateComplaint(ctx context.Context, c *domain.Complaint) error {
	imagesJSON, err := json.Marshal(c.Images)
	if err != nil {
		return fmt.Errorf("failed to marshal complaint images: %w", err)
	}
	query := `INSERT INTO complaints (id, order_id, email_id, user_phone, type, title, message, images, status, admin_notes, created_at, updated_at)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.OrderID, c.EmailID, c.UserPhone, c.Type, c.Title, c.Message, imagesJSON, c.Status, c.AdminNotes)
	if err != nil {
		return fmt.Errorf("insert complaint: %w", err)
	}
	return nil
}

func (r *Repository) GetComplaintByID(ctx context.Context, id uuid.UUID) (*domain.Complaint, error) {
	query := `SELECT id, order_id, email_id, user_phone, type, title, message, images, status, admin_notes,
	                 return_approved_at, return_rejected_at, return_received_at, created_at, updated_at
	          FROM complaints WHERE id = $1`
	var (
		c          domain.Complaint
		imagesJSON []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.OrderID, &c.EmailID, &c.UserPhone, &c.Type, &c.Title, &c.Message, &imagesJSON,
		&c.Status, &c.AdminNotes,
		&c.ReturnApprovedAt, &c.ReturnRejectedAt, &c.ReturnReceivedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrComplaintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query complaint: %w", err)
	}
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &c.Images); err != nil {
			return nil, fmt.Errorf("unmarshal complaint images: %w", err)
		}
	}
	return &c, nil
}

func (r *Repository) ListComplaints(ctx context.Context) ([]*domain.Complaint, error) {
	query := `SELECT id, order_id, email_id, user_phone, type, title, message, images, status, admin_notes,
	                 return_approved_at, return_rejected_at, return_received_at, created_at, updated_at
	          FROM complaints ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query complaints: %w", err)
	}
	defer rows.Close()

	var out []*domain.Complaint
	for rows.Next() {
		var (
			c          domain.Complaint
			imagesJSON []byte
		)
		if err := rows.Scan(
			&c.ID, &c.OrderID, &c.EmailID, &c.UserPhone, &c.Type, &c.Title, &c.Message, &imagesJSON,
			&c.Status, &c.AdminNotes,
			&c.ReturnApprovedAt, &c.ReturnRejectedAt, &c.ReturnReceivedAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan complaint row: %w", err)
		}
		if len(imagesJSON) > 0 {
			if err := json.Unmarshal(imagesJSON, &c.Images); err != nil {
				return nil, fmt.Errorf("unmarshal complaint images: %w", err)
			}
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (r *Repository) UpdateComplaint(ctx context.Context, c *domain.Complaint) error {
	query := `UPDATE complaints SET
	            status = $1, admin_notes = $2,
	            return_approved_at = $3, return_rejected_at = $4, return_received_at = $5,
	            updated_at = NOW()
	          WHERE id = $6`
	result, err := r.db.ExecContext(ctx, query,
		c.Status, c.AdminNotes, c.ReturnApprovedAt, c.ReturnRejectedAt, c.ReturnReceivedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update complaint: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return ErrComplaintNotFound
	}
	return nil
}
