package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/campus-records-api/internal/models"
)

// PaymentRepository handles the tuition payment ledger.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// SumByStudent returns the student's cumulative payments.
func (r *PaymentRepository) SumByStudent(ctx context.Context, studentID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE student_id = $1`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, studentID); err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}

// ListByStudent returns the ledger entries for a student, newest first.
func (r *PaymentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error) {
	const query = `SELECT id, student_id, amount, created_at FROM payments WHERE student_id = $1 ORDER BY created_at DESC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, studentID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// Create appends a payment to the ledger.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payments (id, student_id, amount, created_at) VALUES (:id, :student_id, :amount, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}
