package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/campus-records-api/internal/models"
)

// AuditRepository appends to the audit_logs relation. Entries are never
// updated or deleted.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit event.
func (r *AuditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, level, message, channel, created_at) VALUES (:id, :level, :message, :channel, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

// ListRecent returns the most recent audit events for administrative review.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT id, level, message, channel, created_at FROM audit_logs ORDER BY created_at DESC LIMIT %d", limit)
	var events []models.AuditEvent
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
