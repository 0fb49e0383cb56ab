package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusops/campus-records-api/internal/models"
	"github.com/campusops/campus-records-api/pkg/jobs"
)

type auditRepository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
}

// AuditService is the append-only sink for security-relevant events. Writes
// happen asynchronously so a slow audit insert never stalls a login.
type AuditService struct {
	repo         auditRepository
	queue        *jobs.Queue
	logger       *zap.Logger
	storeTimeout time.Duration
}

// AuditServiceConfig tunes the background sink.
type AuditServiceConfig struct {
	Workers      int
	BufferSize   int
	StoreTimeout time.Duration
}

// NewAuditService constructs the sink and its worker queue. Call Start before
// recording events and Stop on shutdown to drain workers.
func NewAuditService(repo auditRepository, logger *zap.Logger, cfg AuditServiceConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, logger: logger, storeTimeout: cfg.StoreTimeout}
	s.queue = jobs.NewQueue("audit", s.persist, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 2,
		Logger:     logger,
	})
	return s
}

// Start launches the background workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop closes the intake and waits until every buffered event is persisted.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an audit event. Failures are logged, never surfaced to the
// caller: audit is a side effect, not part of the operation contract.
func (s *AuditService) Record(level, message, channel string) {
	event := &models.AuditEvent{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		Channel:   channel,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(jobs.Job{ID: event.ID, Payload: event}); err != nil {
		s.logger.Warn("failed to enqueue audit event", zap.Error(err), zap.String("message", message))
	}
}

func (s *AuditService) persist(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(*models.AuditEvent)
	if !ok {
		s.logger.Warn("audit queue received unexpected payload")
		return nil
	}
	storeCtx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	return s.repo.Create(storeCtx, event)
}
