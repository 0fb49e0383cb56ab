package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/campus-records-api/internal/models"
)

type capturingAuditRepo struct {
	mu     sync.Mutex
	events []*models.AuditEvent
	fail   int
	delay  time.Duration
}

func (r *capturingAuditRepo) Create(ctx context.Context, event *models.AuditEvent) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("store down")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *capturingAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAuditServicePersistsAsync(t *testing.T) {
	repo := &capturingAuditRepo{}
	svc := NewAuditService(repo, nil, AuditServiceConfig{Workers: 2, BufferSize: 8})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(models.AuditLevelWarning, "login failed for id \"60999999\"", "10.0.0.1")
	svc.Record(models.AuditLevelInfo, "login succeeded: 60123456", "10.0.0.1")

	waitFor(t, func() bool { return repo.count() == 2 })

	repo.mu.Lock()
	defer repo.mu.Unlock()
	levels := map[string]bool{}
	for _, e := range repo.events {
		levels[e.Level] = true
		assert.Equal(t, "10.0.0.1", e.Channel)
		assert.NotEmpty(t, e.ID)
	}
	assert.True(t, levels[models.AuditLevelWarning])
	assert.True(t, levels[models.AuditLevelInfo])
}

func TestAuditServiceRecordBeforeStart(t *testing.T) {
	repo := &capturingAuditRepo{}
	svc := NewAuditService(repo, nil, AuditServiceConfig{})

	// Must not panic or block; the event is dropped with a log line.
	svc.Record(models.AuditLevelInfo, "early event", "system")
	assert.Equal(t, 0, repo.count())
}

func TestAuditServiceStopDrainsBufferedEvents(t *testing.T) {
	repo := &capturingAuditRepo{delay: 5 * time.Millisecond}
	svc := NewAuditService(repo, nil, AuditServiceConfig{Workers: 1, BufferSize: 8})
	svc.Start(context.Background())

	svc.Record(models.AuditLevelInfo, "event one", "system")
	svc.Record(models.AuditLevelInfo, "event two", "system")
	svc.Record(models.AuditLevelInfo, "event three", "system")

	require.NotPanics(t, svc.Stop)
	assert.Equal(t, 3, repo.count())
}
