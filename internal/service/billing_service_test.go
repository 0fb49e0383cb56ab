package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/campus-records-api/internal/models"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
)

type mockPaymentRepo struct {
	mu       sync.Mutex
	payments []*models.Payment
}

func (m *mockPaymentRepo) SumByStudent(ctx context.Context, studentID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, p := range m.payments {
		if p.StudentID == studentID {
			total += p.Amount
		}
	}
	return total, nil
}

func (m *mockPaymentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.StudentID == studentID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, payment)
	return nil
}

func newBillingFixture(t *testing.T, enrolledCodes []string, courses ...*models.Course) (*BillingService, *mockPaymentRepo) {
	t.Helper()
	courseRepo := newMockCourseRepo(courses...)
	enrollmentRepo := newMockEnrollmentRepo(courseRepo)
	for _, code := range enrolledCodes {
		require.NoError(t, enrollmentRepo.Create(context.Background(), &models.Enrollment{StudentID: "60123456", CourseCode: code, Semester: "FALL2026"}))
	}
	paymentRepo := &mockPaymentRepo{}
	svc := NewBillingService(enrollmentRepo, courseRepo, paymentRepo, activeStudent("60123456"), &mockAuditSink{}, nil, nil, BillingConfig{CostPerCreditHour: 975})
	return svc, paymentRepo
}

func TestTuitionCost(t *testing.T) {
	svc, _ := newBillingFixture(t, nil, &models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	cost, err := svc.TuitionCost(context.Background(), "CS101")
	require.NoError(t, err)
	assert.Equal(t, 2925.0, cost)
}

func TestTuitionCostUnknownCourse(t *testing.T) {
	svc, _ := newBillingFixture(t, nil)

	_, err := svc.TuitionCost(context.Background(), "CS404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBalanceSummary(t *testing.T) {
	svc, payments := newBillingFixture(t, []string{"CS101", "MA201"},
		&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3},
		&models.Course{Code: "MA201", Name: "Calculus", CreditHours: 4},
	)
	payments.payments = append(payments.payments, &models.Payment{StudentID: "60123456", Amount: 1000})

	summary, charges, err := svc.Balance(context.Background(), "60123456")
	require.NoError(t, err)
	assert.Equal(t, 6825.0, summary.TotalCost)
	assert.Equal(t, 1000.0, summary.TotalPaid)
	assert.Equal(t, 5825.0, summary.Outstanding)
	require.Len(t, charges, 2)
	assert.Equal(t, 2925.0, charges[0].Cost)
	assert.Equal(t, 3900.0, charges[1].Cost)
}

func TestBalanceUnknownStudent(t *testing.T) {
	svc, _ := newBillingFixture(t, nil)

	_, _, err := svc.Balance(context.Background(), "60999999")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRecordPaymentReducesOutstanding(t *testing.T) {
	svc, payments := newBillingFixture(t, []string{"CS101"}, &models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	summary, err := svc.RecordPayment(context.Background(), "60123456", RecordPaymentRequest{Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1925.0, summary.Outstanding)
	assert.Len(t, payments.payments, 1)
}

func TestRecordPaymentExactBalance(t *testing.T) {
	svc, _ := newBillingFixture(t, []string{"CS101"}, &models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	summary, err := svc.RecordPayment(context.Background(), "60123456", RecordPaymentRequest{Amount: 2925})
	require.NoError(t, err)
	assert.Equal(t, 0.0, summary.Outstanding)
}

func TestRecordPaymentExceedsBalance(t *testing.T) {
	svc, payments := newBillingFixture(t, []string{"CS101"}, &models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	_, err := svc.RecordPayment(context.Background(), "60123456", RecordPaymentRequest{Amount: 3000})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErrors.FromError(err).Code)
	assert.Empty(t, payments.payments)
}

func TestRecordPaymentNonPositiveAmount(t *testing.T) {
	svc, _ := newBillingFixture(t, []string{"CS101"}, &models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	for _, amount := range []float64{0, -50} {
		_, err := svc.RecordPayment(context.Background(), "60123456", RecordPaymentRequest{Amount: amount})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestRecordPaymentConcurrentCannotOvershoot(t *testing.T) {
	svc, payments := newBillingFixture(t, []string{"CS101"}, &models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	// Outstanding is 2925. Two concurrent 2000 payments would overshoot
	// together; only one may land.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RecordPayment(context.Background(), "60123456", RecordPaymentRequest{Amount: 2000})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErrors.FromError(err).Code)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, payments.payments, 1)
}

func TestPaymentHistory(t *testing.T) {
	svc, payments := newBillingFixture(t, []string{"CS101"}, &models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})
	payments.payments = append(payments.payments,
		&models.Payment{ID: "p1", StudentID: "60123456", Amount: 500},
		&models.Payment{ID: "p2", StudentID: "60123456", Amount: 250},
		&models.Payment{ID: "p3", StudentID: "60777777", Amount: 999},
	)

	history, err := svc.PaymentHistory(context.Background(), "60123456")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 500.0, history[0].Amount)
	assert.Equal(t, 250.0, history[1].Amount)
}
