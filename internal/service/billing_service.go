package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/campus-records-api/internal/models"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
)

type billingEnrollmentReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type billingCourseReader interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

type paymentRepository interface {
	SumByStudent(ctx context.Context, studentID string) (float64, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
}

// RecordPaymentRequest describes a tuition payment payload.
type RecordPaymentRequest struct {
	Amount float64 `json:"amount" validate:"required"`
}

// BillingConfig carries the tuition constants.
type BillingConfig struct {
	CostPerCreditHour float64
	StoreTimeout      time.Duration
}

// BillingService derives tuition costs and maintains the payment ledger.
type BillingService struct {
	enrollments billingEnrollmentReader
	courses     billingCourseReader
	payments    paymentRepository
	identities  identityReader
	audit       auditSink
	validator   *validator.Validate
	logger      *zap.Logger
	config      BillingConfig
	studentLock *keyedMutex
}

// NewBillingService constructs BillingService.
func NewBillingService(enrollments billingEnrollmentReader, courses billingCourseReader, payments paymentRepository, identities identityReader, audit auditSink, validate *validator.Validate, logger *zap.Logger, config BillingConfig) *BillingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CostPerCreditHour <= 0 {
		config.CostPerCreditHour = 975
	}
	return &BillingService{
		enrollments: enrollments,
		courses:     courses,
		payments:    payments,
		identities:  identities,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		config:      config,
		studentLock: newKeyedMutex(),
	}
}

// TuitionCost returns the cost of one course: credit hours times the
// configured per-credit rate.
func (s *BillingService) TuitionCost(ctx context.Context, courseCode string) (float64, error) {
	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	course, err := s.courses.FindByCode(storeCtx, courseCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return 0, storeError(err, "failed to load course")
	}
	return float64(course.CreditHours) * s.config.CostPerCreditHour, nil
}

// Balance reports the student's tuition position: total cost over current
// enrollments minus total payments.
func (s *BillingService) Balance(ctx context.Context, studentID string) (*models.BalanceSummary, []models.CourseCharge, error) {
	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	return s.balance(storeCtx, studentID)
}

func (s *BillingService) balance(ctx context.Context, studentID string) (*models.BalanceSummary, []models.CourseCharge, error) {
	if _, err := s.identities.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, storeError(err, "failed to load student")
	}

	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, nil, storeError(err, "failed to list enrollments")
	}

	charges := make([]models.CourseCharge, 0, len(enrollments))
	totalCost := 0.0
	for _, e := range enrollments {
		cost := float64(e.CreditHours) * s.config.CostPerCreditHour
		totalCost += cost
		charges = append(charges, models.CourseCharge{
			CourseCode:  e.CourseCode,
			CreditHours: e.CreditHours,
			Cost:        cost,
		})
	}

	totalPaid, err := s.payments.SumByStudent(ctx, studentID)
	if err != nil {
		return nil, nil, storeError(err, "failed to sum payments")
	}

	summary := &models.BalanceSummary{
		StudentID:   studentID,
		TotalCost:   totalCost,
		TotalPaid:   totalPaid,
		Outstanding: totalCost - totalPaid,
	}
	return summary, charges, nil
}

// PaymentHistory returns the student's ledger entries.
func (s *BillingService) PaymentHistory(ctx context.Context, studentID string) ([]models.Payment, error) {
	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	if _, err := s.identities.FindByID(storeCtx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to load student")
	}

	payments, err := s.payments.ListByStudent(storeCtx, studentID)
	if err != nil {
		return nil, storeError(err, "failed to list payments")
	}
	return payments, nil
}

// RecordPayment appends a payment to the ledger. The balance check and the
// insert run under the student's lock so concurrent payments cannot jointly
// overshoot the outstanding balance.
func (s *BillingService) RecordPayment(ctx context.Context, studentID string, req RecordPaymentRequest) (*models.BalanceSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if req.Amount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment amount must be greater than 0")
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	unlock := s.studentLock.Lock(studentID)
	defer unlock()

	summary, _, err := s.balance(storeCtx, studentID)
	if err != nil {
		return nil, err
	}

	if req.Amount > summary.Outstanding {
		return nil, appErrors.Clone(appErrors.ErrLimitExceeded, "payment exceeds the outstanding balance")
	}

	payment := &models.Payment{StudentID: studentID, Amount: req.Amount}
	if err := s.payments.Create(storeCtx, payment); err != nil {
		return nil, storeError(err, "failed to record payment")
	}

	s.audit.Record(models.AuditLevelInfo, fmt.Sprintf("payment of %.2f recorded for %s", req.Amount, studentID), studentID)

	summary.TotalPaid += req.Amount
	summary.Outstanding -= req.Amount
	return summary, nil
}
