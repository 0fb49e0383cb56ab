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

type recordsCourseRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, code string) error
}

type recordsEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Exists(ctx context.Context, studentID, courseCode string) (bool, error)
	ExistsForCourse(ctx context.Context, courseCode string) (bool, error)
	SumCreditHours(ctx context.Context, studentID string) (int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, studentID, courseCode string) error
	SetGrade(ctx context.Context, id, grade string) error
}

type identityReader interface {
	FindByID(ctx context.Context, id string) (*models.Identity, error)
}

// gradePoints is the fixed letter-to-points table. Grades assigned through
// SetGrade are always members; grades already in the store that fall outside
// the table score 0.0 on the transcript.
var gradePoints = map[string]float64{
	"A": 4.0, "A-": 3.7,
	"B+": 3.3, "B": 3.0, "B-": 2.7,
	"C+": 2.3, "C": 2.0, "C-": 1.7,
	"D+": 1.3, "D": 1.0,
	"F": 0.0,
}

// EnrollRequest describes an enrollment creation payload.
type EnrollRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	CourseCode string `json:"course_code" validate:"required"`
	Semester   string `json:"semester" validate:"required"`
}

// DropRequest describes a drop payload.
type DropRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	CourseCode string `json:"course_code" validate:"required"`
}

// CreateCourseRequest describes a catalog entry payload.
type CreateCourseRequest struct {
	Code           string `json:"code" validate:"required"`
	Name           string `json:"name" validate:"required"`
	CreditHours    int    `json:"credit_hours" validate:"required,gt=0"`
	InstructorName string `json:"instructor_name" validate:"required"`
	Description    string `json:"description"`
}

// SetGradeRequest assigns a letter grade to an enrollment.
type SetGradeRequest struct {
	Grade string `json:"grade" validate:"required"`
}

// RecordsConfig carries the academic constants.
type RecordsConfig struct {
	CreditHourLimit int
	StoreTimeout    time.Duration
}

// RecordsService owns enrollment, drop, grading, and transcript computation.
type RecordsService struct {
	courses     recordsCourseRepository
	enrollments recordsEnrollmentRepository
	identities  identityReader
	audit       auditSink
	validator   *validator.Validate
	logger      *zap.Logger
	config      RecordsConfig
	studentLock *keyedMutex
}

// NewRecordsService constructs RecordsService.
func NewRecordsService(courses recordsCourseRepository, enrollments recordsEnrollmentRepository, identities identityReader, audit auditSink, validate *validator.Validate, logger *zap.Logger, config RecordsConfig) *RecordsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CreditHourLimit <= 0 {
		config.CreditHourLimit = 18
	}
	return &RecordsService{
		courses:     courses,
		enrollments: enrollments,
		identities:  identities,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		config:      config,
		studentLock: newKeyedMutex(),
	}
}

// ListCourses returns catalog entries with pagination metadata.
func (s *RecordsService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	courses, total, err := s.courses.List(storeCtx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// CreateCourse adds a catalog entry.
func (s *RecordsService) CreateCourse(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	if _, err := s.courses.FindByCode(storeCtx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "failed to check course code")
	}

	course := &models.Course{
		Code:           req.Code,
		Name:           req.Name,
		CreditHours:    req.CreditHours,
		InstructorName: req.InstructorName,
		Description:    req.Description,
	}
	if err := s.courses.Create(storeCtx, course); err != nil {
		return nil, storeError(err, "failed to create course")
	}
	return course, nil
}

// DeleteCourse removes a catalog entry. Deletion is blocked while any
// enrollment references the course.
func (s *RecordsService) DeleteCourse(ctx context.Context, code string) error {
	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	if _, err := s.courses.FindByCode(storeCtx, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return storeError(err, "failed to load course")
	}

	inUse, err := s.enrollments.ExistsForCourse(storeCtx, code)
	if err != nil {
		return storeError(err, "failed to check course enrollments")
	}
	if inUse {
		return appErrors.Clone(appErrors.ErrConflict, "course has active enrollments")
	}

	if err := s.courses.Delete(storeCtx, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return storeError(err, "failed to delete course")
	}

	s.audit.Record(models.AuditLevelInfo, fmt.Sprintf("course deleted: %s", code), "registrar")
	return nil
}

// Enroll registers a student in a course. The duplicate check, the credit
// limit check, and the insert run under the student's lock so concurrent
// requests cannot jointly exceed the limit.
func (s *RecordsService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	student, err := s.identities.FindByID(storeCtx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "student account is inactive")
	}

	course, err := s.courses.FindByCode(storeCtx, req.CourseCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, storeError(err, "failed to load course")
	}

	unlock := s.studentLock.Lock(req.StudentID)
	defer unlock()

	exists, err := s.enrollments.Exists(storeCtx, req.StudentID, req.CourseCode)
	if err != nil {
		return nil, storeError(err, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
	}

	current, err := s.enrollments.SumCreditHours(storeCtx, req.StudentID)
	if err != nil {
		return nil, storeError(err, "failed to sum credit hours")
	}
	if current+course.CreditHours > s.config.CreditHourLimit {
		return nil, appErrors.Clone(appErrors.ErrLimitExceeded, fmt.Sprintf("enrollment would exceed the %d credit hour limit", s.config.CreditHourLimit))
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		CourseCode: req.CourseCode,
		Semester:   req.Semester,
	}
	if err := s.enrollments.Create(storeCtx, enrollment); err != nil {
		return nil, storeError(err, "failed to create enrollment")
	}

	return enrollment, nil
}

// Drop removes a student's enrollment in a course.
func (s *RecordsService) Drop(ctx context.Context, req DropRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid drop payload")
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	unlock := s.studentLock.Lock(req.StudentID)
	defer unlock()

	if err := s.enrollments.Delete(storeCtx, req.StudentID, req.CourseCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in course")
		}
		return storeError(err, "failed to drop enrollment")
	}
	return nil
}

// SetGrade assigns a letter grade to an enrollment. Unrecognized letters are
// rejected, never silently mapped.
func (s *RecordsService) SetGrade(ctx context.Context, enrollmentID string, req SetGradeRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if _, ok := gradePoints[req.Grade]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unrecognized grade %q", req.Grade))
	}

	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	enrollment, err := s.enrollments.FindByID(storeCtx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, storeError(err, "failed to load enrollment")
	}

	if err := s.enrollments.SetGrade(storeCtx, enrollmentID, req.Grade); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, storeError(err, "failed to set grade")
	}

	s.audit.Record(models.AuditLevelInfo, fmt.Sprintf("grade %s set on enrollment %s", req.Grade, enrollmentID), enrollment.StudentID)

	enrollment.Grade = &req.Grade
	return enrollment, nil
}

// Transcript computes the student's transcript and GPA. Ungraded courses are
// reported as in progress and excluded from both sides of the GPA ratio.
func (s *RecordsService) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	storeCtx, cancel := storeContext(ctx, s.config.StoreTimeout)
	defer cancel()

	if _, err := s.identities.FindByID(storeCtx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to load student")
	}

	enrollments, err := s.enrollments.ListByStudent(storeCtx, studentID)
	if err != nil {
		return nil, storeError(err, "failed to list enrollments")
	}

	transcript := &models.Transcript{StudentID: studentID, Entries: make([]models.TranscriptEntry, 0, len(enrollments))}
	totalPoints := 0.0
	gradedCredits := 0

	for _, e := range enrollments {
		entry := models.TranscriptEntry{
			CourseCode:  e.CourseCode,
			CourseName:  e.CourseName,
			CreditHours: e.CreditHours,
			Grade:       models.InProgressGrade,
		}
		if e.Grade != nil && *e.Grade != "" {
			entry.Grade = *e.Grade
			totalPoints += gradePoints[*e.Grade] * float64(e.CreditHours)
			gradedCredits += e.CreditHours
		}
		transcript.Entries = append(transcript.Entries, entry)
		transcript.TotalCredits += e.CreditHours
	}

	if gradedCredits > 0 {
		gpa := totalPoints / float64(gradedCredits)
		transcript.GPA = &gpa
	}

	return transcript, nil
}
