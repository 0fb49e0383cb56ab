package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/campus-records-api/internal/models"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
)

type mockCourseRepo struct {
	mu      sync.Mutex
	courses map[string]*models.Course
}

func newMockCourseRepo(courses ...*models.Course) *mockCourseRepo {
	m := &mockCourseRepo{courses: make(map[string]*models.Course)}
	for _, c := range courses {
		m.courses[c.Code] = c
	}
	return m
}

func (m *mockCourseRepo) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	course, ok := m.courses[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[course.Code] = course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[code]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, code)
	return nil
}

type mockEnrollmentRepo struct {
	mu          sync.Mutex
	courses     *mockCourseRepo
	enrollments []*models.Enrollment
	nextID      int
}

func newMockEnrollmentRepo(courses *mockCourseRepo) *mockEnrollmentRepo {
	return &mockEnrollmentRepo{courses: courses}
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, courseCode string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseCode == courseCode {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) ExistsForCourse(ctx context.Context, courseCode string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.CourseCode == courseCode {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) SumCreditHours(ctx context.Context, studentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, e := range m.enrollments {
		if e.StudentID != studentID {
			continue
		}
		if course, ok := m.courses.courses[e.CourseCode]; ok {
			total += course.CreditHours
		}
	}
	return total, nil
}

func (m *mockEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if e.StudentID != studentID {
			continue
		}
		detail := models.EnrollmentDetail{Enrollment: *e}
		if course, ok := m.courses.courses[e.CourseCode]; ok {
			detail.CourseName = course.Name
			detail.CreditHours = course.CreditHours
			detail.InstructorName = course.InstructorName
		}
		out = append(out, detail)
	}
	return out, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	enrollment.ID = fmt.Sprintf("enr-%d", m.nextID)
	m.enrollments = append(m.enrollments, enrollment)
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, studentID, courseCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseCode == courseCode {
			m.enrollments = append(m.enrollments[:i], m.enrollments[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockEnrollmentRepo) SetGrade(ctx context.Context, id, grade string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.ID == id {
			g := grade
			e.Grade = &g
			return nil
		}
	}
	return sql.ErrNoRows
}

type mockIdentities struct {
	identities map[string]*models.Identity
}

func (m *mockIdentities) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	identity, ok := m.identities[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return identity, nil
}

func activeStudent(id string) *mockIdentities {
	return &mockIdentities{identities: map[string]*models.Identity{
		id: {ID: id, FullName: "Test Student", Role: models.RoleStudent, Active: true},
	}}
}

func newRecordsFixture(courses ...*models.Course) (*RecordsService, *mockCourseRepo, *mockEnrollmentRepo) {
	courseRepo := newMockCourseRepo(courses...)
	enrollmentRepo := newMockEnrollmentRepo(courseRepo)
	svc := NewRecordsService(courseRepo, enrollmentRepo, activeStudent("60123456"), &mockAuditSink{}, nil, nil, RecordsConfig{CreditHourLimit: 18})
	return svc, courseRepo, enrollmentRepo
}

func TestEnrollSuccess(t *testing.T) {
	svc, _, enrollments := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"})
	require.NoError(t, err)
	assert.Equal(t, "CS101", enrollment.CourseCode)
	assert.Len(t, enrollments.enrollments, 1)
}

func TestEnrollDuplicate(t *testing.T) {
	svc, _, _ := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollCreditLimit(t *testing.T) {
	svc, _, _ := newRecordsFixture(
		&models.Course{Code: "CS500", Name: "Load", CreditHours: 15},
		&models.Course{Code: "CS104", Name: "Four", CreditHours: 4},
		&models.Course{Code: "CS103", Name: "Three", CreditHours: 3},
	)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS500", Semester: "FALL2026"})
	require.NoError(t, err)

	// 15 + 4 breaches the 18 hour limit; 15 + 3 lands exactly on it.
	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS104", Semester: "FALL2026"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErrors.FromError(err).Code)

	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS103", Semester: "FALL2026"})
	require.NoError(t, err)
}

func TestEnrollUnknownStudent(t *testing.T) {
	svc, _, _ := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60999999", CourseCode: "CS101", Semester: "FALL2026"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollUnknownCourse(t *testing.T) {
	svc, _, _ := newRecordsFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS404", Semester: "FALL2026"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollConcurrentStaysUnderLimit(t *testing.T) {
	courses := []*models.Course{
		{Code: "CS510", Name: "Ten A", CreditHours: 10},
		{Code: "CS511", Name: "Ten B", CreditHours: 10},
	}
	svc, _, enrollments := newRecordsFixture(courses...)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, code := range []string{"CS510", "CS511"} {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			_, errs[i] = svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: code, Semester: "FALL2026"})
		}(i, code)
	}
	wg.Wait()

	// Exactly one of the two 10 hour courses fits under the 18 hour limit.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErrors.FromError(err).Code)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, enrollments.enrollments, 1)
}

func TestDropSuccess(t *testing.T) {
	svc, _, enrollments := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"})
	require.NoError(t, err)

	err = svc.Drop(context.Background(), DropRequest{StudentID: "60123456", CourseCode: "CS101"})
	require.NoError(t, err)
	assert.Empty(t, enrollments.enrollments)
}

func TestDropNotEnrolled(t *testing.T) {
	svc, _, _ := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	err := svc.Drop(context.Background(), DropRequest{StudentID: "60123456", CourseCode: "CS101"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSetGradeSuccess(t *testing.T) {
	svc, _, enrollments := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	created, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"})
	require.NoError(t, err)

	updated, err := svc.SetGrade(context.Background(), created.ID, SetGradeRequest{Grade: "A-"})
	require.NoError(t, err)
	require.NotNil(t, updated.Grade)
	assert.Equal(t, "A-", *updated.Grade)
	require.NotNil(t, enrollments.enrollments[0].Grade)
	assert.Equal(t, "A-", *enrollments.enrollments[0].Grade)
}

func TestSetGradeUnrecognized(t *testing.T) {
	svc, _, _ := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	created, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"})
	require.NoError(t, err)

	for _, grade := range []string{"E", "a", "B++", "PASS"} {
		_, err := svc.SetGrade(context.Background(), created.ID, SetGradeRequest{Grade: grade})
		require.Error(t, err, "grade %q should be rejected", grade)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestSetGradeUnknownEnrollment(t *testing.T) {
	svc, _, _ := newRecordsFixture()

	_, err := svc.SetGrade(context.Background(), "missing", SetGradeRequest{Grade: "A"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCreateCourseDuplicateCode(t *testing.T) {
	svc, _, _ := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	_, err := svc.CreateCourse(context.Background(), CreateCourseRequest{Code: "CS101", Name: "Intro Again", CreditHours: 3, InstructorName: "Dr. Doe"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDeleteCourseBlockedByEnrollments(t *testing.T) {
	svc, courseRepo, _ := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"})
	require.NoError(t, err)

	err = svc.DeleteCourse(context.Background(), "CS101")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, courseRepo.courses, "CS101")

	require.NoError(t, svc.Drop(context.Background(), DropRequest{StudentID: "60123456", CourseCode: "CS101"}))
	require.NoError(t, svc.DeleteCourse(context.Background(), "CS101"))
	assert.NotContains(t, courseRepo.courses, "CS101")
}

func TestDeleteCourseNotFound(t *testing.T) {
	svc, _, _ := newRecordsFixture()

	err := svc.DeleteCourse(context.Background(), "CS404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTranscriptGPA(t *testing.T) {
	svc, _, _ := newRecordsFixture(
		&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3},
		&models.Course{Code: "MA201", Name: "Calculus", CreditHours: 3},
		&models.Course{Code: "PH110", Name: "Physics", CreditHours: 4},
	)

	for _, code := range []string{"CS101", "MA201", "PH110"} {
		_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: code, Semester: "FALL2026"})
		require.NoError(t, err)
	}

	list, err := svc.enrollments.ListByStudent(context.Background(), "60123456")
	require.NoError(t, err)
	require.Len(t, list, 3)

	// A on 3 hours and B on 3 hours: (12 + 9) / 6 = 3.5. PH110 stays
	// ungraded and must not touch either side of the ratio.
	_, err = svc.SetGrade(context.Background(), list[0].ID, SetGradeRequest{Grade: "A"})
	require.NoError(t, err)
	_, err = svc.SetGrade(context.Background(), list[1].ID, SetGradeRequest{Grade: "B"})
	require.NoError(t, err)

	transcript, err := svc.Transcript(context.Background(), "60123456")
	require.NoError(t, err)
	require.NotNil(t, transcript.GPA)
	assert.InDelta(t, 3.5, *transcript.GPA, 1e-9)
	assert.Equal(t, 10, transcript.TotalCredits)

	require.Len(t, transcript.Entries, 3)
	assert.Equal(t, models.InProgressGrade, transcript.Entries[2].Grade)
}

func TestTranscriptNoGradedCourses(t *testing.T) {
	svc, _, _ := newRecordsFixture(&models.Course{Code: "CS101", Name: "Intro", CreditHours: 3})

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"})
	require.NoError(t, err)

	transcript, err := svc.Transcript(context.Background(), "60123456")
	require.NoError(t, err)
	assert.Nil(t, transcript.GPA)
	assert.Equal(t, 3, transcript.TotalCredits)
	require.Len(t, transcript.Entries, 1)
	assert.Equal(t, models.InProgressGrade, transcript.Entries[0].Grade)
}

func TestTranscriptUnknownStudent(t *testing.T) {
	svc, _, _ := newRecordsFixture()

	_, err := svc.Transcript(context.Background(), "60999999")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
