package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/campus-records-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_code, semester, grade, created_at FROM enrollments WHERE id = $1 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment by id: %w", err)
	}
	return &enrollment, nil
}

// Exists reports whether the student already holds an enrollment for the course.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, courseCode string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_code = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseCode); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ExistsForCourse reports whether any enrollment references the course.
func (r *EnrollmentRepository) ExistsForCourse(ctx context.Context, courseCode string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE course_code = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseCode); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course enrollments: %w", err)
	}
	return true, nil
}

// SumCreditHours returns the student's total enrolled credit hours.
func (r *EnrollmentRepository) SumCreditHours(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COALESCE(SUM(c.credit_hours), 0) FROM enrollments e JOIN courses c ON c.code = e.course_code WHERE e.student_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, studentID); err != nil {
		return 0, fmt.Errorf("sum credit hours: %w", err)
	}
	return total, nil
}

// ListByStudent returns the student's enrollments with course detail.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_code, e.semester, e.grade, e.created_at,
        c.name AS course_name, c.credit_hours, c.instructor_name
        FROM enrollments e
        JOIN courses c ON c.code = e.course_code
        WHERE e.student_id = $1
        ORDER BY e.course_code ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment record with no grade.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_id, course_code, semester, grade, created_at)
        VALUES (:id, :student_id, :course_code, :semester, :grade, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes the enrollment for a student/course pair.
func (r *EnrollmentRepository) Delete(ctx context.Context, studentID, courseCode string) error {
	const query = `DELETE FROM enrollments WHERE student_id = $1 AND course_code = $2`
	res, err := r.db.ExecContext(ctx, query, studentID, courseCode)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetGrade records a letter grade on an enrollment.
func (r *EnrollmentRepository) SetGrade(ctx context.Context, id, grade string) error {
	const query = `UPDATE enrollments SET grade = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, grade)
	if err != nil {
		return fmt.Errorf("set grade: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
