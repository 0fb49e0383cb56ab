package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campusops/campus-records-api/internal/models"
)

func TestEnrollmentRepositorySumCreditHours(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(c.credit_hours), 0) FROM enrollments e JOIN courses c ON c.code = e.course_code WHERE e.student_id = $1")).
		WithArgs("60123456").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(15))

	total, err := repo.SumCreditHours(context.Background(), "60123456")
	require.NoError(t, err)
	require.Equal(t, 15, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	grade := "A"
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_code", "semester", "grade", "created_at", "course_name", "credit_hours", "instructor_name"}).
		AddRow("enr-1", "60123456", "CS101", "FALL2026", &grade, time.Now(), "Intro", 3, "Dr. Doe").
		AddRow("enr-2", "60123456", "MA201", "FALL2026", nil, time.Now(), "Calculus", 4, "Dr. Roe")
	mock.ExpectQuery("SELECT e.id, e.student_id, e.course_code, e.semester, e.grade, e.created_at").
		WithArgs("60123456").
		WillReturnRows(rows)

	enrollments, err := repo.ListByStudent(context.Background(), "60123456")
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	require.NotNil(t, enrollments[0].Grade)
	require.Equal(t, "A", *enrollments[0].Grade)
	require.Nil(t, enrollments[1].Grade)
	require.Equal(t, 4, enrollments[1].CreditHours)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "60123456", CourseCode: "CS101", Semester: "FALL2026"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE student_id = $1 AND course_code = $2")).
		WithArgs("60123456", "CS101").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "60123456", "CS101")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySetGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET grade = $2 WHERE id = $1")).
		WithArgs("enr-1", "B+").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetGrade(context.Background(), "enr-1", "B+"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET grade = $2 WHERE id = $1")).
		WithArgs("missing", "B+").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetGrade(context.Background(), "missing", "B+")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_code = $2 LIMIT 1")).
		WithArgs("60123456", "CS101").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "60123456", "CS101")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_code = $2 LIMIT 1")).
		WithArgs("60123456", "MA201").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.Exists(context.Background(), "60123456", "MA201")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
