package models

import "time"

// Enrollment ties a student to a course for a semester. The grade stays NULL
// until an instructor assigns one; assigning a grade never removes the row.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CourseCode string    `db:"course_code" json:"course_code"`
	Semester   string    `db:"semester" json:"semester"`
	Grade      *string   `db:"grade" json:"grade,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches Enrollment with course info for listings.
type EnrollmentDetail struct {
	Enrollment
	CourseName     string `db:"course_name" json:"course_name"`
	CreditHours    int    `db:"credit_hours" json:"credit_hours"`
	InstructorName string `db:"instructor_name" json:"instructor_name"`
}
