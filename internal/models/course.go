package models

import "time"

// Course describes a catalog entry keyed by course code.
type Course struct {
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	CreditHours    int       `db:"credit_hours" json:"credit_hours"`
	InstructorName string    `db:"instructor_name" json:"instructor_name"`
	Description    string    `db:"description" json:"description"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// CourseFilter provides filters for catalog listings.
type CourseFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
