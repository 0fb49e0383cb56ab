package models

import "time"

// Payment is one row of the tuition ledger. Amounts are positive and the
// cumulative total never exceeds the tuition owed at insert time.
type Payment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Amount    float64   `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BalanceSummary reports a student's tuition position.
type BalanceSummary struct {
	StudentID   string  `json:"student_id"`
	TotalCost   float64 `json:"total_cost"`
	TotalPaid   float64 `json:"total_paid"`
	Outstanding float64 `json:"outstanding"`
}

// CourseCharge itemizes the tuition cost of one enrolled course.
type CourseCharge struct {
	CourseCode  string  `db:"course_code" json:"course_code"`
	CreditHours int     `db:"credit_hours" json:"credit_hours"`
	Cost        float64 `json:"cost"`
}
