package models

// InProgressGrade is displayed for enrollments without a grade. Such rows are
// excluded from both the GPA numerator and denominator.
const InProgressGrade = "In Progress"

// TranscriptEntry is one row of a student's transcript.
type TranscriptEntry struct {
	CourseCode  string `json:"course_code"`
	CourseName  string `json:"course_name"`
	CreditHours int    `json:"credit_hours"`
	Grade       string `json:"grade"`
}

// Transcript lists a student's courses with an overall GPA. GPA is nil when
// the student has no graded credits, never zero or NaN.
type Transcript struct {
	StudentID    string            `json:"student_id"`
	Entries      []TranscriptEntry `json:"entries"`
	TotalCredits int               `json:"total_credits"`
	GPA          *float64          `json:"gpa,omitempty"`
}
