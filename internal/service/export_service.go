package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/campusops/campus-records-api/internal/models"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
	"github.com/campusops/campus-records-api/pkg/export"
)

type transcriptComputer interface {
	Transcript(ctx context.Context, studentID string) (*models.Transcript, error)
}

// ExportService renders transcripts as downloadable documents.
type ExportService struct {
	records transcriptComputer
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewExportService constructs ExportService.
func NewExportService(records transcriptComputer) *ExportService {
	return &ExportService{records: records, csv: export.NewCSVExporter(), pdf: export.NewPDFExporter()}
}

// TranscriptExport holds the rendered document and its content type.
type TranscriptExport struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Transcript renders a student's transcript in the requested format.
func (s *ExportService) Transcript(ctx context.Context, studentID, format string) (*TranscriptExport, error) {
	transcript, err := s.records.Transcript(ctx, studentID)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Title:   fmt.Sprintf("Transcript %s", studentID),
		Columns: []string{"Course Code", "Course Name", "Credit Hours", "Grade"},
	}
	for _, entry := range transcript.Entries {
		table.Rows = append(table.Rows, []string{
			entry.CourseCode,
			entry.CourseName,
			strconv.Itoa(entry.CreditHours),
			entry.Grade,
		})
	}

	footer := "No completed courses to calculate GPA."
	if transcript.GPA != nil {
		footer = fmt.Sprintf("Total Credits: %d    GPA: %.2f", transcript.TotalCredits, *transcript.GPA)
	}

	switch format {
	case "csv":
		body, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &TranscriptExport{
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("transcript-%s.csv", studentID),
			Body:        body,
		}, nil
	case "pdf":
		body, err := s.pdf.Render(table, footer)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &TranscriptExport{
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("transcript-%s.pdf", studentID),
			Body:        body,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
