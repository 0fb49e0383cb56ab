package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/campus-records-api/internal/service"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
	"github.com/campusops/campus-records-api/pkg/response"
)

// StudentHandler exposes per-student transcript and billing endpoints.
type StudentHandler struct {
	records *service.RecordsService
	billing *service.BillingService
	export  *service.ExportService
}

// NewStudentHandler creates a new handler.
func NewStudentHandler(records *service.RecordsService, billing *service.BillingService, export *service.ExportService) *StudentHandler {
	return &StudentHandler{records: records, billing: billing, export: export}
}

// Transcript godoc
// @Summary Get transcript
// @Description Compute a student's transcript with GPA
// @Tags Students
// @Produce json
// @Param studentID path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{studentID}/transcript [get]
func (h *StudentHandler) Transcript(c *gin.Context) {
	transcript, err := h.records.Transcript(c.Request.Context(), c.Param("studentID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, transcript, nil)
}

// ExportTranscript godoc
// @Summary Export transcript
// @Description Download a student's transcript as CSV or PDF
// @Tags Students
// @Produce octet-stream
// @Param studentID path string true "Student ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{studentID}/transcript/export [get]
func (h *StudentHandler) ExportTranscript(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")

	doc, err := h.export.Transcript(c.Request.Context(), c.Param("studentID"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// Balance godoc
// @Summary Get balance
// @Description Compute a student's tuition charges, payments, and outstanding balance
// @Tags Billing
// @Produce json
// @Param studentID path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{studentID}/balance [get]
func (h *StudentHandler) Balance(c *gin.Context) {
	summary, charges, err := h.billing.Balance(c.Request.Context(), c.Param("studentID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"summary": summary, "charges": charges}, nil)
}

// Payments godoc
// @Summary Payment history
// @Description List a student's recorded payments
// @Tags Billing
// @Produce json
// @Param studentID path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{studentID}/payments [get]
func (h *StudentHandler) Payments(c *gin.Context) {
	payments, err := h.billing.PaymentHistory(c.Request.Context(), c.Param("studentID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, payments, nil)
}

// RecordPayment godoc
// @Summary Record payment
// @Description Record a payment against a student's outstanding balance
// @Tags Billing
// @Accept json
// @Produce json
// @Param studentID path string true "Student ID"
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{studentID}/payments [post]
func (h *StudentHandler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}

	summary, err := h.billing.RecordPayment(c.Request.Context(), c.Param("studentID"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, summary, nil)
}
