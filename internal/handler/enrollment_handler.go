package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/campus-records-api/internal/models"
	"github.com/campusops/campus-records-api/internal/service"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
	"github.com/campusops/campus-records-api/pkg/response"
)

// EnrollmentHandler exposes enrollment, drop, and grading endpoints.
type EnrollmentHandler struct {
	service *service.RecordsService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc *service.RecordsService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Enroll godoc
// @Summary Enroll in course
// @Description Enroll a student in a course, subject to the credit hour limit
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	// Students may only act on their own record.
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		req.StudentID = claims.IdentityID
	}

	enrollment, err := h.service.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, enrollment)
}

// Drop godoc
// @Summary Drop course
// @Description Remove a student's enrollment in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.DropRequest true "Drop payload"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments [delete]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	var req service.DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid drop payload"))
		return
	}

	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		req.StudentID = claims.IdentityID
	}

	if err := h.service.Drop(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// SetGrade godoc
// @Summary Assign grade
// @Description Assign a letter grade to an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SetGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/grade [put]
func (h *EnrollmentHandler) SetGrade(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enrollment id required"))
		return
	}

	var req service.SetGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}

	enrollment, err := h.service.SetGrade(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, enrollment, nil)
}
