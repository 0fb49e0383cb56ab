package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusops/campus-records-api/internal/models"
	"github.com/campusops/campus-records-api/internal/service"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
	"github.com/campusops/campus-records-api/pkg/response"
)

// CourseHandler exposes the course catalog.
type CourseHandler struct {
	service *service.RecordsService
}

// NewCourseHandler creates a new handler.
func NewCourseHandler(svc *service.RecordsService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Description List catalog courses with pagination and search
// @Tags Courses
// @Produce json
// @Param search query string false "Search by code or name"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	courses, pagination, err := h.service.ListCourses(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, courses, pagination)
}

// Create godoc
// @Summary Create course
// @Description Add a course to the catalog
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.CreateCourse(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, course)
}

// Delete godoc
// @Summary Delete course
// @Description Remove a course without active enrollments from the catalog
// @Tags Courses
// @Produce json
// @Param code path string true "Course code"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{code} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course code required"))
		return
	}

	if err := h.service.DeleteCourse(c.Request.Context(), code); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
