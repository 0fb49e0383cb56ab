package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/campus-records-api/internal/models"
	"github.com/campusops/campus-records-api/internal/service"
	appErrors "github.com/campusops/campus-records-api/pkg/errors"
	"github.com/campusops/campus-records-api/pkg/response"
)

// IdentityHandler exposes the administrative identity lifecycle.
type IdentityHandler struct {
	service *service.CredentialService
}

// NewIdentityHandler creates a new handler.
func NewIdentityHandler(svc *service.CredentialService) *IdentityHandler {
	return &IdentityHandler{service: svc}
}

// SetRole godoc
// @Summary Reassign identity role
// @Description Change an identity's role; all of its sessions are revoked
// @Tags Identities
// @Accept json
// @Produce json
// @Param id path string true "University ID"
// @Param payload body models.SetRoleRequest true "Role payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /identities/{id}/role [put]
func (h *IdentityHandler) SetRole(c *gin.Context) {
	var req models.SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid role payload"))
		return
	}

	if err := h.service.SetRole(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Deactivate godoc
// @Summary Deactivate identity
// @Description Soft-delete an identity; records are retained and logins refused
// @Tags Identities
// @Produce json
// @Param id path string true "University ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /identities/{id} [delete]
func (h *IdentityHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
