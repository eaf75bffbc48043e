package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/users"
	"github.com/gin-gonic/gin"
)

const (
	opHandleAdminCreateUser = "server.admin_create_user"
	opHandleCreateAdmin     = "server.create_admin"
	opHandleUpdateAdmin     = "server.update_admin"
)

type adminUserRowPayload struct {
	profiles.Profile
	Email string `json:"email"`
}

type adminCreateUserResponsePayload struct {
	User    users.User       `json:"user"`
	Profile profiles.Profile `json:"profile"`
}

type updateAdminRequestPayload struct {
	Role users.Role `json:"role"`
}

func (h *httpHandler) handleAdminListUsers(c *gin.Context) {
	ctx := c.Request.Context()
	rows, err := h.profiles.AdminList(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	emails, err := h.users.Emails(ctx, ids)
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := make([]adminUserRowPayload, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, adminUserRowPayload{Profile: row, Email: emails[row.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"users": payload})
}

func (h *httpHandler) handleAdminCreateUser(c *gin.Context) {
	var request users.MemberInput
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleAdminCreateUser, "invalid_payload", err)
		return
	}
	user, profile, err := h.users.CreateMember(c.Request.Context(), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, adminCreateUserResponsePayload{User: user, Profile: profile})
}

func (h *httpHandler) handleAdminUpdateUser(c *gin.Context) {
	h.applyProfilePatch(c, c.Param("id"))
}

func (h *httpHandler) handleListAdmins(c *gin.Context) {
	admins, err := h.users.ListAdmins(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

func (h *httpHandler) handleCreateAdmin(c *gin.Context) {
	var request users.AdminInput
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleCreateAdmin, "invalid_payload", err)
		return
	}
	admin, err := h.users.CreateAdmin(c.Request.Context(), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, admin)
}

func (h *httpHandler) handleUpdateAdmin(c *gin.Context) {
	var request updateAdminRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleUpdateAdmin, "invalid_payload", err)
		return
	}
	if err := h.users.UpdateAdminRole(c.Request.Context(), c.Param("id"), request.Role); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteAdmin(c *gin.Context) {
	if err := h.users.DeleteAdmin(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
