package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/contents"
	"github.com/gin-gonic/gin"
)

const (
	opHandleCreateContent = "server.create_content"
	opHandleUpdateContent = "server.update_content"
)

func (h *httpHandler) handleListContents(c *gin.Context) {
	rows, err := h.contents.List(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contents": rows})
}

func (h *httpHandler) handleCreateContent(c *gin.Context) {
	var request contents.Input
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleCreateContent, "invalid_payload", err)
		return
	}
	content, err := h.contents.Create(c.Request.Context(), c.GetString(userIDContextKey), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, content)
}

func (h *httpHandler) handleUpdateContent(c *gin.Context) {
	var request contents.Patch
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleUpdateContent, "invalid_payload", err)
		return
	}
	content, err := h.contents.Update(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (h *httpHandler) handleDeleteContent(c *gin.Context) {
	if err := h.contents.Delete(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
