package server

import (
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/realtime"
	"github.com/gin-gonic/gin"
)

const (
	opHandleOpenConversation = "server.open_conversation"
	opHandleSendMessage      = "server.send_message"
	opHandleStream           = "server.stream"
)

var (
	errBucketUnavailable   = apperrors.Upstream(opHandleUploadPhoto, "bucket_unavailable", nil)
	errRealtimeUnavailable = apperrors.Upstream(opHandleStream, "realtime_unavailable", nil)
)

type openConversationRequestPayload struct {
	TargetID string `json:"target_id"`
}

type sendMessageRequestPayload struct {
	Content string `json:"content"`
}

type heartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

func (h *httpHandler) handleOpenConversation(c *gin.Context) {
	var request openConversationRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleOpenConversation, "invalid_payload", err)
		return
	}
	conversationID, err := h.messaging.OpenConversation(c.Request.Context(), c.GetString(userIDContextKey), request.TargetID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID})
}

func (h *httpHandler) handleListConversations(c *gin.Context) {
	summaries, err := h.messaging.ListConversations(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

func (h *httpHandler) handlePartnerProfile(c *gin.Context) {
	profile, err := h.messaging.PartnerProfile(c.Request.Context(), c.GetString(userIDContextKey), c.Query("partner_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleListMessages(c *gin.Context) {
	messages, err := h.messaging.ListMessages(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *httpHandler) handleSendMessage(c *gin.Context) {
	var request sendMessageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleSendMessage, "invalid_payload", err)
		return
	}
	message, err := h.messaging.SendMessage(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// handleMessageStream relays inserted messages of one conversation as server-sent events,
// with periodic heartbeats so idle proxies keep the connection open.
func (h *httpHandler) handleMessageStream(c *gin.Context) {
	conversationID := c.Param("id")
	if err := h.messaging.AuthorizeStream(c.Request.Context(), c.GetString(userIDContextKey), conversationID); err != nil {
		h.writeError(c, err)
		return
	}
	if h.realtime == nil {
		h.writeError(c, errRealtimeUnavailable)
		return
	}

	requestContext := c.Request.Context()
	events, cleanup := h.realtime.Subscribe(requestContext, conversationID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-requestContext.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, string(event.Payload))
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtime.EventHeartbeat, heartbeatPayload{Timestamp: tick.UTC().Unix()})
			return true
		}
	})
}
