package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/bruno/internal/chat"
	"github.com/zulandar/bruno/internal/store"
)

// chatRequest is the body of POST /api/chat and /api/chat/stream.
type chatRequest struct {
	Message        string `json:"message" binding:"required"`
	UserID         string `json:"user_id" binding:"required"`
	Username       string `json:"username"`
	ConversationID string `json:"conversation_id"`
}

type actionView struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type chatResponse struct {
	ConversationID string         `json:"conversation_id"`
	SessionID      string         `json:"session_id"`
	Response       string         `json:"response"`
	Success        bool           `json:"success"`
	Error          string         `json:"error,omitempty"`
	Actions        []actionView   `json:"actions,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type messageView struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (r chatRequest) toRequest() chat.Request {
	return chat.Request{
		Platform:       "api",
		UserID:         r.UserID,
		UserName:       r.Username,
		ConversationID: r.ConversationID,
		Text:           r.Message,
	}
}

func newChatResponse(rep chat.Reply) chatResponse {
	resp := chatResponse{
		ConversationID: rep.ConversationID,
		SessionID:      rep.SessionID,
		Response:       rep.Response.Text,
		Success:        rep.Response.Success,
		Error:          rep.Response.Error,
		Metadata:       rep.Response.Metadata,
	}
	for _, a := range rep.Response.Actions {
		resp.Actions = append(resp.Actions, actionView{
			Type:    a.ActionType,
			Status:  string(a.Status),
			Message: a.Message,
		})
	}
	return resp
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	var perr *store.PersistenceError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &perr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message and user_id are required"})
		return
	}

	rep, err := s.convs.Reply(c.Request.Context(), req.toRequest())
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, newChatResponse(rep))
}

// handleChatStream relays model fragments as "fragment" SSE events and ends
// with a "done" event carrying the full response.
func (s *Server) handleChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message and user_id are required"})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	emit := func(fragment string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.SSEvent("fragment", fragment)
		c.Writer.Flush()
		return nil
	}

	rep, err := s.convs.ReplyStream(ctx, req.toRequest(), emit)
	if err != nil {
		if !c.Writer.Written() {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.SSEvent("error", gin.H{"error": err.Error()})
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", newChatResponse(rep))
	c.Writer.Flush()
}

// ownerID returns the user_id query parameter, answering 400 when it is
// missing.
func ownerID(c *gin.Context) (string, bool) {
	id := c.Query("user_id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return "", false
	}
	return id, true
}

func (s *Server) handleMessages(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	msgs, err := s.convs.History(c.Request.Context(), "api", userID, c.Param("id"), limit)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Sequence:  m.Sequence,
			Metadata:  m.Metadata,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": c.Param("id"),
		"messages":        views,
	})
}

func (s *Server) handleClear(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}
	keepSystem := false
	if raw := c.Query("keep_system"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "keep_system must be a boolean"})
			return
		}
		keepSystem = b
	}

	if err := s.convs.ClearHistory(c.Request.Context(), "api", userID, c.Param("id"), keepSystem); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": c.Param("id"), "cleared": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	h := s.agent.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !h.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"health": h,
		"agent":  s.agent.Metadata(),
		"memory": s.memory.Statistics(),
	})
}
