package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessonreel/lessonreel-backend/internal/platform/ctxutil"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub

	mu      sync.RWMutex
	clients map[uuid.UUID]*realtime.SSEClient // key: StudentID, one stream each
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		hub:     hub,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /api/sse/stream?video=<id>&session=<id>
// Optional query params pre-subscribe the stream before the first event.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.StudentID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	h.mu.Lock()
	if existing, ok := h.clients[rd.StudentID]; ok {
		h.hub.CloseClient(existing)
		delete(h.clients, rd.StudentID)
	}
	client := h.hub.NewSSEClient(rd.StudentID)
	h.clients[rd.StudentID] = client
	h.mu.Unlock()

	if raw := c.Query("video"); raw != "" {
		if videoID, err := uuid.Parse(raw); err == nil {
			h.hub.AddChannel(client, realtime.VideoChannel(videoID))
		}
	}
	if raw := c.Query("session"); raw != "" {
		if sessionID, err := uuid.Parse(raw); err == nil {
			h.hub.AddChannel(client, realtime.SessionChannel(sessionID))
		}
	}

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	delete(h.clients, rd.StudentID)
	h.mu.Unlock()
	h.hub.CloseClient(client)
}

// POST /api/sse/subscribe
func (h *RealtimeHandler) SSESubscribe(c *gin.Context) {
	client, channel, ok := h.clientAndChannel(c)
	if !ok {
		return
	}
	h.hub.AddChannel(client, channel)
	c.JSON(http.StatusOK, gin.H{"message": "subscribed", "channel": channel})
}

// POST /api/sse/unsubscribe
func (h *RealtimeHandler) SSEUnsubscribe(c *gin.Context) {
	client, channel, ok := h.clientAndChannel(c)
	if !ok {
		return
	}
	h.hub.RemoveChannel(client, channel)
	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed", "channel": channel})
}

func (h *RealtimeHandler) clientAndChannel(c *gin.Context) (*realtime.SSEClient, string, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.StudentID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, "", false
	}

	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return nil, "", false
	}

	h.mu.RLock()
	client, exists := h.clients[rd.StudentID]
	h.mu.RUnlock()
	if !exists {
		c.JSON(http.StatusConflict, gin.H{"error": "no active SSE connection"})
		return nil, "", false
	}
	return client, req.Channel, true
}
