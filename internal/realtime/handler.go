package realtime

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/journeys/internal/config"
	"go.uber.org/zap"
)

// HeaderUserID is set by the upstream gateway after authentication.
const HeaderUserID = "X-User-Id"

type Handler struct {
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, cfg config.Config, log *zap.Logger) *Handler {
	allowOrigin := strings.TrimSpace(cfg.Realtime.AllowOrigin)
	return &Handler{
		hub: hub,
		log: log.Named("realtime.handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowOrigin == "" || allowOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowOrigin
			},
		},
	}
}

// Connect upgrades GET /ws/journeys and joins the caller's user group.
func (h *Handler) Connect(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if userID == "" {
		userID = strings.TrimSpace(c.Query("user_id"))
	}
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"type": "unauthorized", "message": "user id is required"}})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, userID, DefaultSendBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go client.WriteLoop(ctx)
	client.ReadLoop()
}
