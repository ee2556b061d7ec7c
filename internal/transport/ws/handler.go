// Package ws exposes the event hub to browsers over WebSocket.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fbik/avito-monitor-app/internal/broadcast"
	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/constants"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

const requestGetStatus = "get_status"

// Registry is the hub surface the transport needs.
type Registry interface {
	Subscribe(sub broadcast.Subscriber) error
	Unsubscribe(id string) bool
	Send(id string, event models.Event) error
	StatusEvent() models.Event
}

type Handler struct {
	hub          Registry
	upgrader     websocket.Upgrader
	bufferSize   int
	writeTimeout time.Duration
	logger       logger.Logger
}

func NewHandler(hub Registry, cfg config.BroadcastConfig, log logger.Logger) *Handler {
	bufferSize := cfg.ClientBufferSize
	if bufferSize <= 0 {
		bufferSize = 32
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
		logger:       log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws", h.Serve)
}

// Serve upgrades the request and registers the connection with the hub.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "error", err, "remote_addr", c.ClientIP())
		return
	}

	// the connection outlives the request, so only its values are kept
	client := newClient(context.WithoutCancel(c.Request.Context()), uuid.NewString(), conn, h.bufferSize, h.writeTimeout, h.logger)

	_ = client.Deliver(models.NewEvent(models.EventConnected, models.ConnectedPayload{
		ClientID: client.ID(),
		Message:  constants.WelcomeMessage,
	}))

	if err := h.hub.Subscribe(client); err != nil {
		h.logger.WarnwCtx(client.ctx, "Rejecting WebSocket client", "error", err)
		client.Close()
		return
	}
	h.logger.InfowCtx(client.ctx, "WebSocket client connected", "remote_addr", c.ClientIP())

	_ = client.Deliver(h.hub.StatusEvent())

	go client.writePump()
	go func() {
		client.readPump(func(event string) {
			h.handleRequest(client, event)
		})
		h.hub.Unsubscribe(client.ID())
		h.logger.InfowCtx(client.ctx, "WebSocket client disconnected")
	}()
}

func (h *Handler) handleRequest(client *Client, event string) {
	switch event {
	case requestGetStatus:
		if err := h.hub.Send(client.ID(), h.hub.StatusEvent()); err != nil {
			h.logger.DebugwCtx(client.ctx, "Failed to answer status request", "error", err)
		}
	default:
		h.logger.DebugwCtx(client.ctx, "Ignoring unknown client request", "event", event)
	}
}
