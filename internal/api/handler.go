package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fbik/avito-monitor-app/internal/constants"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/pkg/errors"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

// Monitor is the control surface exposed over HTTP.
type Monitor interface {
	Login(ctx context.Context, hint string) (bool, error)
	Start() (bool, error)
	Stop()
	Status() models.Status
	ListMessages(limit int) []models.Message
	Clear() int
}

type BaseHandler struct {
	Monitor Monitor
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.WarnwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, errors.ToErrorResponse(err))
}

type Handler struct {
	BaseHandler
	loginDeadline time.Duration
}

// NewHandler builds the control API. loginDeadline bounds how long the login
// connection may stay open, overriding the server read and write timeouts;
// zero keeps the server defaults.
func NewHandler(monitor Monitor, loginDeadline time.Duration, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Monitor: monitor,
			Logger:  log,
		},
		loginDeadline: loginDeadline,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		messages := v1.Group("/messages")
		{
			messages.POST("/login", h.Login)
			messages.POST("/start", h.Start)
			messages.POST("/stop", h.Stop)
			messages.GET("/status", h.Status)
			messages.GET("/list", h.List)
			messages.POST("/clear", h.Clear)
		}
	}
}

// Login opens the login page and blocks until the manual login completes or
// times out.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
			return
		}
	}

	h.extendDeadline(c)

	ok, err := h.Monitor.Login(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: ok})
}

// extendDeadline lets a manual login outlive the server timeouts, which are
// sized for the short control calls.
func (h *Handler) extendDeadline(c *gin.Context) {
	if h.loginDeadline <= 0 {
		return
	}

	deadline := time.Now().Add(h.loginDeadline)
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetReadDeadline(deadline); err != nil {
		h.Logger.DebugwCtx(c.Request.Context(), "Cannot extend login read deadline", "error", err)
	}
	if err := rc.SetWriteDeadline(deadline); err != nil {
		h.Logger.DebugwCtx(c.Request.Context(), "Cannot extend login write deadline", "error", err)
	}
}

func (h *Handler) Start(c *gin.Context) {
	ok, err := h.Monitor.Start()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: ok})
}

func (h *Handler) Stop(c *gin.Context) {
	h.Monitor.Stop()
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: constants.StopMessage})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, NewStatusResponse(h.Monitor.Status()))
}

// List returns retained messages newest-first. limit=0 or no limit returns
// everything up to MaxListLimit.
func (h *Handler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.HandleError(c, errors.ErrValidation.WithMessage("limit must be a non-negative integer").WithDetail("limit", raw))
			return
		}
		limit = n
	}
	if limit == 0 || limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}

	messages := h.Monitor.ListMessages(limit)
	if messages == nil {
		messages = []models.Message{}
	}

	c.JSON(http.StatusOK, ListResponse{Messages: messages, Count: len(messages)})
}

func (h *Handler) Clear(c *gin.Context) {
	removed := h.Monitor.Clear()
	c.JSON(http.StatusOK, ClearResponse{
		SuccessResponse: SuccessResponse{Success: true, Message: "History cleared"},
		Removed:         removed,
	})
}
