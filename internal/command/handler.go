package command

import (
	"context"
	"fmt"

	"github.com/fbik/avito-monitor-app/internal/logger"
	pkgerrors "github.com/fbik/avito-monitor-app/pkg/errors"
	"github.com/fbik/avito-monitor-app/pkg/models"
	"github.com/fbik/avito-monitor-app/pkg/retry"
)

// Controller is the subset of the monitor reachable through remote commands.
type Controller interface {
	Login(ctx context.Context, hint string) (bool, error)
	Start() (bool, error)
	Stop()
	Clear() int
}

// Handler applies control commands received from the broker.
type Handler struct {
	ctl    Controller
	logger logger.Logger
}

func NewHandler(ctl Controller, log logger.Logger) *Handler {
	return &Handler{
		ctl:    ctl,
		logger: log,
	}
}

// Handle executes one command envelope. Commands the monitor refuses in its
// current state are logged and acknowledged; malformed envelopes are returned
// as fatal so the consumer does not retry them.
func (h *Handler) Handle(ctx context.Context, envelope models.Envelope) error {
	if err := models.ValidateEnvelope(&envelope); err != nil {
		h.logger.WarnwCtx(ctx, "Invalid command envelope", "error", err, "id", envelope.ID)
		return retry.NewFatalError(pkgerrors.ErrValidation.WithCause(err))
	}

	h.logger.InfowCtx(ctx, "Received control command",
		"command", envelope.Type,
		"id", envelope.ID,
		"source", envelope.Source,
	)

	var err error
	switch envelope.Type {
	case models.CommandLogin:
		_, err = h.ctl.Login(ctx, loginHint(envelope))
	case models.CommandStart:
		_, err = h.ctl.Start()
	case models.CommandStop:
		h.ctl.Stop()
	case models.CommandClear:
		removed := h.ctl.Clear()
		h.logger.InfowCtx(ctx, "History cleared by command", "removed", removed)
	default:
		return retry.NewFatalError(pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("unknown command %q", envelope.Type)))
	}

	if err == nil {
		return nil
	}

	switch pkgerrors.Code(err) {
	case pkgerrors.ErrConflict.Code, pkgerrors.ErrNotAuthenticated.Code, pkgerrors.ErrAuthTimeout.Code:
		h.logger.WarnwCtx(ctx, "Control command rejected",
			"command", envelope.Type,
			"id", envelope.ID,
			"error", err,
		)
		return nil
	}
	return err
}

func loginHint(envelope models.Envelope) string {
	if hint := envelope.GetString("phoneNumber"); hint != "" {
		return hint
	}
	return envelope.GetString("username")
}
