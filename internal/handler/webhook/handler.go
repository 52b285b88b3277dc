package webhook

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notify-engine/internal/reconciler"
	"github.com/jwalitptl/notify-engine/pkg/errors"
	"github.com/jwalitptl/notify-engine/pkg/httputil"
)

// maxPayloadBytes bounds webhook bodies; provider callbacks are small.
const maxPayloadBytes = 1 << 20

type Handler struct {
	reconciler *reconciler.Reconciler
}

func NewHandler(r *reconciler.Reconciler) *Handler {
	return &Handler{reconciler: r}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/:provider", h.Intake)
}

// Intake accepts a provider-specific delivery callback, normalizes it
// and applies it to the queue store. Replayed events are no-ops.
func (h *Handler) Intake(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		httputil.RespondWithError(c, errors.NewValidation("unreadable payload", err))
		return
	}

	provider := c.Param("provider")
	if err := h.reconciler.Ingest(c.Request.Context(), provider, payload); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"accepted": true})
}
