package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-confirmation-backend/internal/services/status"
)

const defaultActor = "system"

type ConfirmationHandler struct {
	machine *status.Machine
	logger  zerolog.Logger
}

func NewConfirmationHandler(machine *status.Machine, logger zerolog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{machine: machine, logger: logger}
}

func actor(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return defaultActor
	}
	return name
}

// confirmationParams reads the tenant and confirmation ids from the path.
func confirmationParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := uuidParam(c, "confirmationId")
	return tenantID, id, ok
}

func (h *ConfirmationHandler) SetStatus(c *gin.Context) {
	tenantID, id, ok := confirmationParams(c)
	if !ok {
		return
	}

	var payload struct {
		Status      string `json:"status" binding:"required"`
		PerformedBy string `json:"performed_by"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	previous, err := h.machine.SetStatus(ctx, tenantID, id, payload.Status, actor(payload.PerformedBy))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	canUndo, err := h.machine.CanUndo(ctx, tenantID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          payload.Status,
		"previous_status": previous,
		"can_undo":        canUndo,
	})
}

// Undo answers 200 with undone=false when there is nothing to undo.
func (h *ConfirmationHandler) Undo(c *gin.Context) {
	tenantID, id, ok := confirmationParams(c)
	if !ok {
		return
	}

	var payload struct {
		PerformedBy string `json:"performed_by"`
	}
	// the body is optional
	_ = c.ShouldBindJSON(&payload)

	current, undone, err := h.machine.Undo(c.Request.Context(), tenantID, id, actor(payload.PerformedBy))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": current,
		"undone": undone,
	})
}

func (h *ConfirmationHandler) History(c *gin.Context) {
	tenantID, id, ok := confirmationParams(c)
	if !ok {
		return
	}

	entries, err := h.machine.History(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	canUndo, err := h.machine.CanUndo(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries, "can_undo": canUndo})
}
