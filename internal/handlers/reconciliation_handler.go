package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trade-confirmation-backend/internal/models"
	service "trade-confirmation-backend/internal/services/reconciliation"
	"trade-confirmation-backend/internal/services/settlement"
	"trade-confirmation-backend/internal/services/status"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type ReconciliationHandler struct {
	service  *service.ReconciliationService
	resolver *settlement.Resolver
	mailback *status.Mailback
	logger   zerolog.Logger
}

func NewReconciliationHandler(
	s *service.ReconciliationService,
	resolver *settlement.Resolver,
	mailback *status.Mailback,
	logger zerolog.Logger,
) *ReconciliationHandler {
	return &ReconciliationHandler{service: s, resolver: resolver, mailback: mailback, logger: logger}
}

// UploadTrades stores already-parsed client trades.
func (h *ReconciliationHandler) UploadTrades(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}

	var payload struct {
		Trades []models.TradeFields `json:"trades" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	inserted, err := h.service.IngestTrades(c.Request.Context(), tenantID, payload.Trades)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"received": len(payload.Trades),
		"inserted": inserted,
	})
}

// UploadConfirmations stores confirmations handed over by extraction.
func (h *ReconciliationHandler) UploadConfirmations(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}

	var payload struct {
		Confirmations []service.ConfirmationInput `json:"confirmations" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	inserted, err := h.service.IngestConfirmations(c.Request.Context(), tenantID, payload.Confirmations)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"inserted": inserted})
}

// Run reconciles the tenant synchronously and returns the batch result.
func (h *ReconciliationHandler) Run(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}

	result, err := h.service.RunBatch(c.Request.Context(), tenantID, service.TriggerManual)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReconciliationHandler) GetBatchProgress(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	batch, err := h.service.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *ReconciliationHandler) ListMatches(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxPageSize)
	}

	items, nextCursor, err := h.service.ListMatches(c.Request.Context(), tenantID, c.Query("status"), c.Query("cursor"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	stats, err := h.service.MatchStats(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    nextCursor != "",
		"stats":       stats,
	})
}

// Settlement resolves the settlement instruction of a match. No default
// account is ever returned; a missing rule answers 422.
func (h *ReconciliationHandler) Settlement(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "matchId")
	if !ok {
		return
	}

	instruction, err := h.resolver.Resolve(c.Request.Context(), tenantID, matchID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, instruction)
}

func (h *ReconciliationHandler) Mailback(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenantId")
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "matchId")
	if !ok {
		return
	}

	draft, err := h.mailback.Build(c.Request.Context(), tenantID, matchID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}
