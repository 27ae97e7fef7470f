package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/reconcilia-matching-engine/internal/api_gateway/middleware"
	"github.com/reconcilia-matching-engine/internal/api_gateway/service"
	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
)

// ReconciliationHandler handles HTTP requests for scans, suggestions,
// decision history and learned vendor patterns
type ReconciliationHandler struct {
	reconciliationService service.ReconciliationService
	logger                *slog.Logger
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(logger *slog.Logger, reconciliationService service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
		logger:                logger,
	}
}

// Scan enqueues an asynchronous reconciliation scan for one anchor and
// returns 202 with the decision id the scan will be recorded under
func (h *ReconciliationHandler) Scan(c *gin.Context) {
	var req ScanRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		RespondBadRequest(c, "Invalid workspace ID")
		return
	}
	anchorID, err := uuid.Parse(req.AnchorID)
	if err != nil {
		RespondBadRequest(c, "Invalid anchor ID")
		return
	}

	scan, err := h.reconciliationService.RequestScan(
		c.Request.Context(),
		workspaceID,
		anchorID,
		shared.AnchorKind(req.AnchorKind),
		req.RequestedBy,
		middleware.GetCorrelationID(c),
	)
	if err != nil {
		var scopeErr shared.ErrInvalidScope
		if errors.As(err, &scopeErr) {
			RespondBadRequest(c, scopeErr.Error())
			return
		}
		h.logger.Error("Failed to enqueue scan", "anchor_id", anchorID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondAccepted(c, gin.H{
		"decision_id": scan.RequestID.String(),
		"status":      "QUEUED",
	})
}

// TransactionSuggestions runs matching for one transaction synchronously and
// returns the recorded decision
func (h *ReconciliationHandler) TransactionSuggestions(c *gin.Context) {
	idParam := c.Param("id")
	transactionID, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid transaction ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}
	workspaceID, err := uuid.Parse(c.Query("workspace_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid or missing workspace_id")
		return
	}

	rec, err := h.reconciliationService.SuggestForTransaction(c.Request.Context(), workspaceID, transactionID, middleware.GetCorrelationID(c))
	if err != nil {
		var txnNotFound transaction.ErrTransactionNotFound
		if errors.As(err, &txnNotFound) {
			RespondNotFound(c, "Transaction not found")
			return
		}
		h.logger.Error("Failed to compute suggestions", "transaction_id", transactionID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapDecisionToResponse(rec))
}

// DocumentSuggestions runs matching for one document synchronously and
// returns the recorded decision
func (h *ReconciliationHandler) DocumentSuggestions(c *gin.Context) {
	idParam := c.Param("id")
	documentID, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid document ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid document ID")
		return
	}
	workspaceID, err := uuid.Parse(c.Query("workspace_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid or missing workspace_id")
		return
	}

	rec, err := h.reconciliationService.SuggestForDocument(c.Request.Context(), workspaceID, documentID, middleware.GetCorrelationID(c))
	if err != nil {
		var docNotFound document.ErrDocumentNotFound
		if errors.As(err, &docNotFound) {
			RespondNotFound(c, "Document not found")
			return
		}
		h.logger.Error("Failed to compute suggestions", "document_id", documentID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapDecisionToResponse(rec))
}

// DecisionHistory returns the paginated decision trail of a workspace
func (h *ReconciliationHandler) DecisionHistory(c *gin.Context) {
	var params DecisionHistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	workspaceID, err := uuid.Parse(params.WorkspaceID)
	if err != nil {
		RespondBadRequest(c, "Invalid workspace ID")
		return
	}

	records, total, err := h.reconciliationService.ListDecisions(c.Request.Context(), workspaceID, shared.MatchAction(params.Action), params.Page, params.PerPage)
	if err != nil {
		h.logger.Error("Failed to list decisions", "workspace_id", workspaceID, "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]DecisionResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, mapDecisionToResponse(rec))
	}
	RespondWithPaginatedData(c, http.StatusOK, responses, params.Page, params.PerPage, int(total))
}

// GetDecision retrieves one decision record by its id, returning 404 if not found
func (h *ReconciliationHandler) GetDecision(c *gin.Context) {
	idParam := c.Param("id")
	decisionID, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid decision ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid decision ID")
		return
	}

	rec, err := h.reconciliationService.GetDecision(c.Request.Context(), decisionID)
	if err != nil {
		if errors.Is(err, decision.ErrDecisionNotFound{}) {
			RespondNotFound(c, "Decision not found")
			return
		}
		h.logger.Error("Failed to get decision", "decision_id", decisionID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapDecisionToResponse(rec))
}

// VendorPattern returns the learned behavior profile for one counterparty
func (h *ReconciliationHandler) VendorPattern(c *gin.Context) {
	counterparty := c.Param("counterparty")
	workspaceID, err := uuid.Parse(c.Query("workspace_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid or missing workspace_id")
		return
	}

	pattern, err := h.reconciliationService.GetVendorPattern(c.Request.Context(), workspaceID, counterparty)
	if err != nil {
		h.logger.Error("Failed to get vendor pattern", "counterparty", counterparty, "error", err)
		RespondInternalError(c)
		return
	}
	if pattern == nil {
		RespondNotFound(c, "No learned pattern for this counterparty")
		return
	}

	RespondOK(c, mapPatternToResponse(pattern))
}

// RetryEscalation puts a failed escalation case back in the queue
func (h *ReconciliationHandler) RetryEscalation(c *gin.Context) {
	idParam := c.Param("decision_id")
	decisionID, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid decision ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid decision ID")
		return
	}

	err = h.reconciliationService.RetryEscalation(c.Request.Context(), decisionID)
	if err != nil {
		var caseNotFound escalation.ErrCaseNotFound
		if errors.As(err, &caseNotFound) {
			RespondNotFound(c, "No escalation case for this decision")
			return
		}
		var validationErr shared.ErrValidation
		if errors.As(err, &validationErr) {
			RespondConflict(c, validationErr.Reason)
			return
		}
		h.logger.Error("Failed to retry escalation", "decision_id", decisionID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondAccepted(c, gin.H{
		"decision_id": decisionID.String(),
		"status":      string(shared.EscalationStatusPending),
	})
}
