package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/reconcilia-matching-engine/internal/api_gateway/middleware"
	"github.com/reconcilia-matching-engine/internal/api_gateway/service"
	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/ledger"
	"github.com/shopspring/decimal"
)

// AllocationHandler handles HTTP requests for the allocation ledger:
// confirming, unlinking and rejecting transaction-document links
type AllocationHandler struct {
	allocationService service.AllocationService
	logger            *slog.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(logger *slog.Logger, allocationService service.AllocationService) *AllocationHandler {
	return &AllocationHandler{
		allocationService: allocationService,
		logger:            logger,
	}
}

// Confirm records a match as a payment allocation and settles both sides
func (h *AllocationHandler) Confirm(c *gin.Context) {
	var req ConfirmAllocationRequest
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
	transactionID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}
	documentID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		RespondBadRequest(c, "Invalid document ID")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		RespondBadRequest(c, "Invalid amount")
		return
	}

	method := shared.AllocationMethod(req.Method)
	if req.Method == "" {
		// Links confirmed over the API without a stated method are manual
		method = shared.AllocationMethodManual
	}

	alloc, err := h.allocationService.Confirm(c.Request.Context(), ledger.ConfirmRequest{
		WorkspaceID:   workspaceID,
		TransactionID: transactionID,
		DocumentID:    documentID,
		Amount:        amount,
		Method:        method,
		Confidence:    req.Confidence,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.respondAllocationError(c, err)
		return
	}

	RespondCreated(c, mapAllocationToResponse(alloc))
}

// Unlink reverses a confirmed allocation, restoring both sides
func (h *AllocationHandler) Unlink(c *gin.Context) {
	idParam := c.Param("id")
	allocationID, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid allocation ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid allocation ID")
		return
	}
	workspaceID, err := uuid.Parse(c.Query("workspace_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid or missing workspace_id")
		return
	}

	if err := h.allocationService.Unlink(c.Request.Context(), workspaceID, allocationID); err != nil {
		h.respondAllocationError(c, err)
		return
	}

	RespondNoContent(c)
}

// Reject records that a suggested transaction-document pair is wrong
func (h *AllocationHandler) Reject(c *gin.Context) {
	var req RejectSuggestionRequest
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
	transactionID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}
	documentID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		RespondBadRequest(c, "Invalid document ID")
		return
	}

	if err := h.allocationService.Reject(c.Request.Context(), workspaceID, transactionID, documentID); err != nil {
		h.respondAllocationError(c, err)
		return
	}

	RespondNoContent(c)
}

// respondAllocationError maps ledger errors onto HTTP status codes
func (h *AllocationHandler) respondAllocationError(c *gin.Context, err error) {
	var validationErr shared.ErrValidation
	if errors.As(err, &validationErr) {
		RespondUnprocessable(c, validationErr.Error())
		return
	}
	if errors.Is(err, shared.ErrCurrencyMismatch) {
		RespondUnprocessable(c, "Transaction and document currencies differ")
		return
	}
	var scopeErr shared.ErrInvalidScope
	if errors.As(err, &scopeErr) {
		RespondBadRequest(c, scopeErr.Error())
		return
	}
	var txnNotFound transaction.ErrTransactionNotFound
	if errors.As(err, &txnNotFound) {
		RespondNotFound(c, "Transaction not found")
		return
	}
	var docNotFound document.ErrDocumentNotFound
	if errors.As(err, &docNotFound) {
		RespondNotFound(c, "Document not found")
		return
	}
	var allocNotFound allocation.ErrAllocationNotFound
	if errors.As(err, &allocNotFound) {
		RespondNotFound(c, "Allocation not found")
		return
	}
	var conflictErr shared.ErrConcurrencyConflict
	if errors.As(err, &conflictErr) {
		RespondConflict(c, "Concurrent update, please retry")
		return
	}

	h.logger.Error("Allocation operation failed", "error", err)
	RespondInternalError(c)
}
