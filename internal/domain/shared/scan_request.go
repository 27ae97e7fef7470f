package shared

import (
	"time"

	"github.com/google/uuid"
)

// ScanRequest defines a Kafka message asking the processor to reconcile one anchor
// (a transaction or a document) against the open pool of its workspace.
// The RequestID doubles as the decision id, which makes reprocessing idempotent.
type ScanRequest struct {
	RequestID     uuid.UUID  `json:"request_id"`
	WorkspaceID   uuid.UUID  `json:"workspace_id"`
	AnchorKind    AnchorKind `json:"anchor_kind"`
	AnchorID      uuid.UUID  `json:"anchor_id"`
	RequestedBy   string     `json:"requested_by,omitempty"`
	CorrelationID string     `json:"correlation_id"`
	Timestamp     time.Time  `json:"timestamp"`
}

// NewScanRequest builds a scan request with a fresh request id
func NewScanRequest(workspaceID, anchorID uuid.UUID, kind AnchorKind, requestedBy, correlationID string) *ScanRequest {
	return &ScanRequest{
		RequestID:     uuid.New(),
		WorkspaceID:   workspaceID,
		AnchorKind:    kind,
		AnchorID:      anchorID,
		RequestedBy:   requestedBy,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
}

// Validate checks the request carries a complete scope
func (r *ScanRequest) Validate() error {
	if r.WorkspaceID == uuid.Nil {
		return ErrInvalidScope{Field: "workspace_id"}
	}
	if r.AnchorID == uuid.Nil {
		return ErrInvalidScope{Field: "anchor_id"}
	}
	if r.AnchorKind != AnchorKindTransaction && r.AnchorKind != AnchorKindDocument {
		return ErrInvalidAnchorKind
	}
	return nil
}
