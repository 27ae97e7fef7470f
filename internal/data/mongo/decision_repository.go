package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

const (
	// DecisionCollectionName is the name of the decision audit collection in MongoDB
	DecisionCollectionName = "match_decisions"
)

// DecisionRepository implements the decision.Repository interface for MongoDB
type DecisionRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewDecisionRepository creates a new MongoDB decision repository
func NewDecisionRepository(logger *slog.Logger, db *mongo.Database) decision.Repository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new decision record after checking for duplicates.
// Returns ErrDuplicateDecision if a record with the same decision ID exists;
// scan request ids double as decision ids, so this is the idempotency gate.
func (r *DecisionRepository) Create(ctx context.Context, rec *decision.Record) error {
	collection := r.db.Collection(DecisionCollectionName)

	existing, err := r.GetByDecisionID(ctx, rec.DecisionID)
	if err != nil && !errors.Is(err, decision.ErrDecisionNotFound{}) {
		r.logger.Error("Failed to check for existing decision record",
			"decision_id", rec.DecisionID.String(),
			"error", err)
		return fmt.Errorf("failed to check for existing decision record: %w", err)
	}

	if existing != nil {
		return decision.ErrDuplicateDecision{DecisionID: rec.DecisionID}
	}

	_, err = collection.InsertOne(ctx, rec)
	if err != nil {
		r.logger.Error("Failed to create decision record",
			"decision_id", rec.DecisionID.String(),
			"error", err)
		return fmt.Errorf("failed to create decision record: %w", err)
	}

	return nil
}

// GetByDecisionID retrieves a decision record by its decision ID.
// Returns ErrDecisionNotFound if no record exists for the given decision.
func (r *DecisionRepository) GetByDecisionID(ctx context.Context, decisionID uuid.UUID) (*decision.Record, error) {
	collection := r.db.Collection(DecisionCollectionName)

	filter := bson.M{"decision_id": decisionID}
	var rec decision.Record
	err := collection.FindOne(ctx, filter).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, decision.ErrDecisionNotFound{DecisionID: decisionID}
		}
		r.logger.Error("Failed to get decision record",
			"decision_id", decisionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get decision record: %w", err)
	}

	return &rec, nil
}

// ListByAnchor retrieves the decision history for one anchor.
// Results are sorted by decision time in descending order (newest first).
func (r *DecisionRepository) ListByAnchor(ctx context.Context, workspaceID uuid.UUID, kind shared.AnchorKind, anchorID uuid.UUID, limit int) ([]*decision.Record, error) {
	collection := r.db.Collection(DecisionCollectionName)

	filter := bson.M{
		"workspace_id": workspaceID,
		"anchor_kind":  kind,
		"anchor_id":    anchorID,
	}
	opts := options.Find().
		SetSort(bson.M{"decided_at": -1}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get decisions for anchor",
			"anchor_id", anchorID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get decisions for anchor: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*decision.Record
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("Failed to decode decision records",
			"anchor_id", anchorID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode decision records: %w", err)
	}

	return records, nil
}

// ListByWorkspace retrieves paginated decision history for a workspace,
// optionally filtered by action. Results are newest first.
func (r *DecisionRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, filter decision.HistoryFilter) ([]*decision.Record, error) {
	collection := r.db.Collection(DecisionCollectionName)

	query := bson.M{"workspace_id": workspaceID}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	opts := options.Find().
		SetSort(bson.M{"decided_at": -1}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))

	cursor, err := collection.Find(ctx, query, opts)
	if err != nil {
		r.logger.Error("Failed to get decision history",
			"workspace_id", workspaceID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get decision history: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*decision.Record
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("Failed to decode decision records",
			"workspace_id", workspaceID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode decision records: %w", err)
	}

	return records, nil
}

// CountByWorkspace counts the total number of decision records for a workspace
func (r *DecisionRepository) CountByWorkspace(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	collection := r.db.Collection(DecisionCollectionName)

	filter := bson.M{"workspace_id": workspaceID}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count decision records",
			"workspace_id", workspaceID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count decision records: %w", err)
	}

	return count, nil
}

// SetEscalationOutcome attaches an investigation verdict to an existing decision.
// Returns ErrDecisionNotFound if the decision doesn't exist.
func (r *DecisionRepository) SetEscalationOutcome(ctx context.Context, decisionID uuid.UUID, outcome *decision.EscalationOutcome) error {
	collection := r.db.Collection(DecisionCollectionName)

	filter := bson.M{"decision_id": decisionID}
	update := bson.M{
		"$set": bson.M{
			"escalation": outcome,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to set escalation outcome",
			"decision_id", decisionID.String(),
			"error", err)
		return fmt.Errorf("failed to set escalation outcome: %w", err)
	}

	if result.MatchedCount == 0 {
		return decision.ErrDecisionNotFound{DecisionID: decisionID}
	}

	return nil
}
