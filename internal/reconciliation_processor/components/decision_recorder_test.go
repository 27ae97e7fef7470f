package components

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/matching"
)

func TestDecisionRecorder_RecordOutcome(t *testing.T) {
	logger := slog.Default()
	ctx := context.Background()

	request := &shared.ScanRequest{
		RequestID:     uuid.New(),
		WorkspaceID:   uuid.New(),
		AnchorKind:    shared.AnchorKindTransaction,
		AnchorID:      uuid.New(),
		CorrelationID: "corr-decisions",
	}
	best := &decision.ScoredCandidate{
		Items:  []decision.CandidateItem{{ID: uuid.New(), Amount: "5000.00"}},
		Amount: "5000.00",
		Signals: decision.Signals{
			Reference: 40, Amount: 35, Identity: 25, Time: 20,
			Total: 120, Confidence: 92,
		},
	}
	outcome := &matching.Outcome{
		Action:       shared.MatchActionAutoMatch,
		Best:         best,
		Alternatives: []decision.ScoredCandidate{{Amount: "5000.00", Signals: decision.Signals{Confidence: 61}}},
		Ranked:       []decision.ScoredCandidate{*best},
	}

	t.Run("persists the outcome as a completed decision", func(t *testing.T) {
		mockRepo := &MockDecisionRepo{}
		recorder := NewDecisionRecorder(mockRepo, logger)

		var stored *decision.Record
		mockRepo.On("Create", ctx, mock.AnythingOfType("*decision.Record")).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*decision.Record) }).
			Return(nil).Once()

		rec, err := recorder.RecordOutcome(ctx, request, outcome)

		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, stored, rec)
		assert.Equal(t, request.RequestID, rec.DecisionID)
		assert.Equal(t, request.WorkspaceID, rec.WorkspaceID)
		assert.Equal(t, shared.MatchActionAutoMatch, rec.Action)
		assert.Equal(t, best, rec.Best)
		assert.Len(t, rec.Alternatives, 1)
		assert.Equal(t, shared.DecisionStatusCompleted, rec.Status)
		assert.Equal(t, decision.EngineVersion, rec.EngineVersion)
		assert.Equal(t, "corr-decisions", rec.CorrelationID)
		assert.WithinDuration(t, time.Now().UTC(), rec.DecidedAt, time.Minute)
		mockRepo.AssertExpectations(t)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		mockRepo := &MockDecisionRepo{}
		recorder := NewDecisionRecorder(mockRepo, logger)

		mockRepo.On("Create", ctx, mock.AnythingOfType("*decision.Record")).
			Return(errors.New("mongo unavailable")).Once()

		rec, err := recorder.RecordOutcome(ctx, request, outcome)

		assert.Nil(t, rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mongo unavailable")
		mockRepo.AssertExpectations(t)
	})
}
