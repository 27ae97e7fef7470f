package components

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/decision"
	"github.com/reconcilia-matching-engine/internal/domain/document"
	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
	"github.com/reconcilia-matching-engine/internal/domain/vendorpattern"
	"github.com/reconcilia-matching-engine/internal/matching"
	"github.com/reconcilia-matching-engine/internal/reconciliation_processor/service"
)

// MockEscalationRepo for testing
type MockEscalationRepo struct {
	mock.Mock
}

func (m *MockEscalationRepo) Create(ctx context.Context, c *escalation.Case) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockEscalationRepo) GetPending(ctx context.Context, limit int) ([]*escalation.Case, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*escalation.Case), args.Error(1)
}

func (m *MockEscalationRepo) GetByDecisionID(ctx context.Context, decisionID uuid.UUID) (*escalation.Case, error) {
	args := m.Called(ctx, decisionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escalation.Case), args.Error(1)
}

func (m *MockEscalationRepo) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEscalationRepo) UpdateStatus(ctx context.Context, id int64, status shared.EscalationStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockEscalationRepo) Requeue(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEscalationRepo) Resolve(ctx context.Context, id int64, verdict *escalation.Verdict) error {
	args := m.Called(ctx, id, verdict)
	return args.Error(0)
}

func (m *MockEscalationRepo) WithTx(tx pgx.Tx) escalation.Repository {
	return m
}

// MockAllocationRepo for testing
type MockAllocationRepo struct {
	mock.Mock
}

func (m *MockAllocationRepo) Create(ctx context.Context, alloc *allocation.PaymentAllocation) error {
	args := m.Called(ctx, alloc)
	return args.Error(0)
}

func (m *MockAllocationRepo) GetByID(ctx context.Context, id uuid.UUID) (*allocation.PaymentAllocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*allocation.PaymentAllocation), args.Error(1)
}

func (m *MockAllocationRepo) Find(ctx context.Context, transactionID, documentID uuid.UUID, amount decimal.Decimal) (*allocation.PaymentAllocation, error) {
	args := m.Called(ctx, transactionID, documentID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*allocation.PaymentAllocation), args.Error(1)
}

func (m *MockAllocationRepo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*allocation.PaymentAllocation, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*allocation.PaymentAllocation), args.Error(1)
}

func (m *MockAllocationRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*allocation.PaymentAllocation, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*allocation.PaymentAllocation), args.Error(1)
}

func (m *MockAllocationRepo) ListRecentByCounterparty(ctx context.Context, workspaceID uuid.UUID, counterparty string, limit int) ([]*allocation.PaymentAllocation, error) {
	args := m.Called(ctx, workspaceID, counterparty, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*allocation.PaymentAllocation), args.Error(1)
}

func (m *MockAllocationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAllocationRepo) WithTx(tx pgx.Tx) allocation.Repository {
	return m
}

func TestEscalationManager_ShouldEscalate(t *testing.T) {
	manager := NewEscalationManager(&MockEscalationRepo{}, &MockPatternRepo{}, &MockAllocationRepo{}, 60, slog.Default())

	ranked := func(confidence int) []decision.ScoredCandidate {
		return []decision.ScoredCandidate{{
			Items:   []decision.CandidateItem{{ID: uuid.New(), Amount: "100.00"}},
			Signals: decision.Signals{Confidence: confidence},
		}}
	}

	tests := []struct {
		name     string
		outcome  *matching.Outcome
		expected bool
	}{
		{
			name:     "no match with candidates escalates",
			outcome:  &matching.Outcome{Action: shared.MatchActionNoMatch, Ranked: ranked(25)},
			expected: true,
		},
		{
			name:     "no match without candidates does not",
			outcome:  &matching.Outcome{Action: shared.MatchActionNoMatch},
			expected: false,
		},
		{
			name:     "low scoring tie escalates",
			outcome:  &matching.Outcome{Action: shared.MatchActionPresentOptions, Ranked: ranked(52)},
			expected: true,
		},
		{
			name:     "strong tie stays with the accountant",
			outcome:  &matching.Outcome{Action: shared.MatchActionPresentOptions, Ranked: ranked(78)},
			expected: false,
		},
		{
			name:     "auto match never escalates",
			outcome:  &matching.Outcome{Action: shared.MatchActionAutoMatch, Ranked: ranked(95)},
			expected: false,
		},
		{
			name:     "suggestions never escalate",
			outcome:  &matching.Outcome{Action: shared.MatchActionSuggest, Ranked: ranked(65)},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, manager.ShouldEscalate(tt.outcome))
		})
	}
}

func TestEscalationManager_Enqueue(t *testing.T) {
	logger := slog.Default()
	ctx := context.Background()
	workspaceID := uuid.New()

	newRequest := func() *shared.ScanRequest {
		return &shared.ScanRequest{
			RequestID:     uuid.New(),
			WorkspaceID:   workspaceID,
			AnchorKind:    shared.AnchorKindTransaction,
			AnchorID:      uuid.New(),
			CorrelationID: "corr-escalations",
		}
	}

	newInput := func(doc *document.Document) *service.MatchInput {
		return &service.MatchInput{
			Transaction: &transaction.Transaction{
				ID:          uuid.New(),
				WorkspaceID: workspaceID,
				Date:        time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
				Amount:      decimal.NewFromInt(1200),
				Allocated:   decimal.Zero,
				Direction:   shared.DirectionCredit,
				Currency:    "USD",
				Description: "WIRE TRANSFER REF 4471",
			},
			DocumentPool: []*document.Document{doc},
		}
	}

	newOutcome := func(doc *document.Document) *matching.Outcome {
		return &matching.Outcome{
			Action: shared.MatchActionNoMatch,
			Ranked: []decision.ScoredCandidate{{
				Items:   []decision.CandidateItem{{ID: doc.ID, Amount: "1200.00"}},
				Amount:  "1200.00",
				Signals: decision.Signals{Confidence: 30},
			}},
		}
	}

	t.Run("queues a fully enriched case", func(t *testing.T) {
		mockEscalations := &MockEscalationRepo{}
		mockPatterns := &MockPatternRepo{}
		mockAllocations := &MockAllocationRepo{}
		manager := NewEscalationManager(mockEscalations, mockPatterns, mockAllocations, 60, logger)

		doc := testOpenDocument(workspaceID, "Acme Corp")
		request := newRequest()
		input := newInput(doc)
		outcome := newOutcome(doc)

		pattern := &vendorpattern.Pattern{
			Counterparty:     "acme corp",
			DisplayName:      "Acme Corp",
			Keywords:         []string{"acme"},
			TypicalDelayDays: 3.5,
			MatchCount:       12,
			LearningScore:    0.8,
		}
		history := []*allocation.PaymentAllocation{{
			ID:            uuid.New(),
			TransactionID: uuid.New(),
			DocumentID:    uuid.New(),
			Amount:        decimal.NewFromInt(950),
			Method:        shared.AllocationMethodManual,
			AllocatedAt:   time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC),
		}}

		mockPatterns.On("GetByCounterparty", ctx, workspaceID, "acme corp").Return(pattern, nil).Once()
		mockAllocations.On("ListRecentByCounterparty", ctx, workspaceID, "Acme Corp", historyLimit).Return(history, nil).Once()

		var queued *escalation.Case
		mockEscalations.On("Create", ctx, mock.AnythingOfType("*escalation.Case")).
			Run(func(args mock.Arguments) { queued = args.Get(1).(*escalation.Case) }).
			Return(nil).Once()

		err := manager.Enqueue(ctx, request, input, outcome)

		require.NoError(t, err)
		require.NotNil(t, queued)
		assert.Equal(t, request.RequestID, queued.DecisionID)
		assert.Equal(t, shared.EscalationStatusPending, queued.Status)
		assert.Equal(t, 0, queued.Attempts)

		investigation, err := queued.Request()
		require.NoError(t, err)
		assert.Equal(t, input.Transaction.ID, investigation.Anchor.ID)
		assert.Equal(t, "1200.00", investigation.Anchor.Amount)
		require.Len(t, investigation.Candidates, 1)
		require.NotNil(t, investigation.Pattern)
		assert.Equal(t, "Acme Corp", investigation.Pattern.Counterparty)
		require.Len(t, investigation.History, 1)
		assert.Equal(t, "950.00", investigation.History[0].Amount)
		assert.Equal(t, "manual", investigation.History[0].Method)
		mockEscalations.AssertExpectations(t)
		mockPatterns.AssertExpectations(t)
		mockAllocations.AssertExpectations(t)
	})

	t.Run("document anchors use their own counterparty", func(t *testing.T) {
		mockEscalations := &MockEscalationRepo{}
		mockPatterns := &MockPatternRepo{}
		mockAllocations := &MockAllocationRepo{}
		manager := NewEscalationManager(mockEscalations, mockPatterns, mockAllocations, 60, logger)

		doc := testOpenDocument(workspaceID, "Borealis Media")
		request := newRequest()
		request.AnchorKind = shared.AnchorKindDocument
		request.AnchorID = doc.ID
		input := &service.MatchInput{
			Document: doc,
			TransactionPool: []*transaction.Transaction{
				{ID: uuid.New(), WorkspaceID: workspaceID, Direction: shared.DirectionCredit},
			},
		}
		outcome := &matching.Outcome{
			Action: shared.MatchActionNoMatch,
			Ranked: []decision.ScoredCandidate{{
				Items:   []decision.CandidateItem{{ID: input.TransactionPool[0].ID, Amount: "1200.00"}},
				Signals: decision.Signals{Confidence: 22},
			}},
		}

		mockPatterns.On("GetByCounterparty", ctx, workspaceID, "borealis media").Return(nil, nil).Once()
		mockAllocations.On("ListRecentByCounterparty", ctx, workspaceID, "Borealis Media", historyLimit).
			Return([]*allocation.PaymentAllocation{}, nil).Once()
		var queued *escalation.Case
		mockEscalations.On("Create", ctx, mock.AnythingOfType("*escalation.Case")).
			Run(func(args mock.Arguments) { queued = args.Get(1).(*escalation.Case) }).
			Return(nil).Once()

		err := manager.Enqueue(ctx, request, input, outcome)

		require.NoError(t, err)
		investigation, err := queued.Request()
		require.NoError(t, err)
		assert.Equal(t, shared.AnchorKindDocument, investigation.Anchor.Kind)
		assert.Equal(t, "Borealis Media", investigation.Anchor.Counterparty)
		assert.Nil(t, investigation.Pattern)
		assert.Empty(t, investigation.History)
		mockPatterns.AssertExpectations(t)
	})

	t.Run("enrichment failures degrade the case file without blocking", func(t *testing.T) {
		mockEscalations := &MockEscalationRepo{}
		mockPatterns := &MockPatternRepo{}
		mockAllocations := &MockAllocationRepo{}
		manager := NewEscalationManager(mockEscalations, mockPatterns, mockAllocations, 60, logger)

		doc := testOpenDocument(workspaceID, "Acme Corp")
		request := newRequest()
		input := newInput(doc)
		outcome := newOutcome(doc)

		mockPatterns.On("GetByCounterparty", ctx, workspaceID, "acme corp").
			Return(nil, errors.New("connection refused")).Once()
		mockAllocations.On("ListRecentByCounterparty", ctx, workspaceID, "Acme Corp", historyLimit).
			Return(nil, errors.New("connection refused")).Once()
		var queued *escalation.Case
		mockEscalations.On("Create", ctx, mock.AnythingOfType("*escalation.Case")).
			Run(func(args mock.Arguments) { queued = args.Get(1).(*escalation.Case) }).
			Return(nil).Once()

		err := manager.Enqueue(ctx, request, input, outcome)

		require.NoError(t, err)
		investigation, err := queued.Request()
		require.NoError(t, err)
		assert.Nil(t, investigation.Pattern)
		assert.Empty(t, investigation.History)
		require.Len(t, investigation.Candidates, 1)
	})

	t.Run("queue failure propagates", func(t *testing.T) {
		mockEscalations := &MockEscalationRepo{}
		mockPatterns := &MockPatternRepo{}
		mockAllocations := &MockAllocationRepo{}
		manager := NewEscalationManager(mockEscalations, mockPatterns, mockAllocations, 60, logger)

		doc := testOpenDocument(workspaceID, "Acme Corp")
		request := newRequest()
		input := newInput(doc)
		outcome := newOutcome(doc)

		mockPatterns.On("GetByCounterparty", ctx, workspaceID, "acme corp").Return(nil, nil).Once()
		mockAllocations.On("ListRecentByCounterparty", ctx, workspaceID, "Acme Corp", historyLimit).
			Return([]*allocation.PaymentAllocation{}, nil).Once()
		mockEscalations.On("Create", ctx, mock.AnythingOfType("*escalation.Case")).
			Return(errors.New("insert failed")).Once()

		err := manager.Enqueue(ctx, request, input, outcome)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert failed")
	})
}
