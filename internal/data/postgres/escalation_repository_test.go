package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconcilia-matching-engine/internal/domain/escalation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

func testCase(t *testing.T) *escalation.Case {
	t.Helper()
	req := &escalation.InvestigationRequest{
		WorkspaceID: uuid.New(),
		DecisionID:  uuid.New(),
		AnchorKind:  shared.AnchorKindTransaction,
		AnchorID:    uuid.New(),
	}
	c, err := escalation.NewCase(req)
	require.NoError(t, err)
	return c
}

func TestEscalationRepository_Create(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscalationRepository{querier: mock, logger: logger}
	c := testCase(t)

	query := `
		INSERT INTO escalation_queue \(workspace_id, decision_id, anchor_kind, anchor_id, payload, status, attempts, created_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)
		RETURNING id
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(c.WorkspaceID, c.DecisionID, c.AnchorKind, c.AnchorID, c.Payload, c.Status, c.Attempts, c.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		err := repo.Create(ctx, c)
		assert.NoError(t, err)
		assert.Equal(t, int64(42), c.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(c.WorkspaceID, c.DecisionID, c.AnchorKind, c.AnchorID, c.Payload, c.Status, c.Attempts, c.CreatedAt).
			WillReturnError(errors.New("db error"))

		err := repo.Create(ctx, c)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create escalation case")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscalationRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscalationRepository{querier: mock, logger: logger}

	query := `
		SELECT id, workspace_id, decision_id, anchor_kind, anchor_id, payload, status, attempts, verdict, created_at, last_attempt_at
		FROM escalation_queue
		WHERE status = \$1
		ORDER BY created_at ASC
		LIMIT \$2
	`

	t.Run("success", func(t *testing.T) {
		first := testCase(t)
		first.ID = 1
		second := testCase(t)
		second.ID = 2
		lastAttempt := time.Now()

		rows := pgxmock.NewRows([]string{"id", "workspace_id", "decision_id", "anchor_kind", "anchor_id", "payload", "status", "attempts", "verdict", "created_at", "last_attempt_at"}).
			AddRow(first.ID, first.WorkspaceID, first.DecisionID, first.AnchorKind, first.AnchorID, first.Payload, first.Status, first.Attempts, nil, first.CreatedAt, nil).
			AddRow(second.ID, second.WorkspaceID, second.DecisionID, second.AnchorKind, second.AnchorID, second.Payload, second.Status, 2, nil, second.CreatedAt, &lastAttempt)

		mock.ExpectQuery(query).
			WithArgs(shared.EscalationStatusPending, 10).
			WillReturnRows(rows)

		cases, err := repo.GetPending(ctx, 10)
		assert.NoError(t, err)
		require.Len(t, cases, 2)
		assert.Equal(t, first.DecisionID, cases[0].DecisionID)
		assert.Nil(t, cases[0].LastAttemptAt)
		assert.Equal(t, 2, cases[1].Attempts)
		assert.NotNil(t, cases[1].LastAttemptAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty queue", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(shared.EscalationStatusPending, 10).
			WillReturnRows(pgxmock.NewRows([]string{"id", "workspace_id", "decision_id", "anchor_kind", "anchor_id", "payload", "status", "attempts", "verdict", "created_at", "last_attempt_at"}))

		cases, err := repo.GetPending(ctx, 10)
		assert.NoError(t, err)
		assert.Empty(t, cases)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscalationRepository_GetByDecisionID(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscalationRepository{querier: mock, logger: logger}
	decisionID := uuid.New()

	query := `
		SELECT id, workspace_id, decision_id, anchor_kind, anchor_id, payload, status, attempts, verdict, created_at, last_attempt_at
		FROM escalation_queue
		WHERE decision_id = \$1
	`

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(decisionID).WillReturnError(pgx.ErrNoRows)

		c, err := repo.GetByDecisionID(ctx, decisionID)
		assert.Error(t, err)
		assert.Nil(t, c)
		var notFoundErr escalation.ErrCaseNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, decisionID, notFoundErr.DecisionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscalationRepository_IncrementAttempts(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscalationRepository{querier: mock, logger: logger}

	query := `
		UPDATE escalation_queue
		SET attempts = attempts \+ 1, last_attempt_at = \$1
		WHERE id = \$2
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(pgxmock.AnyArg(), int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.IncrementAttempts(ctx, 7)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(pgxmock.AnyArg(), int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.IncrementAttempts(ctx, 7)
		assert.Error(t, err)
		var notFoundErr escalation.ErrCaseNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, int64(7), notFoundErr.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscalationRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscalationRepository{querier: mock, logger: logger}

	query := `
		UPDATE escalation_queue
		SET status = \$1, last_attempt_at = \$2
		WHERE id = \$3
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.EscalationStatusFailed, pgxmock.AnyArg(), int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.UpdateStatus(ctx, 7, shared.EscalationStatusFailed)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscalationRepository_Requeue(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscalationRepository{querier: mock, logger: logger}

	query := `
		UPDATE escalation_queue
		SET status = \$1, attempts = 0, last_attempt_at = NULL
		WHERE id = \$2 AND status = \$3
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.EscalationStatusPending, int64(9), shared.EscalationStatusFailed).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.Requeue(ctx, 9)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("case not failed", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.EscalationStatusPending, int64(9), shared.EscalationStatusFailed).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Requeue(ctx, 9)

		var notFound escalation.ErrCaseNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, int64(9), notFound.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscalationRepository_Resolve(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscalationRepository{querier: mock, logger: logger}
	verdict := &escalation.Verdict{
		Status:          "resolved",
		Confidence:      88,
		Explanation:     "fee-adjusted stripe payout for the open invoice",
		SuggestedAction: "suggest",
		MatchedItemIDs:  []uuid.UUID{uuid.New()},
	}
	payload, err := json.Marshal(verdict)
	require.NoError(t, err)

	query := `
		UPDATE escalation_queue
		SET status = \$1, verdict = \$2, last_attempt_at = \$3
		WHERE id = \$4
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.EscalationStatusResolved, payload, pgxmock.AnyArg(), int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.Resolve(ctx, 7, verdict)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.EscalationStatusResolved, payload, pgxmock.AnyArg(), int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Resolve(ctx, 7, verdict)
		assert.Error(t, err)
		var notFoundErr escalation.ErrCaseNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
