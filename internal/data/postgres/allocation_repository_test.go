package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconcilia-matching-engine/internal/domain/allocation"
	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

func testAllocation() *allocation.PaymentAllocation {
	return &allocation.PaymentAllocation{
		ID:            uuid.New(),
		WorkspaceID:   uuid.New(),
		TransactionID: uuid.New(),
		DocumentID:    uuid.New(),
		Amount:        decimal.RequireFromString("5000"),
		Method:        shared.AllocationMethodAuto,
		Confidence:    95,
		AllocatedAt:   time.Now(),
	}
}

func allocationColumns() []string {
	return []string{"id", "workspace_id", "transaction_id", "document_id", "amount", "method", "confidence", "allocated_at"}
}

func allocationRow(alloc *allocation.PaymentAllocation) *pgxmock.Rows {
	return pgxmock.NewRows(allocationColumns()).
		AddRow(alloc.ID, alloc.WorkspaceID, alloc.TransactionID, alloc.DocumentID, alloc.Amount, alloc.Method, alloc.Confidence, alloc.AllocatedAt)
}

func TestAllocationRepository_Create(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AllocationRepository{querier: mock, logger: logger}
	alloc := testAllocation()

	query := `
		INSERT INTO payment_allocations \(id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(alloc.ID, alloc.WorkspaceID, alloc.TransactionID, alloc.DocumentID, alloc.Amount, alloc.Method, alloc.Confidence, alloc.AllocatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.Create(ctx, alloc)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(alloc.ID, alloc.WorkspaceID, alloc.TransactionID, alloc.DocumentID, alloc.Amount, alloc.Method, alloc.Confidence, alloc.AllocatedAt).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, alloc)
		assert.Error(t, err)
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAllocationRepository_Find(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AllocationRepository{querier: mock, logger: logger}
	expected := testAllocation()

	query := `
		SELECT id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at
		FROM payment_allocations
		WHERE transaction_id = \$1 AND document_id = \$2 AND amount = \$3
	`

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(expected.TransactionID, expected.DocumentID, expected.Amount).
			WillReturnRows(allocationRow(expected))

		alloc, err := repo.Find(ctx, expected.TransactionID, expected.DocumentID, expected.Amount)
		assert.NoError(t, err)
		assert.Equal(t, expected, alloc)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent is not an error", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(expected.TransactionID, expected.DocumentID, expected.Amount).
			WillReturnError(pgx.ErrNoRows)

		alloc, err := repo.Find(ctx, expected.TransactionID, expected.DocumentID, expected.Amount)
		assert.NoError(t, err)
		assert.Nil(t, alloc)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAllocationRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AllocationRepository{querier: mock, logger: logger}
	expected := testAllocation()

	query := `
		SELECT id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at
		FROM payment_allocations
		WHERE id = \$1
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnRows(allocationRow(expected))

		alloc, err := repo.GetByID(ctx, expected.ID)
		assert.NoError(t, err)
		assert.Equal(t, expected, alloc)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnError(pgx.ErrNoRows)

		alloc, err := repo.GetByID(ctx, expected.ID)
		assert.Error(t, err)
		assert.Nil(t, alloc)
		var notFoundErr allocation.ErrAllocationNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, expected.ID, notFoundErr.AllocationID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAllocationRepository_ListByDocument(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AllocationRepository{querier: mock, logger: logger}
	documentID := uuid.New()

	query := `
		SELECT id, workspace_id, transaction_id, document_id, amount, method, confidence, allocated_at
		FROM payment_allocations
		WHERE document_id = \$1
		ORDER BY allocated_at ASC
	`

	t.Run("success", func(t *testing.T) {
		first := testAllocation()
		second := testAllocation()

		rows := pgxmock.NewRows(allocationColumns()).
			AddRow(first.ID, first.WorkspaceID, first.TransactionID, first.DocumentID, first.Amount, first.Method, first.Confidence, first.AllocatedAt).
			AddRow(second.ID, second.WorkspaceID, second.TransactionID, second.DocumentID, second.Amount, second.Method, second.Confidence, second.AllocatedAt)

		mock.ExpectQuery(query).WithArgs(documentID).WillReturnRows(rows)

		allocs, err := repo.ListByDocument(ctx, documentID)
		assert.NoError(t, err)
		require.Len(t, allocs, 2)
		assert.Equal(t, first.ID, allocs[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(documentID).WillReturnRows(pgxmock.NewRows(allocationColumns()))

		allocs, err := repo.ListByDocument(ctx, documentID)
		assert.NoError(t, err)
		assert.Empty(t, allocs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAllocationRepository_ListRecentByCounterparty(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AllocationRepository{querier: mock, logger: logger}
	workspaceID := uuid.New()

	query := `
		SELECT pa.id, pa.workspace_id, pa.transaction_id, pa.document_id, pa.amount, pa.method, pa.confidence, pa.allocated_at
		FROM payment_allocations pa
		JOIN documents d ON d.id = pa.document_id
		WHERE pa.workspace_id = \$1 AND d.counterparty_name ILIKE \$2
		ORDER BY pa.allocated_at DESC
		LIMIT \$3
	`

	t.Run("success", func(t *testing.T) {
		newest := testAllocation()
		older := testAllocation()

		rows := pgxmock.NewRows(allocationColumns()).
			AddRow(newest.ID, newest.WorkspaceID, newest.TransactionID, newest.DocumentID, newest.Amount, newest.Method, newest.Confidence, newest.AllocatedAt).
			AddRow(older.ID, older.WorkspaceID, older.TransactionID, older.DocumentID, older.Amount, older.Method, older.Confidence, older.AllocatedAt)

		mock.ExpectQuery(query).WithArgs(workspaceID, "Acme Corp", 5).WillReturnRows(rows)

		allocs, err := repo.ListRecentByCounterparty(ctx, workspaceID, "Acme Corp", 5)
		assert.NoError(t, err)
		require.Len(t, allocs, 2)
		assert.Equal(t, newest.ID, allocs[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no history", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(workspaceID, "Unknown Vendor", 5).WillReturnRows(pgxmock.NewRows(allocationColumns()))

		allocs, err := repo.ListRecentByCounterparty(ctx, workspaceID, "Unknown Vendor", 5)
		assert.NoError(t, err)
		assert.Empty(t, allocs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAllocationRepository_Delete(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AllocationRepository{querier: mock, logger: logger}
	id := uuid.New()

	query := `
		DELETE FROM payment_allocations
		WHERE id = \$1
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))

		err := repo.Delete(ctx, id)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := repo.Delete(ctx, id)
		assert.Error(t, err)
		var notFoundErr allocation.ErrAllocationNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
