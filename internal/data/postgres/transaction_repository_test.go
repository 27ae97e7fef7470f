package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
	"github.com/reconcilia-matching-engine/internal/domain/transaction"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testTransaction() *transaction.Transaction {
	now := time.Now()
	return &transaction.Transaction{
		ID:          uuid.New(),
		WorkspaceID: uuid.New(),
		AccountID:   uuid.New(),
		Date:        now.AddDate(0, 0, -2),
		Amount:      decimal.RequireFromString("5000"),
		Direction:   shared.DirectionCredit,
		Currency:    "USD",
		Description: "ACME CORP PAYMENT INV001",
		Reference:   "INV001",
		Status:      shared.ReconciliationStatusUnmatched,
		Allocated:   decimal.Zero,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func transactionColumns() []string {
	return []string{"id", "workspace_id", "account_id", "date", "amount", "direction", "currency", "description", "reference", "status", "allocated", "version", "created_at", "updated_at"}
}

func transactionRow(txn *transaction.Transaction) *pgxmock.Rows {
	return pgxmock.NewRows(transactionColumns()).
		AddRow(txn.ID, txn.WorkspaceID, txn.AccountID, txn.Date, txn.Amount, txn.Direction, txn.Currency, txn.Description, txn.Reference, txn.Status, txn.Allocated, txn.Version, txn.CreatedAt, txn.UpdatedAt)
}

func TestTransactionRepository_Create(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: logger}
	txn := testTransaction()

	query := `
		INSERT INTO bank_transactions \(id, workspace_id, account_id, date, amount, direction, currency, description, reference, status, allocated, version, created_at, updated_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11, \$12, \$13, \$14\)
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(txn.ID, txn.WorkspaceID, txn.AccountID, txn.Date, txn.Amount, txn.Direction, txn.Currency, txn.Description, txn.Reference, txn.Status, txn.Allocated, txn.Version, txn.CreatedAt, txn.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.Create(ctx, txn)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(txn.ID, txn.WorkspaceID, txn.AccountID, txn.Date, txn.Amount, txn.Direction, txn.Currency, txn.Description, txn.Reference, txn.Status, txn.Allocated, txn.Version, txn.CreatedAt, txn.UpdatedAt).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, txn)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create transaction")
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: logger}
	expected := testTransaction()

	query := `
		SELECT id, workspace_id, account_id, date, amount, direction, currency, description, reference, status, allocated, version, created_at, updated_at
		FROM bank_transactions
		WHERE id = \$1
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnRows(transactionRow(expected))

		txn, err := repo.GetByID(ctx, expected.ID)
		assert.NoError(t, err)
		assert.Equal(t, expected, txn)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnError(pgx.ErrNoRows)

		txn, err := repo.GetByID(ctx, expected.ID)
		assert.Error(t, err)
		assert.Nil(t, txn)
		var notFoundErr transaction.ErrTransactionNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, expected.ID, notFoundErr.TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_ListOpen(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: logger}
	workspaceID := uuid.New()

	query := `
		SELECT id, workspace_id, account_id, date, amount, direction, currency, description, reference, status, allocated, version, created_at, updated_at
		FROM bank_transactions
		WHERE workspace_id = \$1 AND direction = \$2 AND status != \$3
		ORDER BY date ASC, created_at ASC
	`

	t.Run("success", func(t *testing.T) {
		first := testTransaction()
		second := testTransaction()
		second.Status = shared.ReconciliationStatusPartial
		second.Allocated = decimal.RequireFromString("1000")

		rows := pgxmock.NewRows(transactionColumns()).
			AddRow(first.ID, first.WorkspaceID, first.AccountID, first.Date, first.Amount, first.Direction, first.Currency, first.Description, first.Reference, first.Status, first.Allocated, first.Version, first.CreatedAt, first.UpdatedAt).
			AddRow(second.ID, second.WorkspaceID, second.AccountID, second.Date, second.Amount, second.Direction, second.Currency, second.Description, second.Reference, second.Status, second.Allocated, second.Version, second.CreatedAt, second.UpdatedAt)

		mock.ExpectQuery(query).
			WithArgs(workspaceID, shared.DirectionCredit, shared.ReconciliationStatusMatched).
			WillReturnRows(rows)

		txns, err := repo.ListOpen(ctx, workspaceID, shared.DirectionCredit)
		assert.NoError(t, err)
		require.Len(t, txns, 2)
		assert.Equal(t, first.ID, txns[0].ID)
		assert.Equal(t, second.ID, txns[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(workspaceID, shared.DirectionCredit, shared.ReconciliationStatusMatched).
			WillReturnError(errors.New("db error"))

		txns, err := repo.ListOpen(ctx, workspaceID, shared.DirectionCredit)
		assert.Error(t, err)
		assert.Nil(t, txns)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_UpdateReconciliation(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: logger}
	txn := testTransaction()
	require.NoError(t, txn.ApplyAllocation(decimal.RequireFromString("5000")))

	query := `
		UPDATE bank_transactions
		SET status = \$1, allocated = \$2, version = \$3, updated_at = \$4
		WHERE id = \$5 AND version = \$6
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(txn.Status, txn.Allocated, txn.Version, txn.UpdatedAt, txn.ID, txn.Version-1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.UpdateReconciliation(ctx, txn)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version conflict", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(txn.Status, txn.Allocated, txn.Version, txn.UpdatedAt, txn.ID, txn.Version-1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateReconciliation(ctx, txn)
		assert.Error(t, err)
		var conflictErr shared.ErrConcurrencyConflict
		assert.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, txn.ID, conflictErr.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_LockForUpdate(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: logger}
	expected := testTransaction()

	query := `
		SELECT id, workspace_id, account_id, date, amount, direction, currency, description, reference, status, allocated, version, created_at, updated_at
		FROM bank_transactions
		WHERE id = \$1
		FOR UPDATE
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnRows(transactionRow(expected))

		txn, err := repo.LockForUpdate(ctx, expected.ID)
		assert.NoError(t, err)
		assert.Equal(t, expected, txn)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnError(pgx.ErrNoRows)

		txn, err := repo.LockForUpdate(ctx, expected.ID)
		assert.Error(t, err)
		assert.Nil(t, txn)
		var notFoundErr transaction.ErrTransactionNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
