package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconcilia-matching-engine/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidTotal          = errors.New("document total must be positive")
	ErrEmptyCounterparty     = errors.New("counterparty name cannot be empty")
	ErrEmptyDocumentNumber   = errors.New("document number cannot be empty")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
	ErrInvalidPayment        = errors.New("payment amount must be positive")
	ErrExcessiveReversal     = errors.New("reversal exceeds the amount paid")
)

// paidTolerance is the residual below which a document counts as settled
var paidTolerance = decimal.New(1, -2) // $0.01

// Document is an invoice (receivable) or bill (payable). Both share the same
// shape; Kind decides which transaction direction can settle it. The invariant
// AmountRemaining = Total - AmountPaid holds at all times, and AmountRemaining
// only goes negative when PaymentStatus is overpaid.
type Document struct {
	ID               uuid.UUID            `json:"id"`
	WorkspaceID      uuid.UUID            `json:"workspace_id"`
	Kind             shared.DocumentKind  `json:"kind"`
	DocumentNumber   string               `json:"document_number"`
	CounterpartyName string               `json:"counterparty_name"`
	Total            decimal.Decimal      `json:"total"`
	Currency         string               `json:"currency"`
	IssueDate        time.Time            `json:"issue_date"`
	DueDate          *time.Time           `json:"due_date,omitempty"`
	AmountPaid       decimal.Decimal      `json:"amount_paid"`
	AmountRemaining  decimal.Decimal      `json:"amount_remaining"`
	PaymentStatus    shared.PaymentStatus `json:"payment_status"`
	Version          int                  `json:"version"` // For optimistic locking
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// New creates an unpaid document with the given attributes
func New(workspaceID uuid.UUID, kind shared.DocumentKind, number, counterparty string, total decimal.Decimal, currency string, issueDate time.Time, dueDate *time.Time) (*Document, error) {
	if kind != shared.DocumentKindInvoice && kind != shared.DocumentKindBill {
		return nil, shared.ErrInvalidDocumentKind
	}
	if number == "" {
		return nil, ErrEmptyDocumentNumber
	}
	if counterparty == "" {
		return nil, ErrEmptyCounterparty
	}
	if !total.IsPositive() {
		return nil, ErrInvalidTotal
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrencyFormat
	}

	now := time.Now().UTC()
	return &Document{
		ID:               uuid.New(),
		WorkspaceID:      workspaceID,
		Kind:             kind,
		DocumentNumber:   number,
		CounterpartyName: counterparty,
		Total:            total,
		Currency:         currency,
		IssueDate:        issueDate,
		DueDate:          dueDate,
		AmountPaid:       decimal.Zero,
		AmountRemaining:  total,
		PaymentStatus:    shared.PaymentStatusUnpaid,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// SettlesWith reports whether a transaction direction can pay this document.
// Invoices collect credits, bills are paid by debits.
func (d *Document) SettlesWith(direction shared.Direction) bool {
	switch d.Kind {
	case shared.DocumentKindInvoice:
		return direction == shared.DirectionCredit
	case shared.DocumentKindBill:
		return direction == shared.DirectionDebit
	}
	return false
}

// Open reports whether the document still has an unpaid remainder
func (d *Document) Open() bool {
	return d.AmountRemaining.GreaterThan(decimal.Zero)
}

// ApplyPayment records an allocated amount against the document, recomputing
// the remainder and payment status and bumping the lock version
func (d *Document) ApplyPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidPayment
	}

	d.AmountPaid = d.AmountPaid.Add(amount)
	d.recompute()
	d.Version++
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// ReversePayment undoes a previously applied payment amount
func (d *Document) ReversePayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidPayment
	}
	if amount.GreaterThan(d.AmountPaid) {
		return ErrExcessiveReversal
	}

	d.AmountPaid = d.AmountPaid.Sub(amount)
	d.recompute()
	d.Version++
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (d *Document) recompute() {
	d.AmountRemaining = d.Total.Sub(d.AmountPaid)
	switch {
	case d.AmountRemaining.LessThan(paidTolerance.Neg()):
		d.PaymentStatus = shared.PaymentStatusOverpaid
	case d.AmountRemaining.LessThanOrEqual(paidTolerance) && d.AmountPaid.GreaterThan(decimal.Zero):
		d.PaymentStatus = shared.PaymentStatusPaid
	case d.AmountPaid.GreaterThan(decimal.Zero):
		d.PaymentStatus = shared.PaymentStatusPartial
	default:
		d.PaymentStatus = shared.PaymentStatusUnpaid
	}
}
