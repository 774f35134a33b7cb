package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordPendingRequest struct {
	BookingID        snowflake.ID
	Phase            Phase
	Amount           int64
	Currency         string
	Provider         string
	SessionReference string
}

type RecordSettledRequest struct {
	BookingID       snowflake.ID
	Phase           Phase
	Amount          int64
	Currency        string
	Provider        string
	ProviderEventID string
}

// ResolveRequest finalizes a pending attempt. BookingTotal caps the
// running succeeded sum for the booking.
type ResolveRequest struct {
	SessionReference string
	Outcome          TransactionStatus
	BookingTotal     int64
}

type Ledger interface {
	RecordPending(ctx context.Context, req RecordPendingRequest) (PaymentTransaction, error)
	Resolve(ctx context.Context, req ResolveRequest) (PaymentTransaction, error)
	RecordSettled(ctx context.Context, req RecordSettledRequest) (PaymentTransaction, bool, error)
	HasSucceeded(ctx context.Context, bookingID snowflake.ID, phase Phase) (bool, error)
	FindPendingByPhase(ctx context.Context, bookingID snowflake.ID, phase Phase) (*PaymentTransaction, error)
	TotalSucceeded(ctx context.Context, bookingID snowflake.ID) (int64, error)

	// ExpirePending fails pending attempts opened before cutoff. Covers
	// checkout sessions whose expiry callback never arrived.
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	FindBySessionReference(ctx context.Context, sessionReference string) (*PaymentTransaction, error)
	ListSucceededByBooking(ctx context.Context, bookingID snowflake.ID) ([]PaymentTransaction, error)
}

var (
	ErrInvalidBooking      = errors.New("invalid_booking")
	ErrInvalidPhase        = errors.New("invalid_phase")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidOutcome      = errors.New("invalid_outcome")
	ErrMissingReference    = errors.New("missing_session_reference")
	ErrDuplicateReference  = errors.New("duplicate_session_reference")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrAlreadyResolved     = errors.New("transaction_already_resolved")
	ErrLedgerOverflow      = errors.New("ledger_overflow")
)
