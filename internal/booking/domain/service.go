package domain

import (
	"context"
	"errors"
	"time"

	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/pricing"
	"github.com/bwmarrin/snowflake"
)

type CreateBookingRequest struct {
	ServiceID          string    `json:"service_id"`
	CustomerID         string    `json:"customer_id"`
	RequestedStart     time.Time `json:"requested_start"`
	DurationMinutes    int64     `json:"duration_minutes,omitempty"`
	BookingType        string    `json:"booking_type"`
	RecurringFrequency string    `json:"recurring_frequency,omitempty"`
	CustomerNotes      string    `json:"customer_notes,omitempty"`

	// Amount applies only to quote/donation services; fixed and hourly
	// amounts always come from the catalog snapshot.
	Amount *int64 `json:"amount,omitempty"`
}

type CreateBookingResponse struct {
	Booking Booking       `json:"booking"`
	Quote   pricing.Quote `json:"quote"`
}

// BookingStatusView is the status query result: the booking plus its
// ledger summary.
type BookingStatusView struct {
	Booking        Booking `json:"booking"`
	UpfrontPaid    bool    `json:"upfront_paid"`
	CompletionPaid bool    `json:"completion_paid"`
}

type Lifecycle interface {
	CreateRequest(ctx context.Context, req CreateBookingRequest) (CreateBookingResponse, error)
	Approve(ctx context.Context, bookingID string) (Booking, error)
	Reject(ctx context.Context, bookingID string) (Booking, error)
	Start(ctx context.Context, bookingID string) (Booking, error)
	Cancel(ctx context.Context, bookingID string) (Booking, error)
	GetStatus(ctx context.Context, bookingID string) (BookingStatusView, error)

	// MarkUpfrontPaid and MarkCompleted are payment-driven transitions;
	// both verify the ledger before advancing.
	MarkUpfrontPaid(ctx context.Context, bookingID snowflake.ID) error
	MarkCompleted(ctx context.Context, bookingID snowflake.ID) error

	// SetAmounts persists a late-bound quote/donation amount the first
	// time a payment is initiated.
	SetAmounts(ctx context.Context, bookingID snowflake.ID, quote pricing.Quote) (Booking, error)
	AttachGatewaySubscription(ctx context.Context, bookingID snowflake.ID, subscriptionRef string) error

	FindByID(ctx context.Context, bookingID snowflake.ID) (*Booking, error)
}

// RefundRequester issues refunds for settled transactions when a paid
// booking is cancelled. Implemented by the payment gateway adapter.
type RefundRequester interface {
	RequestRefund(ctx context.Context, tx ledgerdomain.PaymentTransaction) error
}

var (
	ErrBookingNotFound      = errors.New("booking_not_found")
	ErrInvalidBookingID     = errors.New("invalid_booking_id")
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidBookingType   = errors.New("invalid_booking_type")
	ErrInvalidFrequency     = errors.New("invalid_recurring_frequency")
	ErrInvalidStart         = errors.New("invalid_requested_start")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrSlotConflict         = errors.New("slot_conflict")
	ErrUpfrontNotSettled    = errors.New("upfront_not_settled")
	ErrCompletionNotSettled = errors.New("completion_not_settled")
	ErrAmountsAlreadySet    = errors.New("amounts_already_set")
	ErrCalendarBusy         = errors.New("provider_calendar_busy")
)
