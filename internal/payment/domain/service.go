package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type InitiatePaymentRequest struct {
	BookingID string             `json:"booking_id"`
	Phase     ledgerdomain.Phase `json:"phase"`

	// Amount binds the negotiated or donor-chosen total the first time
	// a quote/donation booking is paid. Ignored for fixed and hourly.
	Amount *int64 `json:"amount,omitempty"`
}

// Orchestrator drives payments end to end: checkout sessions out,
// webhook events in.
type Orchestrator interface {
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (CheckoutSession, error)
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
	ProcessEvent(ctx context.Context, event *PaymentEvent, payload []byte) error
}

// Gateway is the outbound payment provider surface. Implementations
// must treat CreateCheckoutSession as idempotent on IdempotencyKey.
type Gateway interface {
	Provider() string
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error)
	CreateSubscription(ctx context.Context, params SubscriptionParams) (string, error)
	Refund(ctx context.Context, sessionReference string, amount int64) error
}

// WebhookAdapter authenticates and normalizes inbound callbacks.
type WebhookAdapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidPhase          = errors.New("invalid_phase")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
	ErrAmountRequired        = errors.New("amount_required")
	ErrPhaseNotDue           = errors.New("phase_not_due")
	ErrRateLimited           = errors.New("rate_limited")
	ErrInvalidConfig         = errors.New("invalid_config")
)
