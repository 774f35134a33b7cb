package domain

import (
	"time"

	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one inbound gateway webhook, stored before it is
// acted on. The (provider, provider_event_id) pair is unique so a
// redelivered webhook inserts exactly once.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	BookingID       snowflake.ID   `json:"booking_id" gorm:"not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeRefunded         = "refunded"
	EventTypeInvoicePaid      = "invoice_paid"
)

// PaymentEvent is the canonical gateway event parsed by adapters.
type PaymentEvent struct {
	Provider         string
	ProviderEventID  string
	SessionReference string
	Type             string
	BookingID        snowflake.ID
	Phase            ledgerdomain.Phase
	Amount           int64
	Currency         string
	SubscriptionRef  string
	OccurredAt       time.Time
	RawPayload       []byte
}

// CheckoutSession is what the gateway hands back when a payment is
// initiated. SessionReference keys the ledger attempt and is what the
// settlement webhook later resolves against.
type CheckoutSession struct {
	SessionReference string `json:"session_reference"`
	CheckoutURL      string `json:"checkout_url"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

type CheckoutParams struct {
	BookingID      snowflake.ID
	Phase          ledgerdomain.Phase
	Amount         int64
	Currency       string
	Description    string
	IdempotencyKey string
}

type SubscriptionParams struct {
	BookingID  snowflake.ID
	CustomerID snowflake.ID
	Amount     int64
	Currency   string
	Interval   string
}
