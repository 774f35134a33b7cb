// Package domain contains the append-only payment transaction ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Phase identifies which installment a transaction settles.
type Phase string

const (
	PhaseUpfront    Phase = "upfront"
	PhaseCompletion Phase = "completion"
)

// TransactionStatus is the resolution state of a ledger attempt.
// pending is the only mutable state; succeeded and failed are final.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// PaymentTransaction is one gateway charge attempt. Rows are never
// deleted; a failed attempt stays on the books next to its retry.
type PaymentTransaction struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id,string"`
	BookingID        snowflake.ID      `gorm:"not null;index" json:"booking_id,string"`
	Phase            Phase             `gorm:"type:text;not null" json:"phase"`
	Amount           int64             `gorm:"not null" json:"amount"`
	Currency         string            `gorm:"type:text;not null;default:usd" json:"currency"`
	Status           TransactionStatus `gorm:"type:text;not null" json:"status"`
	SessionReference string            `gorm:"type:text;not null;uniqueIndex" json:"session_reference"`
	Provider         string            `gorm:"type:text;not null" json:"provider"`
	ProviderEventID  *string           `gorm:"type:text" json:"provider_event_id,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ResolvedAt       *time.Time        `gorm:"" json:"resolved_at,omitempty"`
}

// TableName sets the database table name.
func (PaymentTransaction) TableName() string { return "payment_transactions" }

func ValidPhase(p Phase) bool {
	return p == PhaseUpfront || p == PhaseCompletion
}
