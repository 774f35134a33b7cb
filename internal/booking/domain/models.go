// Package domain contains persistence models for bookings.
package domain

import (
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/pricing"
	"github.com/bwmarrin/snowflake"
)

// BookingStatus represents lifecycle states for a booking.
type BookingStatus string

const (
	BookingStatusRequested   BookingStatus = "requested"
	BookingStatusApproved    BookingStatus = "approved"
	BookingStatusRejected    BookingStatus = "rejected"
	BookingStatusUpfrontPaid BookingStatus = "upfront_paid"
	BookingStatusInProgress  BookingStatus = "in_progress"
	BookingStatusCompleted   BookingStatus = "completed"
	BookingStatusCancelled   BookingStatus = "cancelled"
)

type BookingType string

const (
	BookingTypeOneTime   BookingType = "one_time"
	BookingTypeRecurring BookingType = "recurring"
)

type RecurringFrequency string

const (
	FrequencyWeekly    RecurringFrequency = "weekly"
	FrequencyMonthly   RecurringFrequency = "monthly"
	FrequencyQuarterly RecurringFrequency = "quarterly"
)

// Booking captures one customer request against a provider's service.
// Price terms are snapshotted at creation; later catalog edits never
// change these amounts.
type Booking struct {
	ID                 snowflake.ID        `gorm:"primaryKey" json:"id,string"`
	ServiceID          snowflake.ID        `gorm:"not null;index" json:"service_id,string"`
	ProviderID         snowflake.ID        `gorm:"not null;index" json:"provider_id,string"`
	CustomerID         snowflake.ID        `gorm:"not null;index" json:"customer_id,string"`
	Type               BookingType         `gorm:"type:text;not null" json:"type"`
	RecurringFrequency *RecurringFrequency `gorm:"type:text" json:"recurring_frequency,omitempty"`
	Status             BookingStatus       `gorm:"type:text;not null" json:"status"`

	StartAt         time.Time `gorm:"not null;index" json:"start_at"`
	DurationMinutes int64     `gorm:"not null" json:"duration_minutes"`

	PricingModel     pricing.Model `gorm:"type:text;not null" json:"pricing_model"`
	TotalAmount      int64         `gorm:"not null;default:0" json:"total_amount"`
	UpfrontAmount    int64         `gorm:"not null;default:0" json:"upfront_amount"`
	CompletionAmount int64         `gorm:"not null;default:0" json:"completion_amount"`
	Commission       int64         `gorm:"not null;default:0" json:"commission"`
	Currency         string        `gorm:"type:text;not null;default:usd" json:"currency"`

	CustomerNotes          string  `gorm:"type:text" json:"customer_notes,omitempty"`
	GatewaySubscriptionRef *string `gorm:"type:text" json:"gateway_subscription_ref,omitempty"`

	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	ApprovedAt  *time.Time `gorm:"" json:"approved_at,omitempty"`
	RejectedAt  *time.Time `gorm:"" json:"rejected_at,omitempty"`
	StartedAt   *time.Time `gorm:"" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"" json:"completed_at,omitempty"`
	CancelledAt *time.Time `gorm:"" json:"cancelled_at,omitempty"`
}

// TableName sets the database table name.
func (Booking) TableName() string { return "bookings" }

// AmountsPending reports whether the booking still waits for a
// negotiated or donor-chosen amount.
func (b Booking) AmountsPending() bool {
	return b.TotalAmount == 0 &&
		(b.PricingModel == pricing.ModelQuote || b.PricingModel == pricing.ModelDonation)
}

// Open reports whether the booking still occupies calendar time.
func (b Booking) Open() bool {
	switch b.Status {
	case BookingStatusRequested, BookingStatusApproved, BookingStatusUpfrontPaid, BookingStatusInProgress:
		return true
	default:
		return false
	}
}
