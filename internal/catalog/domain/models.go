// Package domain contains persistence models for the provider service catalog.
package domain

import (
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/pricing"
	"github.com/bwmarrin/snowflake"
)

// Service is a provider's bookable offering. Bookings snapshot its
// price terms at creation, so edits here never touch in-flight bookings.
type Service struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id,string"`
	ProviderID             snowflake.ID  `gorm:"not null;index" json:"provider_id,string"`
	DisplayName            string        `gorm:"type:text;not null" json:"display_name"`
	PricingModel           pricing.Model `gorm:"type:text;not null" json:"pricing_model"`
	FixedPrice             int64         `gorm:"not null;default:0" json:"fixed_price"`
	HourlyRate             int64         `gorm:"not null;default:0" json:"hourly_rate"`
	DefaultDurationMinutes int64         `gorm:"not null;default:60" json:"default_duration_minutes"`
	Active                 bool          `gorm:"not null;default:true" json:"active"`
	CreatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Service) TableName() string { return "services" }
