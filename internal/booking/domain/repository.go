package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	ListByProviderAndStatus(ctx context.Context, db *gorm.DB, providerID snowflake.ID, statuses []BookingStatus, forUpdate bool) ([]Booking, error)
	UpdateLifecycle(ctx context.Context, db *gorm.DB, booking *Booking) error
	UpdateAmounts(ctx context.Context, db *gorm.DB, booking *Booking) (bool, error)
	SetGatewaySubscriptionRef(ctx context.Context, db *gorm.DB, booking *Booking) error
}
