package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *PaymentTransaction) error
	InsertEventOnce(ctx context.Context, db *gorm.DB, tx *PaymentTransaction) (bool, error)
	FindBySessionReference(ctx context.Context, db *gorm.DB, sessionReference string, forUpdate bool) (*PaymentTransaction, error)
	FindPendingByPhase(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, phase Phase) (*PaymentTransaction, error)
	MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, status TransactionStatus, resolvedAt time.Time) (bool, error)
	HasSucceeded(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, phase Phase) (bool, error)
	SumSucceeded(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (int64, error)
	ListSucceededByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]PaymentTransaction, error)
	ExpireStalePending(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int, resolvedAt time.Time) (int64, error)
}
