package repository

import (
	"context"

	bookingdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const bookingColumns = `id, service_id, provider_id, customer_id, type, recurring_frequency, status,
	 start_at, duration_minutes, pricing_model, total_amount, upfront_amount, completion_amount,
	 commission, currency, customer_notes, gateway_subscription_ref,
	 created_at, updated_at, approved_at, rejected_at, started_at, completed_at, cancelled_at`

type repo struct{}

func Provide() bookingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *bookingdomain.Booking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bookings (
			id, service_id, provider_id, customer_id, type, recurring_frequency, status,
			start_at, duration_minutes, pricing_model, total_amount, upfront_amount,
			completion_amount, commission, currency, customer_notes, gateway_subscription_ref,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID,
		booking.ServiceID,
		booking.ProviderID,
		booking.CustomerID,
		booking.Type,
		booking.RecurringFrequency,
		booking.Status,
		booking.StartAt,
		booking.DurationMinutes,
		booking.PricingModel,
		booking.TotalAmount,
		booking.UpfrontAmount,
		booking.CompletionAmount,
		booking.Commission,
		booking.Currency,
		booking.CustomerNotes,
		booking.GatewaySubscriptionRef,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*bookingdomain.Booking, error) {
	return findBooking(ctx, db, id, false)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*bookingdomain.Booking, error) {
	return findBooking(ctx, db, id, true)
}

func findBooking(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*bookingdomain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var booking bookingdomain.Booking
	err := db.WithContext(ctx).Raw(query, id).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

// ListByProviderAndStatus returns the provider's bookings in the given
// statuses. With forUpdate set the rows are locked so a concurrent
// approval cannot slip a conflicting slot past the guard.
func (r *repo) ListByProviderAndStatus(ctx context.Context, db *gorm.DB, providerID snowflake.ID, statuses []bookingdomain.BookingStatus, forUpdate bool) ([]bookingdomain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE provider_id = ? AND status IN ?`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var bookings []bookingdomain.Booking
	err := db.WithContext(ctx).Raw(query, providerID, statuses).Scan(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, booking *bookingdomain.Booking) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, approved_at = ?, rejected_at = ?, started_at = ?, completed_at = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ?`,
		booking.Status,
		booking.ApprovedAt,
		booking.RejectedAt,
		booking.StartedAt,
		booking.CompletedAt,
		booking.CancelledAt,
		booking.UpdatedAt,
		booking.ID,
	).Error
}

// UpdateAmounts persists late-bound amounts exactly once; the guard on
// total_amount = 0 makes a concurrent second write a no-op.
func (r *repo) UpdateAmounts(ctx context.Context, db *gorm.DB, booking *bookingdomain.Booking) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET total_amount = ?, upfront_amount = ?, completion_amount = ?, commission = ?, updated_at = ?
		 WHERE id = ? AND total_amount = 0`,
		booking.TotalAmount,
		booking.UpfrontAmount,
		booking.CompletionAmount,
		booking.Commission,
		booking.UpdatedAt,
		booking.ID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetGatewaySubscriptionRef(ctx context.Context, db *gorm.DB, booking *bookingdomain.Booking) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET gateway_subscription_ref = ?, updated_at = ?
		 WHERE id = ?`,
		booking.GatewaySubscriptionRef,
		booking.UpdatedAt,
		booking.ID,
	).Error
}
