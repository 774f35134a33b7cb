package repository

import (
	"context"
	"time"

	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *ledgerdomain.PaymentTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (
			id, booking_id, phase, amount, currency, status, session_reference,
			provider, provider_event_id, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.BookingID,
		tx.Phase,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.SessionReference,
		tx.Provider,
		tx.ProviderEventID,
		tx.CreatedAt,
		tx.ResolvedAt,
	).Error
}

// InsertEventOnce inserts a settled transaction keyed by the provider
// event id. Returns false when the event was already recorded.
func (r *repo) InsertEventOnce(ctx context.Context, db *gorm.DB, tx *ledgerdomain.PaymentTransaction) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (
			id, booking_id, phase, amount, currency, status, session_reference,
			provider, provider_event_id, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		tx.ID,
		tx.BookingID,
		tx.Phase,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.SessionReference,
		tx.Provider,
		tx.ProviderEventID,
		tx.CreatedAt,
		tx.ResolvedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindBySessionReference(ctx context.Context, db *gorm.DB, sessionReference string, forUpdate bool) (*ledgerdomain.PaymentTransaction, error) {
	query := `SELECT id, booking_id, phase, amount, currency, status, session_reference,
		 provider, provider_event_id, created_at, resolved_at
	 FROM payment_transactions
	 WHERE session_reference = ?
	 LIMIT 1`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var tx ledgerdomain.PaymentTransaction
	err := db.WithContext(ctx).Raw(query, sessionReference).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

// MarkResolved finalizes a pending attempt. Returns false when the row
// was already past pending, keeping resolution write-once.
func (r *repo) MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, status ledgerdomain.TransactionStatus, resolvedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET status = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		resolvedAt,
		id,
		ledgerdomain.TransactionStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) HasSucceeded(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, phase ledgerdomain.Phase) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_transactions
		 WHERE booking_id = ? AND phase = ? AND status = ?`,
		bookingID,
		phase,
		ledgerdomain.TransactionStatusSucceeded,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) SumSucceeded(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM payment_transactions
		 WHERE booking_id = ? AND status = ?`,
		bookingID,
		ledgerdomain.TransactionStatusSucceeded,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ListSucceededByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]ledgerdomain.PaymentTransaction, error) {
	var txs []ledgerdomain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, booking_id, phase, amount, currency, status, session_reference,
		 provider, provider_event_id, created_at, resolved_at
		 FROM payment_transactions
		 WHERE booking_id = ? AND status = ?
		 ORDER BY created_at ASC`,
		bookingID,
		ledgerdomain.TransactionStatusSucceeded,
	).Scan(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// ExpireStalePending fails pending rows created before cutoff. The
// subquery bounds the batch so a large backlog never holds one long
// write transaction.
func (r *repo) ExpireStalePending(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int, resolvedAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET status = ?, resolved_at = ?
		 WHERE id IN (
			SELECT id FROM payment_transactions
			WHERE status = ? AND created_at < ?
			ORDER BY created_at ASC
			LIMIT ?
		 )`,
		ledgerdomain.TransactionStatusFailed,
		resolvedAt,
		ledgerdomain.TransactionStatusPending,
		cutoff,
		limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindPendingByPhase(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, phase ledgerdomain.Phase) (*ledgerdomain.PaymentTransaction, error) {
	var tx ledgerdomain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, booking_id, phase, amount, currency, status, session_reference,
		 provider, provider_event_id, created_at, resolved_at
		 FROM payment_transactions
		 WHERE booking_id = ? AND phase = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		bookingID,
		phase,
		ledgerdomain.TransactionStatusPending,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}
