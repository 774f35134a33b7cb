package service

import (
	"context"
	"strings"
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/observability/metrics"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    ledgerdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    ledgerdomain.Repository
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) ledgerdomain.Ledger {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) RecordPending(ctx context.Context, req ledgerdomain.RecordPendingRequest) (ledgerdomain.PaymentTransaction, error) {
	if req.BookingID == 0 {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrInvalidBooking
	}
	if !ledgerdomain.ValidPhase(req.Phase) {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrInvalidPhase
	}
	if req.Amount <= 0 {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.SessionReference) == "" {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrMissingReference
	}

	tx := ledgerdomain.PaymentTransaction{
		ID:               s.genID.Generate(),
		BookingID:        req.BookingID,
		Phase:            req.Phase,
		Amount:           req.Amount,
		Currency:         normalizeCurrency(req.Currency),
		Status:           ledgerdomain.TransactionStatusPending,
		SessionReference: strings.TrimSpace(req.SessionReference),
		Provider:         strings.ToLower(strings.TrimSpace(req.Provider)),
		CreatedAt:        s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, &tx); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrDuplicateReference
		}
		s.log.Error("failed to record pending transaction",
			zap.String("booking_id", req.BookingID.String()),
			zap.Error(err),
		)
		return ledgerdomain.PaymentTransaction{}, err
	}

	s.metrics.RecordLedgerEntry(ctx, string(tx.Phase), string(tx.Status))
	return tx, nil
}

// Resolve finalizes a pending attempt by session reference. Resolution
// is write-once: a second resolve of the same attempt returns
// ErrAlreadyResolved no matter the outcome.
func (s *Service) Resolve(ctx context.Context, req ledgerdomain.ResolveRequest) (ledgerdomain.PaymentTransaction, error) {
	if strings.TrimSpace(req.SessionReference) == "" {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrMissingReference
	}
	if req.Outcome != ledgerdomain.TransactionStatusSucceeded && req.Outcome != ledgerdomain.TransactionStatusFailed {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrInvalidOutcome
	}

	var resolved ledgerdomain.PaymentTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindBySessionReference(ctx, tx, req.SessionReference, true)
		if err != nil {
			return err
		}
		if record == nil {
			return ledgerdomain.ErrTransactionNotFound
		}
		if record.Status != ledgerdomain.TransactionStatusPending {
			return ledgerdomain.ErrAlreadyResolved
		}

		if req.Outcome == ledgerdomain.TransactionStatusSucceeded && req.BookingTotal > 0 {
			succeeded, err := s.repo.SumSucceeded(ctx, tx, record.BookingID)
			if err != nil {
				return err
			}
			if succeeded+record.Amount > req.BookingTotal {
				return ledgerdomain.ErrLedgerOverflow
			}
		}

		now := s.clock.Now()
		updated, err := s.repo.MarkResolved(ctx, tx, record.ID, req.Outcome, now)
		if err != nil {
			return err
		}
		if !updated {
			return ledgerdomain.ErrAlreadyResolved
		}

		record.Status = req.Outcome
		record.ResolvedAt = &now
		resolved = *record
		return nil
	})
	if err != nil {
		return ledgerdomain.PaymentTransaction{}, err
	}

	s.metrics.RecordLedgerEntry(ctx, string(resolved.Phase), string(resolved.Status))
	s.log.Info("transaction resolved",
		zap.String("booking_id", resolved.BookingID.String()),
		zap.String("phase", string(resolved.Phase)),
		zap.String("status", string(resolved.Status)),
	)
	return resolved, nil
}

// RecordSettled appends an already-settled transaction, used for
// recurring invoice events that never went through a checkout session.
// Idempotent by (provider, provider_event_id); the bool reports whether
// this call inserted the row.
func (s *Service) RecordSettled(ctx context.Context, req ledgerdomain.RecordSettledRequest) (ledgerdomain.PaymentTransaction, bool, error) {
	if req.BookingID == 0 {
		return ledgerdomain.PaymentTransaction{}, false, ledgerdomain.ErrInvalidBooking
	}
	if !ledgerdomain.ValidPhase(req.Phase) {
		return ledgerdomain.PaymentTransaction{}, false, ledgerdomain.ErrInvalidPhase
	}
	if req.Amount <= 0 {
		return ledgerdomain.PaymentTransaction{}, false, ledgerdomain.ErrInvalidAmount
	}
	eventID := strings.TrimSpace(req.ProviderEventID)
	if eventID == "" {
		return ledgerdomain.PaymentTransaction{}, false, ledgerdomain.ErrMissingReference
	}

	now := s.clock.Now()
	tx := ledgerdomain.PaymentTransaction{
		ID:               s.genID.Generate(),
		BookingID:        req.BookingID,
		Phase:            req.Phase,
		Amount:           req.Amount,
		Currency:         normalizeCurrency(req.Currency),
		Status:           ledgerdomain.TransactionStatusSucceeded,
		SessionReference: "evt_" + eventID,
		Provider:         strings.ToLower(strings.TrimSpace(req.Provider)),
		ProviderEventID:  &eventID,
		CreatedAt:        now,
		ResolvedAt:       &now,
	}

	inserted, err := s.repo.InsertEventOnce(ctx, s.db, &tx)
	if err != nil {
		return ledgerdomain.PaymentTransaction{}, false, err
	}
	if inserted {
		s.metrics.RecordLedgerEntry(ctx, string(tx.Phase), string(tx.Status))
	}
	return tx, inserted, nil
}

func (s *Service) HasSucceeded(ctx context.Context, bookingID snowflake.ID, phase ledgerdomain.Phase) (bool, error) {
	if bookingID == 0 {
		return false, ledgerdomain.ErrInvalidBooking
	}
	if !ledgerdomain.ValidPhase(phase) {
		return false, ledgerdomain.ErrInvalidPhase
	}
	return s.repo.HasSucceeded(ctx, s.db, bookingID, phase)
}

func (s *Service) FindPendingByPhase(ctx context.Context, bookingID snowflake.ID, phase ledgerdomain.Phase) (*ledgerdomain.PaymentTransaction, error) {
	if bookingID == 0 {
		return nil, ledgerdomain.ErrInvalidBooking
	}
	if !ledgerdomain.ValidPhase(phase) {
		return nil, ledgerdomain.ErrInvalidPhase
	}
	return s.repo.FindPendingByPhase(ctx, s.db, bookingID, phase)
}

// ExpirePending fails pending attempts opened before cutoff. Bounded by
// limit so callers can sweep a backlog in batches.
func (s *Service) ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.repo.ExpireStalePending(ctx, s.db, cutoff, limit, s.clock.Now())
	if err != nil {
		s.log.Error("failed to expire stale pending transactions", zap.Error(err))
		return 0, err
	}
	if expired > 0 {
		s.log.Info("expired stale pending transactions",
			zap.Int64("count", expired),
			zap.Time("cutoff", cutoff),
		)
	}
	return expired, nil
}

func (s *Service) TotalSucceeded(ctx context.Context, bookingID snowflake.ID) (int64, error) {
	if bookingID == 0 {
		return 0, ledgerdomain.ErrInvalidBooking
	}
	return s.repo.SumSucceeded(ctx, s.db, bookingID)
}

func (s *Service) FindBySessionReference(ctx context.Context, sessionReference string) (*ledgerdomain.PaymentTransaction, error) {
	if strings.TrimSpace(sessionReference) == "" {
		return nil, ledgerdomain.ErrMissingReference
	}
	return s.repo.FindBySessionReference(ctx, s.db, strings.TrimSpace(sessionReference), false)
}

func (s *Service) ListSucceededByBooking(ctx context.Context, bookingID snowflake.ID) ([]ledgerdomain.PaymentTransaction, error) {
	if bookingID == 0 {
		return nil, ledgerdomain.ErrInvalidBooking
	}
	return s.repo.ListSucceededByBooking(ctx, s.db, bookingID)
}

func normalizeCurrency(currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return "usd"
	}
	return currency
}
