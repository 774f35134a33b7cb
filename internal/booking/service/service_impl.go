package service

import (
	"context"
	"errors"
	"strings"
	"time"

	bookingdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/guard"
	catalogdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/observability/metrics"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/pricing"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ratelimit"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         bookingdomain.Repository
	Catalog      catalogdomain.Catalog
	Calculator   *pricing.Calculator
	Ledger       ledgerdomain.Ledger
	CalendarLock *ratelimit.CalendarLock       `optional:"true"`
	Refunds      bookingdomain.RefundRequester `optional:"true"`
	Metrics      *metrics.Metrics              `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         bookingdomain.Repository
	catalog      catalogdomain.Catalog
	calculator   *pricing.Calculator
	ledger       ledgerdomain.Ledger
	calendarLock *ratelimit.CalendarLock
	refunds      bookingdomain.RefundRequester
	metrics      *metrics.Metrics
}

func NewService(p ServiceParam) bookingdomain.Lifecycle {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("booking.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		catalog:      p.Catalog,
		calculator:   p.Calculator,
		ledger:       p.Ledger,
		calendarLock: p.CalendarLock,
		refunds:      p.Refunds,
		metrics:      p.Metrics,
	}
}

func (s *Service) CreateRequest(ctx context.Context, req bookingdomain.CreateBookingRequest) (bookingdomain.CreateBookingResponse, error) {
	svc, err := s.catalog.GetByID(ctx, req.ServiceID)
	if err != nil {
		return bookingdomain.CreateBookingResponse{}, err
	}
	if !svc.Active {
		return bookingdomain.CreateBookingResponse{}, catalogdomain.ErrServiceInactive
	}

	customerID, err := parseID(req.CustomerID, bookingdomain.ErrInvalidCustomer)
	if err != nil {
		return bookingdomain.CreateBookingResponse{}, err
	}

	bookingType, frequency, err := parseBookingType(req.BookingType, req.RecurringFrequency)
	if err != nil {
		return bookingdomain.CreateBookingResponse{}, err
	}

	if req.RequestedStart.IsZero() || !req.RequestedStart.After(s.clock.Now()) {
		return bookingdomain.CreateBookingResponse{}, bookingdomain.ErrInvalidStart
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = svc.DefaultDurationMinutes
	}

	quote, err := s.calculator.Calculate(pricing.Input{
		Model:           svc.PricingModel,
		FixedPrice:      svc.FixedPrice,
		HourlyRate:      svc.HourlyRate,
		DurationMinutes: duration,
	})
	if err != nil {
		return bookingdomain.CreateBookingResponse{}, err
	}
	if quote.RequiresManualAmount && req.Amount != nil {
		quote, err = s.calculator.CalculateManual(*req.Amount)
		if err != nil {
			return bookingdomain.CreateBookingResponse{}, err
		}
	}

	slot := guard.Slot{
		Start:    req.RequestedStart.UTC(),
		Duration: time.Duration(duration) * time.Minute,
	}

	now := s.clock.Now()
	booking := bookingdomain.Booking{
		ID:                 s.genID.Generate(),
		ServiceID:          svc.ID,
		ProviderID:         svc.ProviderID,
		CustomerID:         customerID,
		Type:               bookingType,
		RecurringFrequency: frequency,
		Status:             bookingdomain.BookingStatusRequested,
		StartAt:            slot.Start,
		DurationMinutes:    duration,
		PricingModel:       svc.PricingModel,
		TotalAmount:        quote.Total,
		UpfrontAmount:      quote.Upfront,
		CompletionAmount:   quote.Completion,
		Commission:         quote.Commission,
		Currency:           "usd",
		CustomerNotes:      strings.TrimSpace(req.CustomerNotes),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureSlotFree(ctx, tx, booking.ProviderID, booking.ID, slot, requestBlockingStatuses, false); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, &booking)
	})
	if err != nil {
		if errors.Is(err, bookingdomain.ErrSlotConflict) {
			s.metrics.RecordSlotConflict(ctx)
		}
		return bookingdomain.CreateBookingResponse{}, err
	}

	s.metrics.RecordBookingCreated(ctx, string(svc.PricingModel))
	s.log.Info("booking requested",
		zap.String("booking_id", booking.ID.String()),
		zap.String("service_id", svc.ID.String()),
		zap.String("pricing_model", string(svc.PricingModel)),
	)

	return bookingdomain.CreateBookingResponse{Booking: booking, Quote: quote}, nil
}

func (s *Service) Approve(ctx context.Context, bookingID string) (bookingdomain.Booking, error) {
	id, err := parseID(bookingID, bookingdomain.ErrInvalidBookingID)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	return s.approve(ctx, id)
}

// approve serializes against racing approvals twice: a redis calendar
// lock per provider, then row locks on the provider's open bookings
// inside the transaction. The losing approval gets ErrSlotConflict.
func (s *Service) approve(ctx context.Context, id snowflake.ID) (bookingdomain.Booking, error) {
	booking, err := s.FindByID(ctx, id)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	if booking == nil {
		return bookingdomain.Booking{}, bookingdomain.ErrBookingNotFound
	}

	token, acquired, err := s.calendarLock.TryLock(ctx, booking.ProviderID)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	if !acquired {
		return bookingdomain.Booking{}, bookingdomain.ErrCalendarBusy
	}
	defer func() {
		if releaseErr := s.calendarLock.Release(ctx, booking.ProviderID, token); releaseErr != nil {
			s.log.Warn("failed to release calendar lock",
				zap.String("provider_id", booking.ProviderID.String()),
				zap.Error(releaseErr),
			)
		}
	}()

	return s.transition(ctx, id, bookingdomain.BookingStatusApproved)
}

func (s *Service) Reject(ctx context.Context, bookingID string) (bookingdomain.Booking, error) {
	id, err := parseID(bookingID, bookingdomain.ErrInvalidBookingID)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	return s.transition(ctx, id, bookingdomain.BookingStatusRejected)
}

func (s *Service) Start(ctx context.Context, bookingID string) (bookingdomain.Booking, error) {
	id, err := parseID(bookingID, bookingdomain.ErrInvalidBookingID)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	return s.transition(ctx, id, bookingdomain.BookingStatusInProgress)
}

func (s *Service) Cancel(ctx context.Context, bookingID string) (bookingdomain.Booking, error) {
	id, err := parseID(bookingID, bookingdomain.ErrInvalidBookingID)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	return s.transition(ctx, id, bookingdomain.BookingStatusCancelled)
}

func (s *Service) MarkUpfrontPaid(ctx context.Context, bookingID snowflake.ID) error {
	_, err := s.transition(ctx, bookingID, bookingdomain.BookingStatusUpfrontPaid)
	return err
}

func (s *Service) MarkCompleted(ctx context.Context, bookingID snowflake.ID) error {
	_, err := s.transition(ctx, bookingID, bookingdomain.BookingStatusCompleted)
	return err
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, target bookingdomain.BookingStatus) (bookingdomain.Booking, error) {
	if !isValidStatus(target) {
		return bookingdomain.Booking{}, bookingdomain.ErrInvalidTransition
	}

	var (
		result      bookingdomain.Booking
		fromStatus  bookingdomain.BookingStatus
		refundables []ledgerdomain.PaymentTransaction
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return bookingdomain.ErrBookingNotFound
		}

		fromStatus = booking.Status
		if booking.Status == target {
			result = *booking
			return nil
		}
		if !isTransitionAllowed(booking.Status, target) {
			return bookingdomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		switch target {
		case bookingdomain.BookingStatusApproved:
			slot := guard.Slot{
				Start:    booking.StartAt,
				Duration: time.Duration(booking.DurationMinutes) * time.Minute,
			}
			if err := s.ensureSlotFree(ctx, tx, booking.ProviderID, booking.ID, slot, approveBlockingStatuses, true); err != nil {
				return err
			}
			booking.ApprovedAt = &now

		case bookingdomain.BookingStatusRejected:
			booking.RejectedAt = &now

		case bookingdomain.BookingStatusUpfrontPaid:
			settled, err := s.ledger.HasSucceeded(ctx, booking.ID, ledgerdomain.PhaseUpfront)
			if err != nil {
				return err
			}
			if !settled {
				return bookingdomain.ErrUpfrontNotSettled
			}

		case bookingdomain.BookingStatusInProgress:
			booking.StartedAt = &now

		case bookingdomain.BookingStatusCompleted:
			settled, err := s.ledger.HasSucceeded(ctx, booking.ID, ledgerdomain.PhaseCompletion)
			if err != nil {
				return err
			}
			if !settled {
				return bookingdomain.ErrCompletionNotSettled
			}
			booking.CompletedAt = &now

		case bookingdomain.BookingStatusCancelled:
			settledTxs, err := s.ledger.ListSucceededByBooking(ctx, booking.ID)
			if err != nil {
				return err
			}
			if booking.Status == bookingdomain.BookingStatusApproved && len(settledTxs) > 0 {
				// money already moved; the status is stale, not cancellable here
				return bookingdomain.ErrInvalidTransition
			}
			refundables = settledTxs
			booking.CancelledAt = &now

		default:
			return bookingdomain.ErrInvalidTransition
		}

		booking.Status = target
		booking.UpdatedAt = now
		if err := s.repo.UpdateLifecycle(ctx, tx, booking); err != nil {
			return err
		}

		result = *booking
		return nil
	})
	if err != nil {
		if errors.Is(err, bookingdomain.ErrSlotConflict) {
			s.metrics.RecordSlotConflict(ctx)
		}
		return bookingdomain.Booking{}, err
	}

	if fromStatus != target {
		s.metrics.RecordBookingTransition(ctx, string(fromStatus), string(target))
		s.log.Info("booking transitioned",
			zap.String("booking_id", result.ID.String()),
			zap.String("from", string(fromStatus)),
			zap.String("to", string(target)),
		)
	}

	// refunds are issued after commit; a gateway hiccup must not
	// resurrect a cancelled booking
	s.issueRefunds(ctx, result, refundables)

	return result, nil
}

func (s *Service) issueRefunds(ctx context.Context, booking bookingdomain.Booking, txs []ledgerdomain.PaymentTransaction) {
	if len(txs) == 0 || s.refunds == nil {
		return
	}
	for _, tx := range txs {
		if err := s.refunds.RequestRefund(ctx, tx); err != nil {
			s.log.Error("refund request failed",
				zap.String("booking_id", booking.ID.String()),
				zap.String("session_reference", tx.SessionReference),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("refund requested",
			zap.String("booking_id", booking.ID.String()),
			zap.String("phase", string(tx.Phase)),
			zap.Int64("amount", tx.Amount),
		)
	}
}

func (s *Service) GetStatus(ctx context.Context, bookingID string) (bookingdomain.BookingStatusView, error) {
	id, err := parseID(bookingID, bookingdomain.ErrInvalidBookingID)
	if err != nil {
		return bookingdomain.BookingStatusView{}, err
	}

	booking, err := s.FindByID(ctx, id)
	if err != nil {
		return bookingdomain.BookingStatusView{}, err
	}
	if booking == nil {
		return bookingdomain.BookingStatusView{}, bookingdomain.ErrBookingNotFound
	}

	upfrontPaid, err := s.ledger.HasSucceeded(ctx, id, ledgerdomain.PhaseUpfront)
	if err != nil {
		return bookingdomain.BookingStatusView{}, err
	}
	completionPaid, err := s.ledger.HasSucceeded(ctx, id, ledgerdomain.PhaseCompletion)
	if err != nil {
		return bookingdomain.BookingStatusView{}, err
	}

	return bookingdomain.BookingStatusView{
		Booking:        *booking,
		UpfrontPaid:    upfrontPaid,
		CompletionPaid: completionPaid,
	}, nil
}

// SetAmounts persists a late-bound quote/donation amount. Write-once:
// a second call returns ErrAmountsAlreadySet.
func (s *Service) SetAmounts(ctx context.Context, bookingID snowflake.ID, quote pricing.Quote) (bookingdomain.Booking, error) {
	booking, err := s.FindByID(ctx, bookingID)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	if booking == nil {
		return bookingdomain.Booking{}, bookingdomain.ErrBookingNotFound
	}
	if !booking.AmountsPending() {
		return bookingdomain.Booking{}, bookingdomain.ErrAmountsAlreadySet
	}

	booking.TotalAmount = quote.Total
	booking.UpfrontAmount = quote.Upfront
	booking.CompletionAmount = quote.Completion
	booking.Commission = quote.Commission
	booking.UpdatedAt = s.clock.Now()

	updated, err := s.repo.UpdateAmounts(ctx, s.db, booking)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	if !updated {
		return bookingdomain.Booking{}, bookingdomain.ErrAmountsAlreadySet
	}

	return *booking, nil
}

func (s *Service) AttachGatewaySubscription(ctx context.Context, bookingID snowflake.ID, subscriptionRef string) error {
	booking, err := s.FindByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return bookingdomain.ErrBookingNotFound
	}

	ref := strings.TrimSpace(subscriptionRef)
	booking.GatewaySubscriptionRef = &ref
	booking.UpdatedAt = s.clock.Now()
	return s.repo.SetGatewaySubscriptionRef(ctx, s.db, booking)
}

func (s *Service) FindByID(ctx context.Context, bookingID snowflake.ID) (*bookingdomain.Booking, error) {
	if bookingID == 0 {
		return nil, bookingdomain.ErrInvalidBookingID
	}
	return s.repo.FindByID(ctx, s.db, bookingID)
}

func (s *Service) ensureSlotFree(
	ctx context.Context,
	tx *gorm.DB,
	providerID snowflake.ID,
	selfID snowflake.ID,
	slot guard.Slot,
	statuses []bookingdomain.BookingStatus,
	forUpdate bool,
) error {
	open, err := s.repo.ListByProviderAndStatus(ctx, tx, providerID, statuses, forUpdate)
	if err != nil {
		return err
	}

	existing := make([]guard.Slot, 0, len(open))
	for _, other := range open {
		if other.ID == selfID {
			continue
		}
		existing = append(existing, guard.Slot{
			Start:    other.StartAt,
			Duration: time.Duration(other.DurationMinutes) * time.Minute,
		})
	}

	if err := guard.EnsureSlotFree(slot, existing); err != nil {
		if errors.Is(err, guard.ErrSlotConflict) {
			return bookingdomain.ErrSlotConflict
		}
		return err
	}
	return nil
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}

func parseBookingType(rawType, rawFrequency string) (bookingdomain.BookingType, *bookingdomain.RecurringFrequency, error) {
	switch bookingdomain.BookingType(strings.ToLower(strings.TrimSpace(rawType))) {
	case bookingdomain.BookingTypeOneTime, "":
		return bookingdomain.BookingTypeOneTime, nil, nil
	case bookingdomain.BookingTypeRecurring:
		frequency := bookingdomain.RecurringFrequency(strings.ToLower(strings.TrimSpace(rawFrequency)))
		switch frequency {
		case bookingdomain.FrequencyWeekly, bookingdomain.FrequencyMonthly, bookingdomain.FrequencyQuarterly:
			return bookingdomain.BookingTypeRecurring, &frequency, nil
		default:
			return "", nil, bookingdomain.ErrInvalidFrequency
		}
	default:
		return "", nil, bookingdomain.ErrInvalidBookingType
	}
}
