package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	bookingdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/observability/metrics"
	paymentdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/pricing"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ratelimit"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	gatewayAttempts    = 3
	gatewayBackoffBase = 200 * time.Millisecond
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Ledger     ledgerdomain.Ledger
	BookingSvc bookingdomain.Lifecycle
	Calculator *pricing.Calculator
	Gateway    paymentdomain.Gateway
	Adapter    paymentdomain.WebhookAdapter
	Limiter    *ratelimit.WebhookLimiter `optional:"true"`
	Metrics    *metrics.Metrics          `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	ledger     ledgerdomain.Ledger
	bookingSvc bookingdomain.Lifecycle
	calculator *pricing.Calculator
	gateway    paymentdomain.Gateway
	adapter    paymentdomain.WebhookAdapter
	limiter    *ratelimit.WebhookLimiter
	metrics    *metrics.Metrics
}

func NewService(p Params) paymentdomain.Orchestrator {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		ledger:     p.Ledger,
		bookingSvc: p.BookingSvc,
		calculator: p.Calculator,
		gateway:    p.Gateway,
		adapter:    p.Adapter,
		limiter:    p.Limiter,
		metrics:    p.Metrics,
	}
}

// InitiatePayment opens a checkout session for one settlement phase.
// The idempotency key is derived from (booking, phase) so retries after
// a timeout land on the same gateway session instead of a second
// charge.
func (s *Service) InitiatePayment(ctx context.Context, req paymentdomain.InitiatePaymentRequest) (paymentdomain.CheckoutSession, error) {
	bookingID, err := snowflake.ParseString(strings.TrimSpace(req.BookingID))
	if err != nil || bookingID == 0 {
		return paymentdomain.CheckoutSession{}, bookingdomain.ErrInvalidBookingID
	}
	if !ledgerdomain.ValidPhase(req.Phase) {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidPhase
	}

	booking, err := s.bookingSvc.FindByID(ctx, bookingID)
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	if booking == nil {
		return paymentdomain.CheckoutSession{}, bookingdomain.ErrBookingNotFound
	}

	// a phase that already settled short-circuits to its prior result
	// instead of opening a second charge
	if prior, err := s.settledSession(ctx, bookingID, req.Phase); err != nil {
		return paymentdomain.CheckoutSession{}, err
	} else if prior != nil {
		return *prior, nil
	}

	if err := phaseDue(booking.Status, req.Phase); err != nil {
		return paymentdomain.CheckoutSession{}, err
	}

	if booking.AmountsPending() {
		booking, err = s.bindAmount(ctx, booking, req.Amount)
		if err != nil {
			return paymentdomain.CheckoutSession{}, err
		}
	}

	amount := booking.UpfrontAmount
	if req.Phase == ledgerdomain.PhaseCompletion {
		amount = booking.CompletionAmount
	}
	if amount <= 0 {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidAmount
	}

	session, err := s.createSessionWithRetry(ctx, paymentdomain.CheckoutParams{
		BookingID:      bookingID,
		Phase:          req.Phase,
		Amount:         amount,
		Currency:       booking.Currency,
		Description:    fmt.Sprintf("booking %s %s payment", bookingID.String(), req.Phase),
		IdempotencyKey: fmt.Sprintf("booking:%s:%s", bookingID.String(), req.Phase),
	})
	if err != nil {
		s.metrics.RecordPaymentAttempt(ctx, string(req.Phase), "gateway_error")
		return paymentdomain.CheckoutSession{}, err
	}

	_, err = s.ledger.RecordPending(ctx, ledgerdomain.RecordPendingRequest{
		BookingID:        bookingID,
		Phase:            req.Phase,
		Amount:           amount,
		Currency:         session.Currency,
		Provider:         s.gateway.Provider(),
		SessionReference: session.SessionReference,
	})
	if err != nil && !errors.Is(err, ledgerdomain.ErrDuplicateReference) {
		// duplicate reference means an earlier initiate already
		// recorded this exact session; returning it is safe
		return paymentdomain.CheckoutSession{}, err
	}

	s.metrics.RecordPaymentAttempt(ctx, string(req.Phase), "initiated")
	s.log.Info("checkout session opened",
		zap.String("booking_id", bookingID.String()),
		zap.String("phase", string(req.Phase)),
		zap.Int64("amount", amount),
	)
	return session, nil
}

func (s *Service) settledSession(ctx context.Context, bookingID snowflake.ID, phase ledgerdomain.Phase) (*paymentdomain.CheckoutSession, error) {
	settled, err := s.ledger.ListSucceededByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for _, tx := range settled {
		if tx.Phase == phase {
			return &paymentdomain.CheckoutSession{
				SessionReference: tx.SessionReference,
				Amount:           tx.Amount,
				Currency:         tx.Currency,
			}, nil
		}
	}
	return nil, nil
}

func phaseDue(status bookingdomain.BookingStatus, phase ledgerdomain.Phase) error {
	switch phase {
	case ledgerdomain.PhaseUpfront:
		if status != bookingdomain.BookingStatusApproved {
			return paymentdomain.ErrPhaseNotDue
		}
	case ledgerdomain.PhaseCompletion:
		if status != bookingdomain.BookingStatusInProgress {
			return paymentdomain.ErrPhaseNotDue
		}
	default:
		return paymentdomain.ErrInvalidPhase
	}
	return nil
}

func (s *Service) bindAmount(ctx context.Context, booking *bookingdomain.Booking, amount *int64) (*bookingdomain.Booking, error) {
	if amount == nil {
		return nil, paymentdomain.ErrAmountRequired
	}
	quote, err := s.calculator.CalculateManual(*amount)
	if err != nil {
		return nil, err
	}

	bound, err := s.bookingSvc.SetAmounts(ctx, booking.ID, quote)
	if err != nil {
		if errors.Is(err, bookingdomain.ErrAmountsAlreadySet) {
			// a concurrent initiate won the write; reload and use its amounts
			return s.bookingSvc.FindByID(ctx, booking.ID)
		}
		return nil, err
	}
	return &bound, nil
}

func (s *Service) createSessionWithRetry(ctx context.Context, params paymentdomain.CheckoutParams) (paymentdomain.CheckoutSession, error) {
	var lastErr error
	for attempt := 0; attempt < gatewayAttempts; attempt++ {
		if attempt > 0 {
			backoff := gatewayBackoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return paymentdomain.CheckoutSession{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		session, err := s.gateway.CreateCheckoutSession(ctx, params)
		if err == nil {
			return session, nil
		}
		if !retryable(err) {
			return paymentdomain.CheckoutSession{}, err
		}
		lastErr = err
		s.log.Warn("gateway checkout attempt failed",
			zap.String("booking_id", params.BookingID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	s.log.Error("gateway unreachable after retries",
		zap.String("booking_id", params.BookingID.String()),
		zap.Error(lastErr),
	)
	return paymentdomain.CheckoutSession{}, paymentdomain.ErrGatewayUnavailable
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidConfig),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || provider != s.adapter.Provider() {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	allowed, err := s.limiter.Allow(ctx, provider)
	if err != nil {
		s.log.Warn("webhook rate limiter unavailable", zap.Error(err))
	} else if !allowed {
		return paymentdomain.ErrRateLimited
	}

	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	return s.ProcessEvent(ctx, event, payload)
}

// ProcessEvent applies one canonical gateway event. Redelivered events
// are absorbed: the first delivery processes, later ones see the
// processed marker and report ErrEventAlreadyProcessed.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent, payload []byte) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		BookingID:       event.BookingID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.applyEvent(ctx, event); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	if inserted {
		s.metrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.BookingID == 0 {
		return paymentdomain.ErrInvalidEvent
	}
	if event.OccurredAt.IsZero() {
		return paymentdomain.ErrInvalidEvent
	}

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded, paymentdomain.EventTypeRefunded, paymentdomain.EventTypeInvoicePaid:
		if event.Amount <= 0 {
			return paymentdomain.ErrInvalidAmount
		}
		if strings.TrimSpace(event.Currency) == "" {
			return paymentdomain.ErrInvalidCurrency
		}
	case paymentdomain.EventTypePaymentFailed:
	default:
		return paymentdomain.ErrInvalidEvent
	}

	if event.Type != paymentdomain.EventTypeInvoicePaid && !ledgerdomain.ValidPhase(event.Phase) {
		return paymentdomain.ErrInvalidPhase
	}
	return nil
}

func (s *Service) applyEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		return s.settleSuccess(ctx, event)
	case paymentdomain.EventTypePaymentFailed:
		return s.settleFailure(ctx, event)
	case paymentdomain.EventTypeRefunded:
		s.log.Info("gateway reported refund",
			zap.String("booking_id", event.BookingID.String()),
			zap.String("phase", string(event.Phase)),
			zap.Int64("amount", event.Amount),
		)
		return nil
	case paymentdomain.EventTypeInvoicePaid:
		return s.settleInvoice(ctx, event)
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) settleSuccess(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	booking, err := s.bookingSvc.FindByID(ctx, event.BookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return bookingdomain.ErrBookingNotFound
	}

	_, err = s.ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: event.SessionReference,
		Outcome:          ledgerdomain.TransactionStatusSucceeded,
		BookingTotal:     booking.TotalAmount,
	})
	if err != nil && !errors.Is(err, ledgerdomain.ErrAlreadyResolved) {
		return err
	}

	switch event.Phase {
	case ledgerdomain.PhaseUpfront:
		if err := s.advance(ctx, event.BookingID, s.bookingSvc.MarkUpfrontPaid); err != nil {
			return err
		}
		return s.establishSubscription(ctx, booking)
	case ledgerdomain.PhaseCompletion:
		return s.advance(ctx, event.BookingID, s.bookingSvc.MarkCompleted)
	default:
		return paymentdomain.ErrInvalidPhase
	}
}

// advance drives a payment-triggered transition. A transition the
// booking has already made, or can no longer make, is logged and
// absorbed so the gateway stops redelivering.
func (s *Service) advance(ctx context.Context, bookingID snowflake.ID, fn func(context.Context, snowflake.ID) error) error {
	err := fn(ctx, bookingID)
	if err == nil {
		return nil
	}
	if errors.Is(err, bookingdomain.ErrInvalidTransition) {
		s.log.Warn("settlement arrived for booking in a later state",
			zap.String("booking_id", bookingID.String()),
		)
		return nil
	}
	return err
}

func (s *Service) settleFailure(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if strings.TrimSpace(event.SessionReference) == "" {
		return nil
	}
	_, err := s.ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: event.SessionReference,
		Outcome:          ledgerdomain.TransactionStatusFailed,
	})
	if err != nil && !errors.Is(err, ledgerdomain.ErrAlreadyResolved) && !errors.Is(err, ledgerdomain.ErrTransactionNotFound) {
		return err
	}
	s.log.Info("payment attempt failed",
		zap.String("booking_id", event.BookingID.String()),
		zap.String("phase", string(event.Phase)),
	)
	return nil
}

func (s *Service) settleInvoice(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	_, inserted, err := s.ledger.RecordSettled(ctx, ledgerdomain.RecordSettledRequest{
		BookingID:       event.BookingID,
		Phase:           ledgerdomain.PhaseCompletion,
		Amount:          event.Amount,
		Currency:        event.Currency,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
	})
	if err != nil {
		return err
	}
	if inserted {
		s.log.Info("recurring invoice settled",
			zap.String("booking_id", event.BookingID.String()),
			zap.Int64("amount", event.Amount),
		)
	}
	return nil
}

// establishSubscription creates the gateway subscription for recurring
// bookings once the upfront payment lands. Failures are logged rather
// than returned; the webhook must not be redelivered over this.
func (s *Service) establishSubscription(ctx context.Context, booking *bookingdomain.Booking) error {
	if booking.Type != bookingdomain.BookingTypeRecurring {
		return nil
	}
	if booking.GatewaySubscriptionRef != nil && *booking.GatewaySubscriptionRef != "" {
		return nil
	}
	if booking.RecurringFrequency == nil {
		return nil
	}

	ref, err := s.gateway.CreateSubscription(ctx, paymentdomain.SubscriptionParams{
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		Amount:     booking.TotalAmount,
		Currency:   booking.Currency,
		Interval:   string(*booking.RecurringFrequency),
	})
	if err != nil {
		s.log.Error("failed to establish gateway subscription",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	if err := s.bookingSvc.AttachGatewaySubscription(ctx, booking.ID, ref); err != nil {
		s.log.Error("failed to attach gateway subscription",
			zap.String("booking_id", booking.ID.String()),
			zap.String("subscription_ref", ref),
			zap.Error(err),
		)
	}
	return nil
}
