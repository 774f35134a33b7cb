package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	bookingdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/domain"
	bookingrepo "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/repository"
	bookingservice "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/service"
	catalogdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog/domain"
	catalogservice "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog/service"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	ledgerrepo "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/repository"
	ledgerservice "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/service"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/pricing"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type refundRecorder struct {
	refunded []ledgerdomain.PaymentTransaction
}

func (r *refundRecorder) RequestRefund(ctx context.Context, tx ledgerdomain.PaymentTransaction) error {
	r.refunded = append(r.refunded, tx)
	return nil
}

type testEnv struct {
	db      *gorm.DB
	node    *snowflake.Node
	clk     *clock.FakeClock
	catalog catalogdomain.Catalog
	ledger  ledgerdomain.Ledger
	booking bookingdomain.Lifecycle
	refunds *refundRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)

	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	catalogSvc := catalogservice.NewCatalog(catalogservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  ledgerrepo.Provide(),
	})

	refunds := &refundRecorder{}
	calculator := pricing.NewCalculator(config.NewStaticPricingPolicyHolder(config.DefaultPricingPolicy()))
	bookingSvc := bookingservice.NewService(bookingservice.ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       bookingrepo.Provide(),
		Catalog:    catalogSvc,
		Calculator: calculator,
		Ledger:     ledgerSvc,
		Refunds:    refunds,
	})

	return &testEnv{
		db:      db,
		node:    node,
		clk:     clk,
		catalog: catalogSvc,
		ledger:  ledgerSvc,
		booking: bookingSvc,
		refunds: refunds,
	}
}

func (e *testEnv) createService(t *testing.T, model string, fixedPrice, hourlyRate int64) catalogdomain.Service {
	t.Helper()

	svc, err := e.catalog.Create(context.Background(), catalogdomain.CreateServiceRequest{
		ProviderID:   e.node.Generate().String(),
		DisplayName:  "Deep Clean",
		PricingModel: model,
		FixedPrice:   fixedPrice,
		HourlyRate:   hourlyRate,
	})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}

func (e *testEnv) createBooking(t *testing.T, svc catalogdomain.Service, start time.Time, duration int64) bookingdomain.Booking {
	t.Helper()

	resp, err := e.booking.CreateRequest(context.Background(), bookingdomain.CreateBookingRequest{
		ServiceID:       svc.ID.String(),
		CustomerID:      e.node.Generate().String(),
		RequestedStart:  start,
		DurationMinutes: duration,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return resp.Booking
}

// settlePhase records and resolves one succeeded transaction, the state
// a confirmed webhook leaves behind.
func (e *testEnv) settlePhase(t *testing.T, booking bookingdomain.Booking, phase ledgerdomain.Phase, amount int64, ref string) {
	t.Helper()

	ctx := context.Background()
	if _, err := e.ledger.RecordPending(ctx, ledgerdomain.RecordPendingRequest{
		BookingID:        booking.ID,
		Phase:            phase,
		Amount:           amount,
		Currency:         "usd",
		Provider:         "stripe",
		SessionReference: ref,
	}); err != nil {
		t.Fatalf("record pending: %v", err)
	}
	if _, err := e.ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: ref,
		Outcome:          ledgerdomain.TransactionStatusSucceeded,
		BookingTotal:     booking.TotalAmount,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestCreateRequestSplitsFixedPrice(t *testing.T) {
	env := newTestEnv(t)
	svc := env.createService(t, "fixed", 10000, 0)

	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	if booking.Status != bookingdomain.BookingStatusRequested {
		t.Fatalf("expected requested, got %s", booking.Status)
	}
	if booking.TotalAmount != 10000 || booking.UpfrontAmount != 5000 || booking.CompletionAmount != 5000 {
		t.Fatalf("unexpected split: total=%d upfront=%d completion=%d",
			booking.TotalAmount, booking.UpfrontAmount, booking.CompletionAmount)
	}
	if booking.Commission != 1200 {
		t.Fatalf("expected commission 1200, got %d", booking.Commission)
	}
	assertCount(t, env.db, "SELECT COUNT(1) FROM bookings", 1)
}

func TestCreateRequestHourlyRounding(t *testing.T) {
	env := newTestEnv(t)
	svc := env.createService(t, "hourly", 0, 4000)

	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 90)

	if booking.TotalAmount != 6000 || booking.UpfrontAmount != 3000 || booking.CompletionAmount != 3000 {
		t.Fatalf("unexpected split: total=%d upfront=%d completion=%d",
			booking.TotalAmount, booking.UpfrontAmount, booking.CompletionAmount)
	}
}

func TestCreateRequestRejectsPastStart(t *testing.T) {
	env := newTestEnv(t)
	svc := env.createService(t, "fixed", 10000, 0)

	_, err := env.booking.CreateRequest(context.Background(), bookingdomain.CreateBookingRequest{
		ServiceID:      svc.ID.String(),
		CustomerID:     env.node.Generate().String(),
		RequestedStart: env.clk.Now().Add(-time.Hour),
	})
	if err != bookingdomain.ErrInvalidStart {
		t.Fatalf("expected ErrInvalidStart, got %v", err)
	}
}

func TestCreateRequestRejectsInactiveService(t *testing.T) {
	env := newTestEnv(t)
	svc := env.createService(t, "fixed", 10000, 0)
	if err := env.catalog.Deactivate(context.Background(), svc.ID.String()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := env.booking.CreateRequest(context.Background(), bookingdomain.CreateBookingRequest{
		ServiceID:      svc.ID.String(),
		CustomerID:     env.node.Generate().String(),
		RequestedStart: env.clk.Now().Add(24 * time.Hour),
	})
	if err != catalogdomain.ErrServiceInactive {
		t.Fatalf("expected ErrServiceInactive, got %v", err)
	}
}

func TestCreateRequestRecurringNeedsFrequency(t *testing.T) {
	env := newTestEnv(t)
	svc := env.createService(t, "fixed", 10000, 0)

	_, err := env.booking.CreateRequest(context.Background(), bookingdomain.CreateBookingRequest{
		ServiceID:      svc.ID.String(),
		CustomerID:     env.node.Generate().String(),
		RequestedStart: env.clk.Now().Add(24 * time.Hour),
		BookingType:    "recurring",
	})
	if err != bookingdomain.ErrInvalidFrequency {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

// seedOverlappingBooking writes a second requested booking for the same
// provider and slot straight through the repository. Two concurrent
// requests can both land before either is approved; this reproduces
// that state.
func seedOverlappingBooking(t *testing.T, env *testEnv, base bookingdomain.Booking, start time.Time) bookingdomain.Booking {
	t.Helper()

	dup := base
	dup.ID = env.node.Generate()
	dup.CustomerID = env.node.Generate()
	dup.StartAt = start
	if err := bookingrepo.Provide().Insert(context.Background(), env.db, &dup); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return dup
}

func TestApproveSecondOverlappingBookingConflicts(t *testing.T) {
	env := newTestEnv(t)
	svc := env.createService(t, "fixed", 10000, 0)

	start := env.clk.Now().Add(24 * time.Hour)
	first := env.createBooking(t, svc, start, 60)
	second := seedOverlappingBooking(t, env, first, start.Add(30*time.Minute))

	if _, err := env.booking.Approve(context.Background(), first.ID.String()); err != nil {
		t.Fatalf("approve first: %v", err)
	}

	_, err := env.booking.Approve(context.Background(), second.ID.String())
	if err != bookingdomain.ErrSlotConflict {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	status, err := env.booking.GetStatus(context.Background(), second.ID.String())
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Booking.Status != bookingdomain.BookingStatusRequested {
		t.Fatalf("losing approval must leave booking requested, got %s", status.Booking.Status)
	}
}

func TestApproveBackToBackBookings(t *testing.T) {
	env := newTestEnv(t)
	svc := env.createService(t, "fixed", 10000, 0)

	start := env.clk.Now().Add(24 * time.Hour)
	first := env.createBooking(t, svc, start, 60)
	// [start, start+60) and [start+60, start+120) share only the boundary
	second := seedOverlappingBooking(t, env, first, start.Add(60*time.Minute))

	if _, err := env.booking.Approve(context.Background(), first.ID.String()); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	if _, err := env.booking.Approve(context.Background(), second.ID.String()); err != nil {
		t.Fatalf("approve back-to-back: %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "fixed", 10000, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	approved, err := env.booking.Approve(ctx, booking.ID.String())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ApprovedAt == nil {
		t.Fatal("approved_at not set")
	}

	env.settlePhase(t, booking, ledgerdomain.PhaseUpfront, 5000, "cs_up_1")
	if err := env.booking.MarkUpfrontPaid(ctx, booking.ID); err != nil {
		t.Fatalf("mark upfront paid: %v", err)
	}

	if _, err := env.booking.Start(ctx, booking.ID.String()); err != nil {
		t.Fatalf("start: %v", err)
	}

	env.settlePhase(t, booking, ledgerdomain.PhaseCompletion, 5000, "cs_comp_1")
	if err := env.booking.MarkCompleted(ctx, booking.ID); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	status, err := env.booking.GetStatus(ctx, booking.ID.String())
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Booking.Status != bookingdomain.BookingStatusCompleted {
		t.Fatalf("expected completed, got %s", status.Booking.Status)
	}
	if !status.UpfrontPaid || !status.CompletionPaid {
		t.Fatalf("expected both phases settled, got upfront=%v completion=%v",
			status.UpfrontPaid, status.CompletionPaid)
	}
	if status.Booking.CompletedAt == nil || status.Booking.StartedAt == nil {
		t.Fatal("lifecycle timestamps missing")
	}
}

func TestMarkUpfrontPaidRequiresSettledLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "fixed", 10000, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	if _, err := env.booking.Approve(ctx, booking.ID.String()); err != nil {
		t.Fatalf("approve: %v", err)
	}

	err := env.booking.MarkUpfrontPaid(ctx, booking.ID)
	if err != bookingdomain.ErrUpfrontNotSettled {
		t.Fatalf("expected ErrUpfrontNotSettled, got %v", err)
	}

	status, _ := env.booking.GetStatus(ctx, booking.ID.String())
	if status.Booking.Status != bookingdomain.BookingStatusApproved {
		t.Fatalf("failed guard must not advance status, got %s", status.Booking.Status)
	}
}

func TestMarkCompletedRequiresSettledLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "fixed", 10000, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	if _, err := env.booking.Approve(ctx, booking.ID.String()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	env.settlePhase(t, booking, ledgerdomain.PhaseUpfront, 5000, "cs_up_1")
	if err := env.booking.MarkUpfrontPaid(ctx, booking.ID); err != nil {
		t.Fatalf("mark upfront paid: %v", err)
	}
	if _, err := env.booking.Start(ctx, booking.ID.String()); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := env.booking.MarkCompleted(ctx, booking.ID)
	if err != bookingdomain.ErrCompletionNotSettled {
		t.Fatalf("expected ErrCompletionNotSettled, got %v", err)
	}
}

func TestIllegalTransitionLeavesStateIntact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "fixed", 10000, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	_, err := env.booking.Start(ctx, booking.ID.String())
	if err != bookingdomain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	status, _ := env.booking.GetStatus(ctx, booking.ID.String())
	if status.Booking.Status != bookingdomain.BookingStatusRequested {
		t.Fatalf("expected requested, got %s", status.Booking.Status)
	}
	if status.Booking.StartedAt != nil {
		t.Fatal("started_at must stay unset after rejected transition")
	}
}

func TestSameStatusTransitionIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "fixed", 10000, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	first, err := env.booking.Approve(ctx, booking.ID.String())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	env.clk.Advance(time.Hour)
	second, err := env.booking.Approve(ctx, booking.ID.String())
	if err != nil {
		t.Fatalf("repeated approve must be a no-op, got %v", err)
	}
	if second.Status != bookingdomain.BookingStatusApproved {
		t.Fatalf("expected approved, got %s", second.Status)
	}
	if first.ApprovedAt == nil || second.ApprovedAt == nil || !second.ApprovedAt.Equal(*first.ApprovedAt) {
		t.Fatal("a repeated approve must not touch approved_at")
	}
}

func TestRejectIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "fixed", 10000, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	rejected, err := env.booking.Reject(ctx, booking.ID.String())
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.RejectedAt == nil {
		t.Fatal("rejected_at not set")
	}

	_, err = env.booking.Approve(ctx, booking.ID.String())
	if err != bookingdomain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelRefundsSettledTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "fixed", 10000, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	if _, err := env.booking.Approve(ctx, booking.ID.String()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	env.settlePhase(t, booking, ledgerdomain.PhaseUpfront, 5000, "cs_up_1")
	if err := env.booking.MarkUpfrontPaid(ctx, booking.ID); err != nil {
		t.Fatalf("mark upfront paid: %v", err)
	}

	cancelled, err := env.booking.Cancel(ctx, booking.ID.String())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("cancelled_at not set")
	}
	if len(env.refunds.refunded) != 1 {
		t.Fatalf("expected 1 refund request, got %d", len(env.refunds.refunded))
	}
	if env.refunds.refunded[0].SessionReference != "cs_up_1" {
		t.Fatalf("unexpected refund target %s", env.refunds.refunded[0].SessionReference)
	}
}

func TestCancelBeforePaymentSkipsRefunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "fixed", 10000, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	if _, err := env.booking.Approve(ctx, booking.ID.String()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.booking.Cancel(ctx, booking.ID.String()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(env.refunds.refunded) != 0 {
		t.Fatalf("expected no refunds, got %d", len(env.refunds.refunded))
	}
}

func TestSetAmountsWriteOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.createService(t, "quote", 0, 0)
	booking := env.createBooking(t, svc, env.clk.Now().Add(24*time.Hour), 60)

	if booking.TotalAmount != 0 {
		t.Fatalf("quote booking must start without amounts, got %d", booking.TotalAmount)
	}

	quote := pricing.Quote{Total: 8000, Upfront: 4000, Completion: 4000, Commission: 960}
	bound, err := env.booking.SetAmounts(ctx, booking.ID, quote)
	if err != nil {
		t.Fatalf("set amounts: %v", err)
	}
	if bound.TotalAmount != 8000 || bound.UpfrontAmount != 4000 {
		t.Fatalf("unexpected amounts: total=%d upfront=%d", bound.TotalAmount, bound.UpfrontAmount)
	}

	_, err = env.booking.SetAmounts(ctx, booking.ID, quote)
	if err != bookingdomain.ErrAmountsAlreadySet {
		t.Fatalf("expected ErrAmountsAlreadySet, got %v", err)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE services (
			id BIGINT PRIMARY KEY,
			provider_id BIGINT NOT NULL,
			display_name TEXT NOT NULL,
			pricing_model TEXT NOT NULL,
			fixed_price BIGINT NOT NULL DEFAULT 0,
			hourly_rate BIGINT NOT NULL DEFAULT 0,
			default_duration_minutes BIGINT NOT NULL DEFAULT 60,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE bookings (
			id BIGINT PRIMARY KEY,
			service_id BIGINT NOT NULL,
			provider_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			recurring_frequency TEXT,
			status TEXT NOT NULL,
			start_at TIMESTAMP NOT NULL,
			duration_minutes BIGINT NOT NULL,
			pricing_model TEXT NOT NULL,
			total_amount BIGINT NOT NULL DEFAULT 0,
			upfront_amount BIGINT NOT NULL DEFAULT 0,
			completion_amount BIGINT NOT NULL DEFAULT 0,
			commission BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'usd',
			customer_notes TEXT,
			gateway_subscription_ref TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			approved_at TIMESTAMP,
			rejected_at TIMESTAMP,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			cancelled_at TIMESTAMP
		)`,
		`CREATE INDEX idx_bookings_provider_status ON bookings(provider_id, status)`,
		`CREATE TABLE payment_transactions (
			id BIGINT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			phase TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			status TEXT NOT NULL,
			session_reference TEXT NOT NULL,
			provider TEXT NOT NULL,
			provider_event_id TEXT,
			created_at TIMESTAMP NOT NULL,
			resolved_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX uq_payment_transactions_session_reference ON payment_transactions(session_reference)`,
		`CREATE UNIQUE INDEX uq_payment_transactions_provider_event ON payment_transactions(provider, provider_event_id)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}
