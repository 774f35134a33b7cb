package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	ledgerrepo "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/repository"
	ledgerservice "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/service"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newLedger(t *testing.T) (ledgerdomain.Ledger, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(21)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := ledgerservice.NewService(ledgerservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
		Repo:  ledgerrepo.Provide(),
	})
	return svc, db, node
}

func recordPending(t *testing.T, ledger ledgerdomain.Ledger, bookingID snowflake.ID, phase ledgerdomain.Phase, amount int64, ref string) ledgerdomain.PaymentTransaction {
	t.Helper()

	tx, err := ledger.RecordPending(context.Background(), ledgerdomain.RecordPendingRequest{
		BookingID:        bookingID,
		Phase:            phase,
		Amount:           amount,
		Currency:         "usd",
		Provider:         "stripe",
		SessionReference: ref,
	})
	if err != nil {
		t.Fatalf("record pending: %v", err)
	}
	return tx
}

func TestRecordPendingDuplicateReference(t *testing.T) {
	ledger, db, node := newLedger(t)
	bookingID := node.Generate()

	recordPending(t, ledger, bookingID, ledgerdomain.PhaseUpfront, 5000, "cs_1")

	_, err := ledger.RecordPending(context.Background(), ledgerdomain.RecordPendingRequest{
		BookingID:        bookingID,
		Phase:            ledgerdomain.PhaseUpfront,
		Amount:           5000,
		Currency:         "usd",
		Provider:         "stripe",
		SessionReference: "cs_1",
	})
	if err != ledgerdomain.ErrDuplicateReference {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM payment_transactions", 1)
}

func TestResolveIsWriteOnce(t *testing.T) {
	ledger, _, node := newLedger(t)
	ctx := context.Background()
	bookingID := node.Generate()

	recordPending(t, ledger, bookingID, ledgerdomain.PhaseUpfront, 5000, "cs_1")

	resolved, err := ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: "cs_1",
		Outcome:          ledgerdomain.TransactionStatusSucceeded,
		BookingTotal:     10000,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != ledgerdomain.TransactionStatusSucceeded || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolution: status=%s resolved_at=%v", resolved.Status, resolved.ResolvedAt)
	}

	// a second resolve must not flip the outcome, not even to failed
	_, err = ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: "cs_1",
		Outcome:          ledgerdomain.TransactionStatusFailed,
	})
	if err != ledgerdomain.ErrAlreadyResolved {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	tx, err := ledger.FindBySessionReference(ctx, "cs_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if tx.Status != ledgerdomain.TransactionStatusSucceeded {
		t.Fatalf("outcome changed after second resolve: %s", tx.Status)
	}
}

func TestResolveUnknownReference(t *testing.T) {
	ledger, _, _ := newLedger(t)

	_, err := ledger.Resolve(context.Background(), ledgerdomain.ResolveRequest{
		SessionReference: "cs_missing",
		Outcome:          ledgerdomain.TransactionStatusSucceeded,
	})
	if err != ledgerdomain.ErrTransactionNotFound {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestResolveEnforcesBookingTotalCap(t *testing.T) {
	ledger, _, node := newLedger(t)
	ctx := context.Background()
	bookingID := node.Generate()

	recordPending(t, ledger, bookingID, ledgerdomain.PhaseUpfront, 5000, "cs_1")
	if _, err := ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: "cs_1",
		Outcome:          ledgerdomain.TransactionStatusSucceeded,
		BookingTotal:     10000,
	}); err != nil {
		t.Fatalf("resolve upfront: %v", err)
	}

	// 5000 settled + 6000 would exceed the 10000 booking total
	recordPending(t, ledger, bookingID, ledgerdomain.PhaseCompletion, 6000, "cs_2")
	_, err := ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: "cs_2",
		Outcome:          ledgerdomain.TransactionStatusSucceeded,
		BookingTotal:     10000,
	})
	if err != ledgerdomain.ErrLedgerOverflow {
		t.Fatalf("expected ErrLedgerOverflow, got %v", err)
	}

	total, err := ledger.TotalSucceeded(ctx, bookingID)
	if err != nil {
		t.Fatalf("total succeeded: %v", err)
	}
	if total != 5000 {
		t.Fatalf("expected settled sum 5000, got %d", total)
	}
}

func TestFailedAttemptsStayOnTheBooks(t *testing.T) {
	ledger, db, node := newLedger(t)
	ctx := context.Background()
	bookingID := node.Generate()

	recordPending(t, ledger, bookingID, ledgerdomain.PhaseUpfront, 5000, "cs_1")
	if _, err := ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: "cs_1",
		Outcome:          ledgerdomain.TransactionStatusFailed,
	}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	recordPending(t, ledger, bookingID, ledgerdomain.PhaseUpfront, 5000, "cs_2")
	if _, err := ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: "cs_2",
		Outcome:          ledgerdomain.TransactionStatusSucceeded,
		BookingTotal:     10000,
	}); err != nil {
		t.Fatalf("resolve retry: %v", err)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM payment_transactions", 2)

	settled, err := ledger.HasSucceeded(ctx, bookingID, ledgerdomain.PhaseUpfront)
	if err != nil {
		t.Fatalf("has succeeded: %v", err)
	}
	if !settled {
		t.Fatal("retry after failure must settle the phase")
	}

	total, _ := ledger.TotalSucceeded(ctx, bookingID)
	if total != 5000 {
		t.Fatalf("failed attempts must not count toward the sum, got %d", total)
	}
}

func TestRecordSettledIdempotentByEventID(t *testing.T) {
	ledger, db, node := newLedger(t)
	ctx := context.Background()
	bookingID := node.Generate()

	req := ledgerdomain.RecordSettledRequest{
		BookingID:       bookingID,
		Phase:           ledgerdomain.PhaseCompletion,
		Amount:          2500,
		Currency:        "usd",
		Provider:        "stripe",
		ProviderEventID: "evt_inv_1",
	}

	_, inserted, err := ledger.RecordSettled(ctx, req)
	if err != nil {
		t.Fatalf("record settled: %v", err)
	}
	if !inserted {
		t.Fatal("first call must insert")
	}

	_, inserted, err = ledger.RecordSettled(ctx, req)
	if err != nil {
		t.Fatalf("record settled replay: %v", err)
	}
	if inserted {
		t.Fatal("replay must not insert a second row")
	}
	assertCount(t, db, "SELECT COUNT(1) FROM payment_transactions", 1)
}

func TestFindPendingByPhase(t *testing.T) {
	ledger, _, node := newLedger(t)
	ctx := context.Background()
	bookingID := node.Generate()

	if tx, err := ledger.FindPendingByPhase(ctx, bookingID, ledgerdomain.PhaseUpfront); err != nil || tx != nil {
		t.Fatalf("expected no pending tx, got tx=%v err=%v", tx, err)
	}

	recordPending(t, ledger, bookingID, ledgerdomain.PhaseUpfront, 5000, "cs_1")

	tx, err := ledger.FindPendingByPhase(ctx, bookingID, ledgerdomain.PhaseUpfront)
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if tx == nil || tx.SessionReference != "cs_1" {
		t.Fatalf("unexpected pending tx: %+v", tx)
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
