package sweeper_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	ledgerrepo "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/repository"
	ledgerservice "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/service"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/sweeper"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sweepEnv struct {
	db     *gorm.DB
	node   *snowflake.Node
	clk    *clock.FakeClock
	ledger ledgerdomain.Ledger
}

func newSweepEnv(t *testing.T) *sweepEnv {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(24)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	ledger := ledgerservice.NewService(ledgerservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  ledgerrepo.Provide(),
	})

	return &sweepEnv{db: db, node: node, clk: clk, ledger: ledger}
}

func (e *sweepEnv) newSweeper(t *testing.T, cfg sweeper.Config) *sweeper.Sweeper {
	t.Helper()

	sw, err := sweeper.New(sweeper.Params{
		Log:    zap.NewNop(),
		Clock:  e.clk,
		Ledger: e.ledger,
		Config: cfg,
	})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	return sw
}

func (e *sweepEnv) recordPending(t *testing.T, ref string) {
	t.Helper()

	_, err := e.ledger.RecordPending(context.Background(), ledgerdomain.RecordPendingRequest{
		BookingID:        e.node.Generate(),
		Phase:            ledgerdomain.PhaseUpfront,
		Amount:           5000,
		Currency:         "usd",
		Provider:         "stripe",
		SessionReference: ref,
	})
	if err != nil {
		t.Fatalf("record pending %s: %v", ref, err)
	}
}

func TestRunOnceExpiresOnlyStalePending(t *testing.T) {
	env := newSweepEnv(t)
	ctx := context.Background()

	env.recordPending(t, "cs_stale")
	if _, err := env.ledger.Resolve(ctx, ledgerdomain.ResolveRequest{
		SessionReference: "cs_stale",
		Outcome:          ledgerdomain.TransactionStatusSucceeded,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	env.recordPending(t, "cs_old")

	env.clk.Advance(2 * time.Hour)
	env.recordPending(t, "cs_fresh")

	env.clk.Advance(23 * time.Hour)
	sw := env.newSweeper(t, sweeper.Config{PendingTTL: 24 * time.Hour})
	if err := sw.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_transactions WHERE session_reference = 'cs_old' AND status = 'failed' AND resolved_at IS NOT NULL`, 1)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_transactions WHERE session_reference = 'cs_fresh' AND status = 'pending'`, 1)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_transactions WHERE session_reference = 'cs_stale' AND status = 'succeeded'`, 1)
}

func TestRunOnceDrainsBacklogInBatches(t *testing.T) {
	env := newSweepEnv(t)

	for i := 0; i < 5; i++ {
		env.recordPending(t, fmt.Sprintf("cs_%d", i))
	}

	env.clk.Advance(25 * time.Hour)
	sw := env.newSweeper(t, sweeper.Config{PendingTTL: 24 * time.Hour, BatchSize: 2})
	if err := sw.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_transactions WHERE status = 'failed'`, 5)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_transactions WHERE status = 'pending'`, 0)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	env := newSweepEnv(t)
	ctx := context.Background()

	env.recordPending(t, "cs_old")
	env.clk.Advance(25 * time.Hour)

	sw := env.newSweeper(t, sweeper.Config{PendingTTL: 24 * time.Hour})
	if err := sw.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := sw.RunOnce(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_transactions WHERE status = 'failed'`, 1)
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
