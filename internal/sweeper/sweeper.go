package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("sweeper: missing dependency")

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Ledger ledgerdomain.Ledger

	Lock   *ratelimit.SweepLock `optional:"true"`
	Config Config               `optional:"true"`
}

// Sweeper periodically fails pending payment attempts whose checkout
// session expiry callback never arrived, so abandoned sessions do not
// sit open in the books forever.
type Sweeper struct {
	log    *zap.Logger
	cfg    Config
	clock  clock.Clock
	ledger ledgerdomain.Ledger
	lock   *ratelimit.SweepLock
}

func New(p Params) (*Sweeper, error) {
	if p.Log == nil || p.Clock == nil || p.Ledger == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		log:    p.Log.Named("sweeper"),
		cfg:    p.Config.withDefaults(),
		clock:  p.Clock,
		ledger: p.Ledger,
		lock:   p.Lock,
	}, nil
}

// RunOnce performs a single sweep. Safe to call concurrently across
// instances; the lock only avoids redundant work.
func (s *Sweeper) RunOnce(parent context.Context) error {
	token, ok, err := s.lock.TryLock(parent)
	if err != nil {
		s.log.Warn("sweep lock unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := s.lock.Release(parent, token); err != nil {
			s.log.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	cutoff := s.clock.Now().Add(-s.cfg.PendingTTL)
	var total int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		expired, err := s.ledger.ExpirePending(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		total += expired
		if expired < int64(s.cfg.BatchSize) {
			break
		}
	}

	if total > 0 {
		s.log.Info("sweep expired stale payment attempts",
			zap.Int64("expired", total),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
