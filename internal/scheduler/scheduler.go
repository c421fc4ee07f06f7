// Package scheduler runs the periodic maintenance the scoring path reads
// from, currently the per-vendor amount baselines.
package scheduler

import (
	"context"
	"time"

	"github.com/sievehq/sieve/internal/clock"
	appconfig "github.com/sievehq/sieve/internal/config"
	snapshotdomain "github.com/sievehq/sieve/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	AppConfig appconfig.Config
	Snapshots snapshotdomain.Service
	Config    Config `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	clock     clock.Clock
	tenantID  string
	snapshots snapshotdomain.Service
	cfg       Config
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:       p.Log.Named("scheduler"),
		clock:     p.Clock,
		tenantID:  p.AppConfig.TenantID,
		snapshots: p.Snapshots,
		cfg:       p.Config.withDefaults(),
	}
}

// RunForever refreshes baselines on the configured interval until the
// context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Warn("baseline refresh run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce refreshes the baseline of every known vendor, stopping early on
// cancellation. Per-vendor failures are logged and skipped so one bad
// vendor cannot starve the rest.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	started := s.clock.Now()

	vendorIDs, err := s.snapshots.ListVendors(ctx, s.tenantID)
	if err != nil {
		return err
	}

	refreshed := 0
	for _, vendorID := range vendorIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.snapshots.RefreshBaseline(ctx, s.tenantID, vendorID); err != nil {
			s.log.Warn("baseline refresh failed",
				zap.String("vendor_id", vendorID), zap.Error(err))
			continue
		}
		refreshed++
	}

	s.log.Info("baseline refresh complete",
		zap.Int("vendors", len(vendorIDs)),
		zap.Int("refreshed", refreshed),
		zap.Duration("took", s.clock.Now().Sub(started)))
	return nil
}
