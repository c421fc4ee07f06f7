// Package seed bootstraps the tenant config rows the decision service
// reads at runtime.
package seed

import (
	"context"
	"errors"

	"github.com/sievehq/sieve/internal/config"
	"github.com/sievehq/sieve/internal/decision"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnsureThresholds writes the global T_hold and T_review rows for the
// configured tenant when they are missing, so a fresh deployment decides
// with the documented defaults instead of an empty config table.
func EnsureThresholds(ctx context.Context, db *gorm.DB, decisions *decision.Service, cfg config.Config, opts config.ScoringOptions) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	defaults := map[string]float64{
		"T_hold":   opts.HoldThreshold,
		"T_review": opts.ReviewThreshold,
	}

	for key, value := range defaults {
		var count int64
		err := db.WithContext(ctx).
			Raw(`SELECT COUNT(1) FROM configs WHERE tenant_id = ? AND scope = 'global' AND key = ?`,
				cfg.TenantID, key).
			Scan(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := decisions.SetThreshold(ctx, cfg.TenantID, "global", key, value); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("seed",
	fx.Invoke(run),
)

type runParam struct {
	fx.In

	Log       *zap.Logger
	DB        *gorm.DB
	Config    config.Config
	Options   *config.ScoringOptionsHolder
	Decisions *decision.Service
}

func run(p runParam) error {
	err := EnsureThresholds(context.Background(), p.DB, p.Decisions, p.Config, p.Options.Current())
	if err != nil {
		p.Log.Named("seed").Error("threshold seed failed", zap.Error(err))
	}
	return err
}
