package dupmodel

import (
	"github.com/sievehq/sieve/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("dupmodel",
	fx.Provide(NewScorer),
)

func NewScorer(cfg config.Config, log *zap.Logger) Scorer {
	return Load(cfg.ModelPath, log.Named("dupmodel"))
}
