package textindex

import (
	"github.com/sievehq/sieve/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("textindex",
	fx.Provide(NewIndexer),
)

// NewIndexer returns the OpenSearch indexer when a search host is
// configured, otherwise the no-op indexer. A failing client constructor
// degrades to no-op rather than blocking startup.
func NewIndexer(cfg config.Config, log *zap.Logger) Indexer {
	if cfg.SearchHost == "" {
		log.Info("text index disabled")
		return Noop{}
	}
	indexer, err := NewOpenSearchIndexer(cfg.SearchHost, log)
	if err != nil {
		log.Warn("text index unavailable, degrading", zap.Error(err))
		return Noop{}
	}
	return indexer
}
