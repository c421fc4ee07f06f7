package snapshot

import (
	"github.com/sievehq/sieve/internal/snapshot/repository"
	"github.com/sievehq/sieve/internal/snapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
