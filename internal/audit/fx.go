package audit

import (
	"github.com/sievehq/sieve/internal/audit/repository"
	"github.com/sievehq/sieve/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
