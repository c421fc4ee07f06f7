package casemgr

import "go.uber.org/fx"

var Module = fx.Module("casemgr",
	fx.Provide(NewService),
)
