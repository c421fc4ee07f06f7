package retrieval

import "go.uber.org/fx"

var Module = fx.Module("retrieval.service",
	fx.Provide(NewService),
)
