package decision

import "go.uber.org/fx"

var Module = fx.Module("decision",
	fx.Provide(NewService),
)
