package access

import "go.uber.org/fx"

var Module = fx.Module("access",
	fx.Provide(
		NewEnforcer,
		NewFilter,
		NewResolver,
		NewSimulator,
	),
)
