package service

import "go.uber.org/fx"

var Module = fx.Module("seat.service",
	fx.Provide(NewService),
)
