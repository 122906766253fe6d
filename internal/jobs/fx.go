package jobs

import "go.uber.org/fx"

// Module lets API processes enqueue jobs.
var Module = fx.Module("jobs.client",
	fx.Provide(
		NewClient,
		NewNotifier,
	),
)

// WorkerModule runs the queue consumer and the periodic sweep.
var WorkerModule = fx.Module("jobs.worker",
	fx.Provide(
		NewHandler,
		NewServer,
		NewScheduler,
	),
	fx.Invoke(run),
)
