package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantops/internal/audit"
	"github.com/smallbiznis/plantops/internal/clock"
	"github.com/smallbiznis/plantops/internal/company"
	"github.com/smallbiznis/plantops/internal/config"
	"github.com/smallbiznis/plantops/internal/jobs"
	"github.com/smallbiznis/plantops/internal/membership"
	"github.com/smallbiznis/plantops/internal/observability"
	"github.com/smallbiznis/plantops/internal/providers"
	"github.com/smallbiznis/plantops/internal/ratelimit"
	"github.com/smallbiznis/plantops/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		audit.Module,
		company.Module,
		membership.Module,
		ratelimit.Module,
		providers.Module,

		// No server module!
		jobs.WorkerModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
