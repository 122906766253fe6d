package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantops/internal/access"
	"github.com/smallbiznis/plantops/internal/audit"
	"github.com/smallbiznis/plantops/internal/auth"
	"github.com/smallbiznis/plantops/internal/billing"
	"github.com/smallbiznis/plantops/internal/clock"
	"github.com/smallbiznis/plantops/internal/company"
	"github.com/smallbiznis/plantops/internal/config"
	"github.com/smallbiznis/plantops/internal/jobs"
	"github.com/smallbiznis/plantops/internal/membership"
	"github.com/smallbiznis/plantops/internal/migration"
	"github.com/smallbiznis/plantops/internal/observability"
	"github.com/smallbiznis/plantops/internal/ratelimit"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
	"github.com/smallbiznis/plantops/internal/server"
	"github.com/smallbiznis/plantops/internal/signup"
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
		migration.Module,

		audit.Module,
		company.Module,
		membership.Module,
		seatservice.Module,
		auth.Module,
		access.Module,
		signup.Module,
		billing.Module,
		ratelimit.Module,

		// Invitation emails are queued; the worker sends them.
		jobs.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
