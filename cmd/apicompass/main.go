package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/saurav5380/apicompass/internal/alert"
	"github.com/saurav5380/apicompass/internal/audit"
	"github.com/saurav5380/apicompass/internal/budget"
	"github.com/saurav5380/apicompass/internal/clock"
	"github.com/saurav5380/apicompass/internal/config"
	"github.com/saurav5380/apicompass/internal/connection"
	"github.com/saurav5380/apicompass/internal/entitlement"
	"github.com/saurav5380/apicompass/internal/insight"
	"github.com/saurav5380/apicompass/internal/logger"
	"github.com/saurav5380/apicompass/internal/migration"
	"github.com/saurav5380/apicompass/internal/notify"
	"github.com/saurav5380/apicompass/internal/observability"
	"github.com/saurav5380/apicompass/internal/organization"
	"github.com/saurav5380/apicompass/internal/projection"
	"github.com/saurav5380/apicompass/internal/scheduler"
	"github.com/saurav5380/apicompass/internal/server"
	"github.com/saurav5380/apicompass/internal/usage"
	"github.com/saurav5380/apicompass/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		organization.Module,
		entitlement.Module,
		connection.Module,
		usage.Module,
		budget.Module,
		projection.Module,
		insight.Module,
		notify.Module,
		alert.Module,
		audit.Module,

		// HTTP API plus background jobs in one process
		scheduler.Module,
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
