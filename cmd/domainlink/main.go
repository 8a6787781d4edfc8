package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainlink/internal/clock"
	"github.com/smallbiznis/domainlink/internal/config"
	"github.com/smallbiznis/domainlink/internal/handoff"
	"github.com/smallbiznis/domainlink/internal/logger"
	"github.com/smallbiznis/domainlink/internal/mapping"
	"github.com/smallbiznis/domainlink/internal/migration"
	"github.com/smallbiznis/domainlink/internal/observability"
	"github.com/smallbiznis/domainlink/internal/ratelimit"
	"github.com/smallbiznis/domainlink/internal/resolver"
	"github.com/smallbiznis/domainlink/internal/scheduler"
	"github.com/smallbiznis/domainlink/internal/server"
	"github.com/smallbiznis/domainlink/internal/session"
	"github.com/smallbiznis/domainlink/internal/site"
	"github.com/smallbiznis/domainlink/pkg/db"
	"go.uber.org/fx"
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
		mapping.Module,
		site.Module,
		resolver.Module,
		handoff.Module,
		session.Module,
		ratelimit.Module,
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
