package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/sievehq/sieve/internal/anomaly"
	"github.com/sievehq/sieve/internal/audit"
	"github.com/sievehq/sieve/internal/casemgr"
	"github.com/sievehq/sieve/internal/clock"
	"github.com/sievehq/sieve/internal/config"
	"github.com/sievehq/sieve/internal/decision"
	"github.com/sievehq/sieve/internal/dupmodel"
	"github.com/sievehq/sieve/internal/migration"
	"github.com/sievehq/sieve/internal/observability"
	"github.com/sievehq/sieve/internal/ratelimit"
	"github.com/sievehq/sieve/internal/retrieval"
	"github.com/sievehq/sieve/internal/scheduler"
	"github.com/sievehq/sieve/internal/scoring"
	"github.com/sievehq/sieve/internal/seed"
	"github.com/sievehq/sieve/internal/server"
	"github.com/sievehq/sieve/internal/snapshot"
	"github.com/sievehq/sieve/internal/textindex"
	"github.com/sievehq/sieve/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Scoring pipeline
		snapshot.Module,
		textindex.Module,
		retrieval.Module,
		dupmodel.Module,
		anomaly.Module,
		decision.Module,
		casemgr.Module,
		audit.Module,
		scoring.Module,

		// Operational surface
		seed.Module,
		scheduler.Module,
		ratelimit.Module,
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
