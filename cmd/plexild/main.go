// Command plexild is a thin demo wiring: it assembles plexconfig,
// plextelemetry, a sample external interface, a plexexec.Executive, a
// small illustrative plan, the clock-driven tick, and the read-only HTTP
// introspection API, then runs until interrupted. It is not a plan
// compiler or a command-and-control front end — there is no flag or
// endpoint that injects commands or loads an arbitrary plan file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plexil-group/plexil-sub002/internal/httpapi"
	"github.com/plexil-group/plexil-sub002/pkg/plexclock"
	"github.com/plexil-group/plexil-sub002/pkg/plexcond"
	"github.com/plexil-group/plexil-sub002/pkg/plexconfig"
	"github.com/plexil-group/plexil-sub002/pkg/plexevent"
	"github.com/plexil-group/plexil-sub002/pkg/plexexec"
	"github.com/plexil-group/plexil-sub002/pkg/plexexpr"
	"github.com/plexil-group/plexil-sub002/pkg/plexnode"
	"github.com/plexil-group/plexil-sub002/pkg/plextelemetry"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"

	"github.com/plexil-group/plexil-sub002/internal/adapters/testiface"
)

func main() {
	cfg := plexconfig.Load()
	log := plextelemetry.New(cfg.Logging)

	queue := plexevent.NewQueue()
	iface := testiface.New(queue, nil)
	iface.SetState(plexval.NewState("temperature"), plexval.Real(72.0))

	exec := plexexec.New(iface, queue, log)
	exec.AddRoot(buildDemoPlan(exec))

	registry := httpapi.NewRegistry()
	hub := registry.Register("demo", exec)
	_ = hub

	httpServer := httpapi.New(cfg.HTTP.Addr, registry, log)
	go func() {
		if err := httpServer.Run(); err != nil {
			log.Error().Err(err).Msg("httpapi server exited")
		}
	}()

	clock := plexclock.New(log)
	if err := clock.Start(cfg.Clock.TickSchedule, exec); err != nil {
		log.Fatal().Err(err).Msg("failed to start clock")
	}

	log.Info().Str("http_addr", cfg.HTTP.Addr).Msg("plexild running")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown

	log.Info().Msg("plexild shutting down")
	clock.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("httpapi shutdown error")
	}
}

// buildDemoPlan constructs a small illustrative tree: a List root running
// a Command child once a textual condition on a lookup is satisfied. It
// exists to give the wiring above something to execute; it is not a
// stand-in for a general plan-loading facility (out of scope, spec §1).
func buildDemoPlan(exec *plexexec.Executive) *plexnode.Node {
	programs := plexcond.NewConditionCache(64)

	startCond, err := plexcond.NewCondition(
		"cmd.start", plexval.TypeBoolean, "lookup(\"temperature\") > 70.0",
		nil, programs, exec.Cache(),
	)
	if err != nil {
		panic(err)
	}

	cmd := plexnode.New("cmd", plexnode.KindCommand)
	cmd.Conditions.Start = startCond
	cmd.Body = &plexnode.CommandBody{
		Name: plexexpr.NewConstant("cmd.name", plexval.String("log_message")),
		Args: []plexexpr.Expression{plexexpr.NewConstant("cmd.arg0", plexval.String("temperature threshold reached"))},
	}

	root := plexnode.New("demo-root", plexnode.KindList)
	root.Children = []*plexnode.Node{cmd}
	cmd.Parent = root
	plexnode.BuildAncestorConditions(nil, root)
	plexnode.BuildAncestorConditions(root, cmd)

	return root
}
