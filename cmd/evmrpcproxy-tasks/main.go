// Command evmrpcproxy-tasks runs the recurring health-check loop, driven
// by a cron "@every" schedule with a configurable pause. --once runs a
// single check and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/evmrpcproxy/internal/bootstrap"
	"github.com/R3E-Network/evmrpcproxy/internal/healthcheck"
)

func main() {
	once := flag.Bool("once", false, "run the health check once and exit instead of looping")
	sequential := flag.Bool("sequential", false, "probe nodes sequentially instead of in parallel")
	flag.Parse()

	app, err := bootstrap.Build("evmrpcproxy-tasks")
	if err != nil {
		fmt.Fprintln(os.Stderr, "evmrpcproxy-tasks: startup failed:", err)
		os.Exit(1)
	}

	opts := healthcheck.Options{
		Sequential:       *sequential,
		PerChainPauseSec: app.Settings.HealthCheckRunPauseSec / 10,
	}

	runOnce := func() {
		results := app.Checker.Run(context.Background(), opts)
		failures := 0
		for _, r := range results {
			if !r.Success {
				failures++
				app.Logger.WithFields(map[string]interface{}{
					"chain": r.Chain,
					"node":  r.Node,
					"error": r.Err,
				}).Warn("evmrpc_check: node unhealthy")
			}
		}
		app.Logger.WithFields(map[string]interface{}{
			"checked":  len(results),
			"failures": failures,
		}).Info("evmrpc_check: run complete")
	}

	if *once {
		runOnce()
		return
	}

	c := cron.New()
	schedule := fmt.Sprintf("@every %ds", int(app.Settings.HealthCheckRunPauseSec))
	if _, err := c.AddFunc(schedule, runOnce); err != nil {
		app.Logger.WithError(err).Fatal("evmrpcproxy-tasks: failed to schedule health-check loop")
	}
	c.Start()
	app.Logger.WithFields(map[string]interface{}{"schedule": schedule}).Info("evmrpcproxy-tasks: health-check loop started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	app.Logger.Info("evmrpcproxy-tasks: shutting down")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	app.Stats.Wait()
}
