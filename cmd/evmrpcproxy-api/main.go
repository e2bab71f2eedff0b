// Command evmrpcproxy-api serves the public HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/evmrpcproxy/internal/bootstrap"
	"github.com/R3E-Network/evmrpcproxy/internal/httpapi"
)

func main() {
	app, err := bootstrap.Build("evmrpcproxy-api")
	if err != nil {
		fmt.Fprintln(os.Stderr, "evmrpcproxy-api: startup failed:", err)
		os.Exit(1)
	}

	server := &httpapi.Server{
		Client:   app.Client,
		Registry: app.Chains,
		Checker:  app.Checker,
		Stats:    app.Stats,
		Tokens:   httpapi.NewTokenResolver(app.Settings.AuthTokens, app.Settings.JWTSigningKey),
		Logger:   app.Logger,
		Env:      app.Settings.Env,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.Settings.APIBind, app.Settings.APIPort),
		Handler:      httpapi.NewRouter(server),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	app.Logger.WithFields(map[string]interface{}{
		"addr": httpServer.Addr,
	}).Info("evmrpcproxy-api listening")

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.WithError(err).Fatal("evmrpcproxy-api: server exited unexpectedly")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	app.Logger.Info("evmrpcproxy-api: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		app.Logger.WithError(err).Error("evmrpcproxy-api: graceful shutdown failed")
	}
	app.Stats.Wait()
}
