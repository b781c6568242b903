// Command server runs the Lynx REST API over a single database instance,
// exposing Prometheus metrics on /metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lynxdb/lynx/pkg/api/rest"
	"github.com/lynxdb/lynx/pkg/api/rest/middleware"
	"github.com/lynxdb/lynx/pkg/config"
	"github.com/lynxdb/lynx/pkg/lynx"
	"github.com/lynxdb/lynx/pkg/observability"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	app := config.DefaultApp()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		app = *loaded
	}
	app.FromEnv()

	logger := observability.NewLogger(observability.ParseLogLevel(app.Logging.Level), os.Stdout)

	if app.Database.Dimension <= 0 {
		logger.Error("configuration must set database.dimension")
		os.Exit(1)
	}

	db, err := lynx.New(app.Database, lynx.WithLogger(logger))
	if err != nil {
		logger.Error("create database", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	// Load persisted state if the data directory already has one.
	if app.Database.DataPath != "" {
		if err := db.Load(); err != nil {
			logger.Warn("no persisted state loaded", map[string]interface{}{"error": err.Error()})
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	server := rest.NewServer(rest.Config{
		Host: app.Server.Host,
		Port: app.Server.Port,
		Auth: middleware.AuthConfig{
			Enabled:   app.Server.AuthEnabled,
			JWTSecret: app.Server.JWTSecret,
		},
		RateLimit: middleware.RateLimitConfig{
			Enabled:        app.Server.RateLimitEnabled,
			RequestsPerSec: app.Server.RequestsPerSec,
			Burst:          app.Server.Burst,
		},
	}, db, logger, metrics, map[string]http.Handler{
		"/metrics": promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", map[string]interface{}{"signal": sig.String()})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown", map[string]interface{}{"error": err.Error()})
		}
		if err := db.Flush(); err != nil {
			logger.Warn("final flush", map[string]interface{}{"error": err.Error()})
		}
	}
}
