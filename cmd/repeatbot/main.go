package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/repeatbot/internal/config"
	"github.com/dukerupert/repeatbot/internal/discord"
	"github.com/dukerupert/repeatbot/internal/interactions"
	"github.com/dukerupert/repeatbot/internal/logging"
	"github.com/dukerupert/repeatbot/internal/metrics"
	"github.com/dukerupert/repeatbot/internal/middleware"
	"github.com/dukerupert/repeatbot/internal/repeater"
	"github.com/dukerupert/repeatbot/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("REPEATBOT_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("repeatbot stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client, err := discord.NewClient(discord.Config{
		Token:             cfg.Token,
		APIURL:            cfg.Discord.APIURL,
		CDNURL:            cfg.Discord.CDNURL,
		RequestsPerSecond: cfg.Discord.RequestsPerSecond,
		Timeout:           cfg.Discord.RequestTimeout,
	})
	if err != nil {
		return err
	}

	gatewayURL := cfg.Discord.GatewayURL
	if gatewayURL == "" {
		gatewayURL, err = client.GatewayURL(ctx)
		if err != nil {
			logger.Warn("gateway discovery failed, using default", "error", err)
			gatewayURL = discord.DefaultGatewayURL
		}
	}

	listener := repeater.NewListener(
		repeater.NewReplicator(client),
		m,
		logger.With("component", "repeater"),
	)

	gateway, err := discord.NewGateway(discord.GatewayConfig{
		Token:        cfg.Token,
		URL:          gatewayURL,
		ReconnectMax: cfg.Discord.ReconnectMax,
	}, listener, logger.With("component", "gateway"))
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		Interactions:     interactions.NewHandler(m, logger.With("component", "interactions")),
		InteractionRate:  cfg.HTTP.InteractionRate,
		InteractionBurst: cfg.HTTP.InteractionBurst,
		Gateway:          gateway,
		Gatherer:         reg,
	}
	if cfg.PublicKey != "" {
		key, err := middleware.ParsePublicKey(cfg.PublicKey)
		if err != nil {
			return err
		}
		srvCfg.PublicKey = &key
	}
	srv := server.New(srvCfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	gatewayDone := make(chan struct{})
	g.Go(func() error {
		defer close(gatewayDone)
		return gateway.Run(gctx)
	})
	g.Go(func() error {
		srv.RunCleanup(gctx, 10*time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		if err := drainReplications(shutdownCtx, gatewayDone, listener); err != nil {
			logger.Warn("replications still in flight at shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

type replicationWaiter interface {
	Wait(ctx context.Context) error
}

// drainReplications waits for the gateway to stop dispatching, then for the
// replications it started, so none can begin after w.Wait.
func drainReplications(ctx context.Context, gatewayDone <-chan struct{}, w replicationWaiter) error {
	select {
	case <-gatewayDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return w.Wait(ctx)
}
