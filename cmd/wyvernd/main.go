package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	wyvern "github.com/HappyFeet07/WyvernV3Fork"
	"github.com/HappyFeet07/WyvernV3Fork/internal/api"
	"github.com/HappyFeet07/WyvernV3Fork/internal/config"
	"github.com/HappyFeet07/WyvernV3Fork/internal/events"
	"github.com/HappyFeet07/WyvernV3Fork/internal/logging"
	"github.com/HappyFeet07/WyvernV3Fork/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load(os.Getenv("WYVERN_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.ServiceName, cfg.Env)

	if cfg.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	ready := api.NewHealth(false)

	journal, err := events.OpenJournal(cfg.Journal.Path)
	if err != nil {
		logger.Error("journal open failed", "path", cfg.Journal.Path, "error", err)
		os.Exit(1)
	}

	hub := events.NewHub(logger)
	sinks := []events.Sink{hub}

	if cfg.Kafka.Enabled {
		producer, err := events.NewSyncProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			journal.Close()
			os.Exit(1)
		}
		sinks = append(sinks, events.NewKafkaSink(producer, cfg.Kafka.Topic))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := wyvern.NewClient(ctx, wyvern.ClientConfig{
		ChainID:            wyvern.ChainID(cfg.Exchange.ChainID),
		PersonalSignPrefix: cfg.Exchange.PersonalSignPrefix,
		GrantDelay:         cfg.Registry.GrantDelay,
		Deployer:           cfg.DeployerAddress(),
		Logger:             logger,
		Metrics:            m,
		Journal:            journal,
		Sinks:              sinks,
	})
	cancel()
	if err != nil {
		logger.Error("exchange deploy failed", "error", err)
		journal.Close()
		os.Exit(1)
	}
	defer client.Close()

	if cfg.Journal.Path != ":memory:" {
		logger.Warn("ledger state is not persisted; journaled events from earlier runs refer to ledgers that no longer exist",
			"journal", cfg.Journal.Path,
			"ledger", client.Ledger().ID().Hex(),
		)
	}

	router := api.NewRouter(api.RouterConfig{
		Service:     client,
		Operator:    cfg.OperatorAddress(),
		Logger:      logger,
		Metrics:     m,
		Registry:    registry,
		MetricsPath: cfg.MetricsPath,
		Health:      ready,
		Hub:         hub,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ready.SetReady(true)

	go func() {
		logger.Info("wyvernd http starting",
			"addr", httpServer.Addr,
			"exchange", client.Exchange().Address().Hex(),
			"operator", cfg.OperatorAddress().Hex(),
			"ledger", client.Ledger().ID().Hex(),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	waitForShutdown(httpServer, ready, logger)
}

func waitForShutdown(httpServer *http.Server, ready *api.Health, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
