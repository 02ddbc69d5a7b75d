// Package main runs the approval engine background process: it drains the
// outbox of a shared store into the configured event transport.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viant/adminflow"
	"github.com/viant/adminflow/internal/logging"
	"github.com/viant/adminflow/service/analytics/cache"
	"github.com/viant/adminflow/service/dao/postgres"
	"github.com/viant/adminflow/service/event"
	"github.com/viant/adminflow/service/messaging"
	"github.com/viant/adminflow/service/risk"
	"github.com/viant/adminflow/tracing"
	"github.com/viant/afs"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file")
	seedURL := flag.String("seed", "", "YAML file (afs URL) with resources and admins")
	metricsAddr := flag.String("metrics", ":9090", "prometheus listen address; empty disables")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("no %s file found, relying on process environment", *envFile)
	}
	cfg, err := adminflow.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg, logger, *seedURL, *metricsAddr); err != nil {
		logger.Fatal("adminflow stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *adminflow.Config, logger *zap.Logger, seedURL, metricsAddr string) error {
	options := []adminflow.Option{adminflow.WithConfig(cfg), adminflow.WithLogger(logger)}
	if cfg.Tracing.Enabled {
		if err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.Version, cfg.Tracing.OutputFile); err != nil {
			return err
		}
	}
	fs := afs.New()
	if seedURL != "" {
		seed, err := loadSeed(ctx, fs, seedURL)
		if err != nil {
			return err
		}
		options = append(options, adminflow.WithResourceLookup(seed.lookup()), adminflow.WithRoster(seed.roster()))
		logger.Info("seed loaded", zap.Int("resources", len(seed.Resources)), zap.Int("admins", len(seed.Admins)))
	}
	if cfg.Postgres.DSN != "" {
		store, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer store.Close()
		options = append(options,
			adminflow.WithStore(store),
			adminflow.WithAssessmentDAO(postgres.NewAssessmentService(store.Pool())))
		logger.Info("postgres store connected")
	}
	if len(cfg.Redis.Addrs) > 0 {
		redisCache := cache.NewRedis(cache.NewClient(&cfg.Redis))
		defer func() { _ = redisCache.Close() }()
		options = append(options, adminflow.WithCache(redisCache))
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required to deliver outbox events")
	}
	events, err := event.New(messaging.VendorKafka, event.WithKafkaQueueConfig(cfg.Kafka), event.WithLogger(logger))
	if err != nil {
		return err
	}
	options = append(options, adminflow.WithEventService(events))
	logger.Info("kafka event transport", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	if cfg.Export.BaseURL != "" {
		options = append(options, adminflow.WithExporter(risk.NewExporter(fs, cfg.Export.BaseURL)))
	}

	srv, err := adminflow.New(options...)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		server := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = server.Close() }()
	}
	if err = srv.Runtime().Start(ctx); err != nil {
		return err
	}
	logger.Info("adminflow started")
	<-ctx.Done()
	logger.Info("adminflow shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Runtime().Shutdown(shutdownCtx)
}
