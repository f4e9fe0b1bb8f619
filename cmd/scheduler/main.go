package main

import (
	"context"
	"errors"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkgate/pkg/config"
	"linkgate/pkg/logging"
	"linkgate/pkg/notify"
	"linkgate/pkg/scheduler"
	"linkgate/pkg/storage"
	"linkgate/pkg/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "linkgate-scheduler", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal(err)
	}
	defer shutdownTracing(context.Background())

	store, err := storage.Open(ctx, cfg.StorageBackend, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	sink, closeSink, err := notify.NewSink(notify.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeSink()

	reg := prometheus.NewRegistry()
	sched, err := scheduler.New(store, store, sink,
		scheduler.WithLocation(cfg.Location),
		scheduler.WithMonthOverflow(cfg.MonthOverflow),
		scheduler.WithBatchSize(cfg.SchedulerBatchSize),
		scheduler.WithConcurrency(cfg.SchedulerWorkers),
		scheduler.WithSinkTimeout(cfg.SinkTimeout),
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(scheduler.NewMetrics(reg)),
	)
	if err != nil {
		log.Fatal(err)
	}

	// Health and metrics only; deliveries are driven by the ticker.
	r := chi.NewRouter()
	r.Get("/health", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &stdhttp.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			logger.Error(ctx, "metrics server stopped", "error", err)
		}
	}()

	logger.Info(ctx, "starting scheduler", "interval", cfg.SchedulerInterval.String(), "storage", cfg.StorageBackend)
	if err := sched.Run(ctx, cfg.SchedulerInterval); err != nil {
		logger.Error(ctx, "scheduler stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
