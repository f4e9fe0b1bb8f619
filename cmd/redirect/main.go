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

	"linkgate/pkg/cache"
	"linkgate/pkg/config"
	"linkgate/pkg/directory"
	"linkgate/pkg/gateway"
	httphandler "linkgate/pkg/http"
	"linkgate/pkg/identity"
	"linkgate/pkg/logging"
	"linkgate/pkg/notify"
	"linkgate/pkg/scheduler"
	"linkgate/pkg/session"
	"linkgate/pkg/storage"
	"linkgate/pkg/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "linkgate-redirect", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal(err)
	}
	defer shutdownTracing(context.Background())

	// Storage
	store, err := storage.Open(ctx, cfg.StorageBackend, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// Redis is optional; without it the directory has only its local tier and
	// visits go straight to storage.
	dirOpts := []directory.Option{directory.WithLogger(logger)}
	var ledger gateway.VisitLedger = store
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		redisClient := redis.NewClient(opt)
		defer redisClient.Close()

		dirOpts = append(dirOpts, directory.WithRemoteCache(cache.NewLinkCache(redisClient)))
		ledger = cache.NewVisitLedger(redisClient, cfg.SessionWindow, store)
	}
	links := directory.New(store, dirOpts...)

	// Identity
	verifier := identity.NewDispatcher(cfg.IdentityTimeout)
	if cfg.OIDCIssuerURL != "" {
		oidcVerifier, err := identity.NewOIDCVerifier(ctx, identity.OIDCConfig{
			IssuerURL: cfg.OIDCIssuerURL,
			ClientID:  cfg.OIDCClientID,
		})
		if err != nil {
			log.Fatal(err)
		}
		verifier.Register(identity.KindIDToken, oidcVerifier)
	}
	if cfg.UserInfoURL != "" {
		verifier.Register(identity.KindAccessToken,
			identity.NewOAuthVerifier(cfg.UserInfoURL, &stdhttp.Client{Timeout: cfg.IdentityTimeout}))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Follow-ups
	sink, closeSink, err := notify.NewSink(notify.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeSink()

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
	if cfg.SchedulerInProcess {
		go sched.Run(ctx, cfg.SchedulerInterval)
	}

	gw, err := gateway.New(links, ledger, verifier, store,
		gateway.WithCaptureHandler(sched),
		gateway.WithLogger(logger),
		gateway.WithMetrics(gateway.NewMetrics(reg)),
		gateway.WithIdentityTimeout(cfg.IdentityTimeout),
	)
	if err != nil {
		log.Fatal(err)
	}

	sessions, err := session.NewManager(cfg.SessionSecret, session.WithWindow(cfg.SessionWindow))
	if err != nil {
		log.Fatal(err)
	}

	// Router
	r := chi.NewRouter()
	httphandler.SetupRoutes(r, httphandler.NewHandler(gw, sessions, logger), reg)

	srv := &stdhttp.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "starting redirect server", "addr", cfg.HTTPAddr, "storage", cfg.StorageBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		log.Fatal(err)
	}
}
