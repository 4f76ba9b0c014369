package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"TokenLedger/internal/config"
	"TokenLedger/internal/core"
	"TokenLedger/internal/event"
	"TokenLedger/internal/ingestion"
	"TokenLedger/internal/ledger"
	"TokenLedger/internal/observability"
	"TokenLedger/internal/persistence"
	"TokenLedger/internal/server"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLoggerWithLevel("tokenledger", observability.ParseLogLevel(cfg.LogLevel))
	logger.Info().Str("backend", cfg.Backend).Msg("TokenLedger starting")

	// --- Context with graceful shutdown ---
	// ctx governs the ingress side (servers, NATS); workers get their own
	// context so they can drain after ingress stops.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()

	// --- Postgres ---
	var db *sql.DB
	if cfg.NeedsPostgres() {
		db, err = openPostgres(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer db.Close()
	}

	// --- Ledger store ---
	store, closeStore, err := openStore(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	if err := ledger.NewInvariantValidator(store).ValidateAll(); err != nil {
		logger.Fatal().Err(err).Msg("ledger invariants violated at startup")
	}

	// --- Recovery ---
	// Durable stores carry their own chain tip; the event log is a
	// cross-check, and the only source for the memory backend.
	engineOpts := []core.EngineOption{core.WithMetrics(metrics), core.WithLogger(logger)}
	tip, haveTip, err := ledger.ReadChainTip(store)
	if err != nil {
		logger.Fatal().Err(err).Msg("read chain tip")
	}
	if haveTip {
		engineOpts = append(engineOpts, core.ResumeFrom(tip))
		logger.Info().Uint64("sequence", tip.Sequence).Msg("resuming hash chain from store")
	}

	var (
		dbChecker core.DBIdempotencyChecker
		warmKeys  []string
	)
	if cfg.EventLog {
		writer := persistence.NewEventLogWriter(db)
		cp, ok, err := writer.LastCheckpoint(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("read event log checkpoint")
		}
		switch {
		case ok && !haveTip:
			engineOpts = append(engineOpts, core.WithStartState(cp.Sequence, cp.StateHash))
			logger.Info().Uint64("sequence", cp.Sequence).Msg("resuming hash chain from event log")
			if cfg.Backend == config.BackendMemory {
				logger.Warn().Msg("memory backend starts empty; sequence numbering continues from the event log")
			}
		case ok && cp.Sequence > tip.Sequence:
			logger.Warn().
				Uint64("store_sequence", tip.Sequence).
				Uint64("log_sequence", cp.Sequence).
				Msg("event log is ahead of the store")
		case ok && cp.Sequence < tip.Sequence:
			logger.Info().
				Uint64("store_sequence", tip.Sequence).
				Uint64("log_sequence", cp.Sequence).
				Msg("event log lags the store by an unflushed batch")
		case !ok:
			logger.Info().Msg("event log empty")
		}

		warmKeys, err = writer.RecentIdempotencyKeys(ctx, cfg.IdempotencyLRUCapacity)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load idempotency keys, LRU starts cold")
		}
		dbChecker = persistence.NewPostgresIdempotencyChecker(db)
	}

	// --- Sinks ---
	// The event log channel blocks (no history is lost); the publish
	// channel drops when full.
	sinks := []event.Sink{event.NewLogSink(logger)}
	var persistChan, publishChan chan *event.Envelope
	if cfg.EventLog {
		persistChan = make(chan *event.Envelope, cfg.PersistChanSize)
		sinks = append(sinks, event.NewChannelSink(persistChan, true, nil))
	}
	if cfg.NATSEnabled {
		publishChan = make(chan *event.Envelope, cfg.PublishChanSize)
		sinks = append(sinks, event.NewChannelSink(publishChan, false, ingestion.DropCounter(metrics, logger)))
	}

	// --- Core ---
	engine := core.NewEngine(store, event.Fanout(sinks...), engineOpts...)

	minters, _ := cfg.MinterAddresses() // validated by config.Load
	token := core.NewToken(core.Params{Name: cfg.Name, Symbol: cfg.Symbol}, engine, server.CallerFromContext, logger)

	idempotency := core.NewIdempotencyChecker(cfg.IdempotencyLRUCapacity, dbChecker, metrics, logger)
	if len(warmKeys) > 0 {
		logger.Info().Int("keys", len(warmKeys)).Msg("warming idempotency LRU")
		idempotency.Warm(warmKeys)
	}
	dispatcher := core.NewDispatcher(token.Transfers(), token.Supply(), idempotency, core.NewMinterSet(minters...))

	// --- Start goroutines ---
	errChan := make(chan error, 10)
	var ingress, workers sync.WaitGroup

	// 1. Persistence worker
	if persistChan != nil {
		worker := persistence.NewPersistenceWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("persistence worker: %w", err)
			}
		}()
	}

	// 2. NATS: command subscriber, command loop, outbound publisher
	var subscriber *ingestion.NATSSubscriber
	if cfg.NATSEnabled {
		nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()

		if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
			logger.Fatal().Err(err).Msg("ensure NATS streams")
		}

		rawChan := make(chan ingestion.RawCommand, cfg.CommandChanSize)
		subscriber = ingestion.NewNATSSubscriber(js, rawChan, logger)
		if err := subscriber.Subscribe(ctx); err != nil {
			logger.Fatal().Err(err).Msg("nats subscribe")
		}

		loop := ingestion.NewCommandLoop(rawChan, dispatcher, metrics, logger)
		ingress.Add(1)
		go func() {
			defer ingress.Done()
			_ = loop.Run(ctx)
		}()

		publisher := ingestion.NewOutboundPublisher(js, publishChan, metrics, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			_ = publisher.Run(workerCtx)
		}()
	}

	// 3. gRPC server and HTTP/JSON gateway
	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Token:         token,
		Dispatcher:    dispatcher,
		Engine:        engine,
		Validator:     ledger.NewInvariantValidator(store),
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        logger,
	})
	ingress.Add(2)
	go func() {
		defer ingress.Done()
		if err := grpcServer.StartGRPC(ctx); err != nil {
			errChan <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		defer ingress.Done()
		if err := grpcServer.StartHTTPGateway(ctx); err != nil {
			errChan <- fmt.Errorf("http gateway: %w", err)
		}
	}()

	// 4. Prometheus metrics server
	go serveMetrics(ctx, cfg.MetricsAddr, logger, errChan)

	// 5. Channel utilization
	go reportChannels(ctx, metrics, map[string]chan *event.Envelope{
		"persist": persistChan,
		"publish": publishChan,
	})

	// Mark service as ready after all goroutines started
	healthChecker.SetReady(true)
	logger.Info().
		Uint64("sequence", engine.Sequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("TokenLedger ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	// Stop ingress, wait for in-flight operations, then drain the sinks.
	healthChecker.SetReady(false)
	if subscriber != nil {
		subscriber.Stop()
	}
	cancel()
	if waitTimeout(&ingress, 30*time.Second, logger, "ingress") {
		// Nothing can emit any more; closing lets the workers drain and exit.
		if persistChan != nil {
			close(persistChan)
		}
		if publishChan != nil {
			close(publishChan)
		}
		waitTimeout(&workers, 30*time.Second, logger, "workers")
	}
	workerCancel()

	logger.Info().Uint64("sequence", engine.Sequence()).Msg("TokenLedger shutdown complete")
}

func openPostgres(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info().Msg("Postgres connected")

	if cfg.AutoMigrate {
		if err := persistence.NewMigrator(db, cfg.MigrationsDir, logger).Up(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}
	return db, nil
}

func openStore(ctx context.Context, cfg config.Config, db *sql.DB, logger zerolog.Logger) (ledger.ScanStore, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendBolt:
		s, err := persistence.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, noop, err
		}
		logger.Info().Str("path", cfg.BoltPath).Msg("bolt store opened")
		return s, func() { _ = s.Close() }, nil

	case config.BackendPostgres:
		return persistence.NewPostgresStore(db), noop, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis connected")
		return persistence.NewRedisStore(client, cfg.RedisNamespace), func() { _ = client.Close() }, nil

	default:
		return persistence.NewMemoryStore(), noop, nil
	}
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger, errChan chan<- error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errChan <- fmt.Errorf("metrics server: %w", err)
	}
}

func reportChannels(ctx context.Context, metrics *observability.Metrics, chans map[string]chan *event.Envelope) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, ch := range chans {
				if ch != nil {
					metrics.SetChannelMetrics(name, len(ch), cap(ch))
				}
			}
		}
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration, logger zerolog.Logger, what string) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		logger.Warn().Str("group", what).Dur("timeout", d).Msg("shutdown wait timed out")
		return false
	}
}
