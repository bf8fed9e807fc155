package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"example.com/fitrewards/internal/api"
	"example.com/fitrewards/internal/auth"
	"example.com/fitrewards/internal/chain"
	"example.com/fitrewards/internal/config"
	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/ingest"
	"example.com/fitrewards/internal/ledger"
	"example.com/fitrewards/internal/outbox"
	"example.com/fitrewards/internal/persistence/postgres"
	"example.com/fitrewards/internal/provider"
	"example.com/fitrewards/internal/rewards"
	httptransport "example.com/fitrewards/internal/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "reward-engine")
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		fatal("failed to connect to postgres", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	scorer := rewards.Scorer{
		BaseRatePerMinute: cfg.Rewards.BaseRatePerMinute,
		DefaultGenuine:    cfg.Rewards.DefaultGenuineScore,
	}

	claimOpts := []domain.Option{domain.WithLogger(logger)}
	if cfg.Chain.Enabled() {
		nonces, ethClient, err := chain.DialNonceReader(ctx, cfg.Chain.RPCURL, common.HexToAddress(cfg.Chain.ContractAddress))
		if err != nil {
			fatal("failed to dial chain rpc", err)
		}
		defer ethClient.Close()

		signer, err := chain.NewSigner(cfg.Chain.SignerKey, chain.Domain{
			Name:              cfg.Chain.DomainName,
			Version:           cfg.Chain.DomainVersion,
			ChainID:           cfg.Chain.ChainID,
			VerifyingContract: common.HexToAddress(cfg.Chain.ContractAddress),
		}, nonces, cfg.Chain.SignatureTTL, cfg.Chain.TokenDecimals)
		if err != nil {
			fatal("failed to load claim signer", err)
		}
		logger.Info("claim signing enabled", "signer", signer.Address().Hex(), "chain_id", cfg.Chain.ChainID)
		claimOpts = append(claimOpts, domain.WithAuthorizer(signer))
	}

	claims := domain.NewClaimService(store, domain.Config{
		DailyCap:           cfg.Rewards.DailyCap,
		MinActivitySeconds: cfg.Rewards.MinActivitySeconds,
		Scorer:             scorer,
		RequestTimeout:     cfg.RequestTimeout,
	}, claimOpts...)
	activities := domain.NewActivityService(store, store, scorer, logger)

	var (
		syncs       ingest.Scheduler
		riverClient *river.Client[pgx.Tx]
	)
	if cfg.Strava.ClientID != "" {
		strava := provider.NewStravaClient(cfg.Strava.APIURL, cfg.Strava.TokenURL, cfg.Strava.ClientID, cfg.Strava.ClientSecret)
		tokens := provider.NewTokenSource(store, strava, provider.Strava)
		syncer := ingest.NewSyncer(tokens, strava, activities, cfg.Strava.PageSize, logger)

		if cfg.Strava.SyncInline {
			syncs = ingest.NewInlineScheduler(syncer)
		} else {
			riverClient, err = newRiverClient(ctx, pool, syncer, logger)
			if err != nil {
				fatal("failed to start job queue", err)
			}
			syncs = ingest.NewRiverScheduler(riverClient)
		}
	}

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)

	go dispatcher.Start(ctx)

	handler := api.NewHandler(api.Deps{
		Claims:     claims,
		Activities: activities,
		Wallets:    ledger.NewService(store),
		Users:      store,
		Syncs:      syncs,
		Logger:     logger,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:        cfg.HTTPAddress,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, requestLogger(logger, authMiddleware.Wrap(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("reward engine listening", "addr", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if riverClient != nil {
		if err := riverClient.Stop(shutdownCtx); err != nil {
			logger.Error("job queue shutdown failed", "error", err)
		}
	}

	dispatcher.Wait()
}

// newRiverClient migrates the job tables and starts workers for provider syncs.
func newRiverClient(ctx context.Context, pool *pgxpool.Pool, syncer *ingest.Syncer, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return nil, err
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, err
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, ingest.NewSyncWorker(syncer))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 4},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
