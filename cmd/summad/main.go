// summad runs the ledger's background workers (hold expiry, hot-account
// flushing, idempotency cleanup, chain verification) as a standalone
// process and exposes health and metrics endpoints. Applications that
// embed the ledger in a long-lived service do not need it.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	summa "github.com/ShivamGupta-SM/summa-sub004"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/logging"
)

func main() {
	root := &cobra.Command{
		Use:           "summad",
		Short:         "Summa ledger background worker daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().String("database-url", envOr("SUMMA_DATABASE_URL", ""), "primary PostgreSQL URL")
	root.Flags().String("replica-url", envOr("SUMMA_REPLICA_URL", ""), "read replica PostgreSQL URL")
	root.Flags().String("schema", envOr("SUMMA_SCHEMA", ""), "PostgreSQL schema")
	root.Flags().String("redis-url", envOr("SUMMA_REDIS_URL", ""), "Redis URL for the event bus")
	root.Flags().String("hmac-secret", envOr("SUMMA_HMAC_SECRET", ""), "secret keying the event hash chain")
	root.Flags().String("lock-mode", envOr("SUMMA_LOCK_MODE", "wait"), "row lock mode: wait or nowait")
	root.Flags().String("log-level", envOr("SUMMA_LOG_LEVEL", "info"), "log level")
	root.Flags().String("http-addr", envOr("SUMMA_HTTP_ADDR", ":9410"), "health and metrics listen address")

	if err := root.Execute(); err != nil {
		log.Fatalf("summad: %v", err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flags := cmd.Flags()
	databaseURL, _ := flags.GetString("database-url")
	if databaseURL == "" {
		return errors.New("--database-url (or SUMMA_DATABASE_URL) is required")
	}
	logLevel, _ := flags.GetString("log-level")
	logger, err := logging.New(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var replica *pgxpool.Pool
	if replicaURL, _ := flags.GetString("replica-url"); replicaURL != "" {
		replica, err = pgxpool.New(ctx, replicaURL)
		if err != nil {
			return err
		}
		defer replica.Close()
	}

	var rdb redis.UniversalClient
	if redisURL, _ := flags.GetString("redis-url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		rdb = client
	}

	schema, _ := flags.GetString("schema")
	secret, _ := flags.GetString("hmac-secret")
	lockMode, _ := flags.GetString("lock-mode")
	client, err := summa.New(summa.Config{
		Pool:        pool,
		ReplicaPool: replica,
		Schema:      schema,
		Redis:       rdb,
		HMACSecret:  secret,
		LockMode:    lockMode,
		Logger:      logger,
		Metrics:     prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	logger.Info("summad started")

	httpAddr, _ := flags.GetString("http-addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := client.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: httpAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return client.Stop(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
