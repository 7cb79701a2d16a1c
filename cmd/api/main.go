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

	"github.com/pointify/ledger/internal/api"
	"github.com/pointify/ledger/internal/config"
	"github.com/pointify/ledger/internal/identity"
	"github.com/pointify/ledger/internal/logger"
	"github.com/pointify/ledger/internal/rates"
	"github.com/pointify/ledger/internal/service"
	"github.com/pointify/ledger/internal/store"
	"github.com/pointify/ledger/internal/store/memstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Unable to build logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Layers
	ledgerStore, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("Unable to open store", zap.Error(err))
	}
	defer closeStore()

	rateSource, closeRates := openRates(cfg, lg)
	defer closeRates()

	ledger := service.NewLedgerService(ledgerStore, rateSource, cfg.Fees, lg,
		service.WithRetry(cfg.MaxRetries, cfg.RetryBackoff))
	auth := identity.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer)
	handler := api.NewHandler(ledger, auth, cfg.WebhookSecret, lg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lg.Info("Server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		lg.Warn("Using in-memory store; balances are lost on exit")
		return memstore.New(), func() {}, nil
	}

	pg, err := store.NewPostgres(ctx, cfg.DBSource)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

// openRates serves rates from Redis when configured, falling back to the
// configured static rates.
func openRates(cfg *config.Config, lg *zap.Logger) (rates.Source, func()) {
	static := rates.NewStatic(cfg.Rates)
	if cfg.RedisAddr == "" {
		return static, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return rates.NewRedisSource(client, rates.DefaultKey, static, lg), func() { client.Close() }
}
