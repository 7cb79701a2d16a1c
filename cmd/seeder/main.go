package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pointify/ledger/internal/config"
	"github.com/pointify/ledger/internal/logger"
	"github.com/pointify/ledger/internal/rates"
	"github.com/pointify/ledger/internal/service"
	"github.com/pointify/ledger/internal/store"
	"go.uber.org/zap"
)

// Seeded account N has email user<N>@bench.pointify.dev; the benchmark
// relies on that.
const (
	emailTemplate  = "user%d@bench.pointify.dev"
	seedRefPattern = "seed-%d"
)

var (
	totalAccounts int
	initialPoints int64
)

func init() {
	flag.IntVar(&totalAccounts, "accounts", 1000, "Number of accounts to seed")
	flag.Int64Var(&initialPoints, "points", 10000, "Points credited to each account")
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatalf("seeder needs STORE_DRIVER=%s", config.DriverPostgres)
	}
	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	ctx := context.Background()
	pg, err := store.NewPostgres(ctx, cfg.DBSource)
	if err != nil {
		lg.Fatal("Unable to connect to database", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		lg.Fatal("Migration failed", zap.Error(err))
	}

	lg.Info("--- Seeding Database ---")

	// 1. Check existing
	var count int
	if err := pg.Db.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		lg.Fatal("Count failed", zap.Error(err))
	}
	if count >= totalAccounts {
		lg.Info("Database already seeded, skipping", zap.Int("accounts", count))
		return
	}

	// 2. Bulk insert empty accounts using CopyFrom
	rows := make([][]any, 0, totalAccounts-count)
	now := time.Now()
	for i := count + 1; i <= totalAccounts; i++ {
		rows = append(rows, []any{fmt.Sprintf(emailTemplate, i), fmt.Sprintf("Bench User %d", i), now})
	}
	copied, err := pg.Db.CopyFrom(ctx,
		pgx.Identifier{"accounts"},
		[]string{"email", "name", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		lg.Fatal("Bulk insert failed", zap.Error(err))
	}
	lg.Info("Accounts created", zap.Int64("count", copied))

	// 3. Fund every account through the ledger so each balance has a
	// matching DEPOSIT row. Reruns are no-ops thanks to the seed reference.
	ledger := service.NewLedgerService(pg, rates.NewStatic(cfg.Rates), cfg.Fees, lg,
		service.WithRetry(cfg.MaxRetries, cfg.RetryBackoff))
	grossBRL := cfg.Rates.BRLCostOfPoints(initialPoints)

	ids, err := accountIDs(ctx, pg)
	if err != nil {
		lg.Fatal("Listing accounts failed", zap.Error(err))
	}
	var funded int
	for _, id := range ids {
		res, err := ledger.SettleDeposit(ctx, id, grossBRL, fmt.Sprintf(seedRefPattern, id))
		if err != nil {
			lg.Fatal("Funding failed", zap.Int64("account_id", id), zap.Error(err))
		}
		if res.Duplicate {
			continue
		}
		if res.Points != initialPoints {
			lg.Warn("Funding credited a different amount",
				zap.Int64("account_id", id), zap.Int64("points", res.Points), zap.Int64("want", initialPoints))
		}
		funded++
	}
	lg.Info("Seeding complete", zap.Int("funded", funded), zap.Int64("points_each", initialPoints))
}

func accountIDs(ctx context.Context, pg *store.Postgres) ([]int64, error) {
	rows, err := pg.Db.Query(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
