package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/internal/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// openStore builds the artisan store selected by cfg. The returned closer
// releases the database, if any.
func openStore(ctx context.Context, cfg config.StoreConfig, log artisan.Logger, sink artisan.ActivitySink) (artisan.Store, func() error, error) {
	oracle := artisan.WithOracleTimeout(artisan.DemoOracle(), cfg.VerifyTimeout, log)
	smOpts := []artisan.StateMachineOption{artisan.WithStateMachineActivitySink(sink)}
	actor := artisan.ActorRef{ID: "artisand", Type: "system"}

	switch cfg.Driver {
	case config.StoreMemory:
		opts := []artisan.MemoryStoreOption{
			artisan.WithMemoryOracle(oracle),
			artisan.WithMemoryLatency(cfg.Latency),
			artisan.WithMemoryLogger(log),
			artisan.WithMemoryActor(actor),
			artisan.WithMemoryStateMachineOptions(smOpts...),
		}
		if cfg.Seed {
			opts = append(opts, artisan.WithMemoryRecords(artisan.DemoArtisans()...))
		}
		return artisan.NewMemoryStore(opts...), func() error { return nil }, nil

	case config.StoreSQLite:
		db, err := openDB(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := artisan.NewArtisanRepository(db,
			artisan.WithRepositoryOracle(oracle),
			artisan.WithRepositoryLogger(log),
			artisan.WithRepositoryActor(actor),
			artisan.WithRepositoryStateMachineOptions(smOpts...),
		)
		if err := migrate(ctx, repo, cfg.Seed); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func openDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	// SQLite serializes writers.
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func migrate(ctx context.Context, repo *artisan.ArtisanRepository, seed bool) error {
	if err := repo.CreateSchema(ctx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if !seed {
		return nil
	}
	if err := repo.Seed(ctx, artisan.DemoArtisans()...); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}
