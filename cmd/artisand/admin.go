package main

import (
	"context"
	"fmt"

	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/internal/config"
	"github.com/goliatone/go-artisan/internal/logging"
	"github.com/goliatone/go-artisan/server"
	"github.com/spf13/cobra"
)

var hashCost int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the artisans table and load the demo records when seeding is enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Driver != config.StoreSQLite {
			return fmt.Errorf("migrate requires the %s driver, got %q", config.StoreSQLite, cfg.Store.Driver)
		}
		db, err := openDB(cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := artisan.NewArtisanRepository(db, artisan.WithRepositoryLogger(logging.NewPrintf(logger)))
		return migrate(context.Background(), repo, cfg.Store.Seed)
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for an admin password_hash entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := server.HashPasswordCost(args[0], hashCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", server.DefaultPasswordCost, "bcrypt cost")
}
