// Package cli implements trackerctl, the operator command line for the tracker.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Varn22/pixel-time-tracker/db/postgres/migrations"
	"github.com/Varn22/pixel-time-tracker/internal/config"
	"github.com/Varn22/pixel-time-tracker/internal/domain"
	"github.com/Varn22/pixel-time-tracker/internal/persistence/memory"
	"github.com/Varn22/pixel-time-tracker/internal/persistence/postgres"
)

// Version is reported by --version.
const Version = "0.1.0"

var errNoDatabase = errors.New("this command needs STORE=postgres")

// Backend is what a command operates on. DB is nil for the in-memory store.
type Backend struct {
	Service *domain.Service
	DB      migrations.Execer
	Close   func()
}

// Opener builds a Backend from configuration.
type Opener func(ctx context.Context, cfg config.Config) (*Backend, error)

// OpenBackend connects to the configured store.
func OpenBackend(ctx context.Context, cfg config.Config) (*Backend, error) {
	rules := domain.Rules{XPPerLevel: cfg.XPPerLevel}
	catalog := domain.DefaultCatalog(cfg.Achievements)

	if cfg.Store == config.StoreMemory {
		store := memory.NewStore()
		engine := domain.NewEngine(store, rules, catalog)
		return &Backend{Service: domain.NewService(store, engine), Close: func() {}}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	repo := postgres.NewRepository(pool)
	engine := domain.NewEngine(repo, rules, catalog)
	return &Backend{Service: domain.NewService(repo, engine), DB: pool, Close: pool.Close}, nil
}

type app struct {
	open Opener
	cfg  config.Config
}

func (a *app) backend(cmd *cobra.Command) (*Backend, error) {
	return a.open(cmd.Context(), a.cfg)
}

// NewRootCmd assembles trackerctl. open is called lazily by commands that need storage.
func NewRootCmd(open Opener) *cobra.Command {
	a := &app{open: open}
	root := &cobra.Command{
		Use:           "trackerctl",
		Short:         "Operate the pixel time tracker",
		Long:          "trackerctl migrates the database, inspects user progress and issues API tokens.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	root.AddCommand(
		newMigrateCmd(a),
		newResetCmd(a),
		newStatsCmd(a),
		newAchievementsCmd(a),
		newCompleteCmd(a),
		newTokenCmd(a),
	)
	return root
}
