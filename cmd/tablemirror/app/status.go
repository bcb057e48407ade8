package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tablemirror/tablemirror/internal/checkpoint"
	"github.com/tablemirror/tablemirror/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-table mirroring progress",
	Long: `Show the checkpoint state of every table seen by a mirroring run: strategy,
status, rows transferred, and completion percentage.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := statusCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, cleanup, err := openStatusStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	checkpoints, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(checkpoints) == 0 {
		slog.Info("No checkpoints recorded yet")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("TABLE", "STRATEGY", "STATUS", "ROWS", "PROGRESS", "UPDATED", "MESSAGE")
	for _, cp := range checkpoints {
		if err := table.Append([]string{
			cp.Table,
			cp.Strategy,
			string(cp.Status),
			fmt.Sprintf("%d/%d", cp.RowsTransferred, cp.TotalRows),
			fmt.Sprintf("%.1f%%", cp.Percent()),
			cp.UpdatedAt.Local().Format(time.DateTime),
			cp.Message,
		}); err != nil {
			slog.Error("Error appending status row", "error", err)
		}
	}
	return table.Render()
}

// openStatusStore opens the configured checkpoint backend read-only-ish: the
// postgres backend gets its own small pool, closed by the cleanup func.
func openStatusStore(ctx context.Context, cfg *config.Config) (checkpoint.Store, func(), error) {
	if cfg.Checkpoint.GetStore() == config.CheckpointStorePostgres {
		connString, err := cfg.Destination.GetConnectionString()
		if err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to destination: %w", err)
		}
		store, err := checkpoint.NewDBStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}

	store, err := checkpoint.NewFileStore(cfg.Checkpoint.GetPath())
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}
