package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tablemirror/tablemirror/internal/checkpoint"
	"github.com/tablemirror/tablemirror/internal/config"
	"github.com/tablemirror/tablemirror/internal/dest"
	"github.com/tablemirror/tablemirror/internal/orchestrator"
	"github.com/tablemirror/tablemirror/internal/pipeline"
	"github.com/tablemirror/tablemirror/internal/source"
	"github.com/tablemirror/tablemirror/internal/telemetry"
	"github.com/tablemirror/tablemirror/internal/versions"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one mirroring pass over the configured tables",
	Long: `Run one mirroring pass: inspect every source table, reconcile destination
schemas, and copy rows using the strategy selected per table. Interrupted runs
resume from the last durable checkpoint on the next invocation.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := syncCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := tel.Shutdown(shutdownCtx); shutdownErr != nil {
			slog.Error("Error shutting down telemetry", "error", shutdownErr)
		}
	}()

	dsn, err := cfg.Source.GetDSN()
	if err != nil {
		return err
	}
	src, err := source.Open(ctx, cfg.Source.Driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to source: %w", err)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			slog.Error("Error closing source connection", "error", closeErr)
		}
	}()

	connString, err := cfg.Destination.GetConnectionString()
	if err != nil {
		return err
	}
	dst, err := dest.Open(ctx, connString)
	if err != nil {
		return fmt.Errorf("failed to connect to destination: %w", err)
	}
	defer dst.Close()

	store, err := openCheckpointStore(cfg, dst)
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewMirrorMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	batchTimeout, err := cfg.Sync.GetBatchTimeout()
	if err != nil {
		return err
	}

	orch := orchestrator.New(src, dst, orchestrator.Options{
		SourceSchema:        cfg.Source.Schema,
		DestSchema:          cfg.Destination.GetSchema(),
		BatchSize:           cfg.Sync.BatchSize,
		Workers:             cfg.Sync.Workers,
		FullReloadThreshold: cfg.Sync.FullReloadThreshold,
		ExcludeTables:       cfg.Sync.ExcludeTables,
		SkipFailed:          cfg.Sync.SkipFailed,
		TypeOverrides:       cfg.TypeOverrides,
		Tables:              tableSettings(cfg),
		Pipeline: pipeline.Options{
			BatchTimeout: batchTimeout,
			MaxRetries:   cfg.Sync.MaxRetries,
			Depth:        cfg.Sync.PipelineDepth,
		},
	})

	rc := orchestrator.NewRunContext(store, metrics)
	slog.Info("Starting mirroring run", "run_id", rc.ID, "schema", cfg.Source.Schema)

	summary, runErr := orch.Run(ctx, rc)
	printSummary(summary)
	if runErr != nil {
		return runErr
	}
	if !summary.Success() {
		return fmt.Errorf("%d table(s) failed", len(summary.Failed))
	}
	return nil
}

// telemetryConfig fills in the service version when the config leaves it
// unset. A nil section keeps telemetry disabled.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := cfg.Telemetry
	if tc == nil {
		return nil
	}
	if tc.ServiceVersion == "" {
		tc.ServiceVersion = versions.GetVersionInfo().Version
	}
	return tc
}

// openCheckpointStore builds the configured checkpoint backend. The postgres
// backend shares the destination connection pool.
func openCheckpointStore(cfg *config.Config, dst dest.Connector) (checkpoint.Store, error) {
	switch cfg.Checkpoint.GetStore() {
	case config.CheckpointStorePostgres:
		pooled, ok := dst.(interface{ Pool() *pgxpool.Pool })
		if !ok {
			return nil, fmt.Errorf("postgres checkpoint store requires a pgx destination")
		}
		return checkpoint.NewDBStore(pooled.Pool())
	default:
		return checkpoint.NewFileStore(cfg.Checkpoint.GetPath())
	}
}

func tableSettings(cfg *config.Config) map[string]orchestrator.TableConfig {
	out := make(map[string]orchestrator.TableConfig, len(cfg.Tables))
	for name, t := range cfg.TableSettings() {
		out[name] = orchestrator.TableConfig{
			LastModified:  t.TimestampColumn,
			TypeOverrides: t.TypeOverrides,
		}
	}
	return out
}

func printSummary(s *orchestrator.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("TABLE", "OUTCOME", "STRATEGY", "ROWS", "DURATION", "DETAIL")

	for _, r := range s.Succeeded {
		appendResult(table, r, "succeeded", "")
	}
	for _, r := range s.Failed {
		detail := ""
		if r.Err != nil {
			detail = r.Err.Error()
		}
		appendResult(table, r, "failed", detail)
	}
	for _, r := range s.Skipped {
		appendResult(table, r, "skipped", r.Reason)
	}

	if err := table.Render(); err != nil {
		slog.Error("Error rendering run summary", "error", err)
	}
}

func appendResult(table *tablewriter.Table, r orchestrator.TableResult, outcome, detail string) {
	if err := table.Append([]string{
		r.Table,
		outcome,
		string(r.Strategy),
		fmt.Sprintf("%d", r.Rows),
		r.Elapsed.Round(time.Millisecond).String(),
		detail,
	}); err != nil {
		slog.Error("Error appending summary row", "error", err)
	}
}
