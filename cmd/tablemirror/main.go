// Package main is the entry point for the tablemirror binary.
package main

import (
	"log/slog"
	"os"
	"strings"

	_ "github.com/godror/godror"        // Oracle source driver
	_ "github.com/jackc/pgx/v5/stdlib"  // PostgreSQL source driver
	"github.com/spf13/viper"

	"github.com/tablemirror/tablemirror/cmd/tablemirror/app"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "TABLEMIRROR"

// getLogLevel parses the TABLEMIRROR_LOG_LEVEL environment variable and
// returns the corresponding slog.Level. Defaults to slog.LevelInfo if unset
// or invalid.
func getLogLevel() slog.Level {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")

	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", levelStr)
		return slog.LevelInfo
	}
}

func main() {
	// Structured JSON logging on stderr, keeping stdout clean for commands
	// that output data (status tables, version --format json).
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: getLogLevel()})
	slog.SetDefault(slog.New(handler))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
