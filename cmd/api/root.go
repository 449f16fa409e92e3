package main

import (
	"context"
	"os"
	"strings"
	"time"

	"talentgate-backend/internal/app"
	"talentgate-backend/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const appName = "talentgate"

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "talentgate runs the candidate assessment API and its transcription workers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, issueInviteCmd, rescoreCmd)
}

// setupLogger configures the global zerolog logger from LOG_LEVEL and LOG_PRETTY.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// loadContainer reads configuration, sets up logging and builds the services.
func loadContainer(ctx context.Context) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg)
	return app.New(ctx, cfg)
}
