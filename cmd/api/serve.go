package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"talentgate-backend/internal/interfaces/router"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false,
		"also consume transcription tasks in this process (always on for QUEUE_BACKEND=memory)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := loadContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.DB.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return err
	}
	log.Info().Msg("database connected")
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
		log.Info().Msg("redis connected")
	}

	if serveWithWorker || c.Config.QueueBackend == "memory" {
		go func() {
			if err := c.Queue.Consume(ctx, c.TranscriptionHandler()); err != nil {
				log.Error().Err(err).Msg("in-process worker stopped")
			}
		}()
		log.Info().Msg("in-process transcription worker started")
	}

	application := router.CreateApp(c)
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", c.Config.Port).Msg("server listening")
		errc <- application.Listen(":" + c.Config.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return application.ShutdownWithContext(shutdownCtx)
}
