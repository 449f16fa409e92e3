package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued voice transcriptions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := loadContainer(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		if c.Config.QueueBackend == "memory" {
			return errors.New("the memory queue is process-local; use `serve` instead")
		}
		if c.Voice.STT == nil {
			return errors.New("no speech-to-text provider configured")
		}

		log.Info().Str("queue", c.Config.QueueName).Int("workers", c.Config.WorkerCount).Msg("worker started")
		err = c.Queue.Consume(ctx, c.TranscriptionHandler())
		log.Info().Msg("worker stopped")
		return err
	},
}
