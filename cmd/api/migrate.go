package main

import (
	"context"

	"talentgate-backend/internal/infrastructure/database"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadContainer(context.Background())
		if err != nil {
			return err
		}
		defer c.Close()
		if err := database.AutoMigrate(c.DB); err != nil {
			return err
		}
		log.Info().Int("tables", len(database.Models())).Msg("migration complete")
		return nil
	},
}
