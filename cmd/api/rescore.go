package main

import (
	"context"
	"encoding/json"
	"errors"

	"talentgate-backend/internal/pkg/validation"

	"github.com/spf13/cobra"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore <interview-id>",
	Short: "Retry scoring for a completed interview whose scoring was deferred",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := validation.ParseID(args[0])
		if !ok {
			return errors.New("interview id must be a uuid")
		}
		c, err := loadContainer(context.Background())
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.Answers.Rescore(cmd.Context(), id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}
