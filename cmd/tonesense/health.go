package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis service is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), c.Config().RequestTimeout)
			defer cancel()

			health, err := c.Client().Health(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.Config().ServiceURL, health.Status)
			return nil
		},
	}
}
