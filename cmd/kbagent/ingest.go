package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newIngestCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <text>",
		Short: "Add text to the knowledge base without going through the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.loadApp(cmd, nil)
			if err != nil {
				return err
			}

			ctx := contextOf(cmd)
			defer app.Close(context.WithoutCancel(ctx)) //nolint:errcheck

			res, err := app.Knowledge.Ingest(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "resource %s stored (%d chunks)\n", res.ID, res.Chunks)

			return nil
		},
	}
}
