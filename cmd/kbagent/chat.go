package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kbagent/agent"
	"github.com/hupe1980/kbagent/core"
	"github.com/hupe1980/kbagent/stream"
)

func newChatCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message to the agent and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.loadApp(cmd, nil)
			if err != nil {
				return err
			}

			ctx := contextOf(cmd)
			defer app.Close(context.WithoutCancel(ctx)) //nolint:errcheck

			verbose, _ := cmd.Flags().GetBool("verbose")
			conv := []core.Content{core.NewTextContent(core.RoleUser, strings.Join(args, " "))}

			res, err := app.Agent.Chat(ctx, conv, cmd.OutOrStdout(), stream.TextEncoder{Verbose: verbose})
			if err != nil {
				return err
			}

			// A budget abort already carries the truncation notice in the output.
			if res.State != agent.StateDone && !errors.Is(res.Err, core.ErrBudgetExceeded) {
				return fmt.Errorf("chat: %w", res.Err)
			}

			return nil
		},
	}

	cmd.Flags().BoolP("verbose", "v", false, "Show tool calls and results")

	return cmd
}
