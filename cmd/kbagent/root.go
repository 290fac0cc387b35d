package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kbagent/config"
	"github.com/hupe1980/kbagent/internal/bootstrap"
)

// cli carries the process wiring shared by all commands.
type cli struct {
	out       io.Writer
	errOut    io.Writer
	bootstrap []func(o *bootstrap.Options)
}

func newCLI() *cli {
	return &cli{out: os.Stdout, errOut: os.Stderr}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "kbagent",
		Short:         "kbagent is a knowledge base chat agent",
		Long:          `kbagent answers questions with a language model that stores and retrieves facts in a vector knowledge base through tool calls.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(c.out)
	root.SetErr(c.errOut)

	// Persistent flags (available to all commands)
	root.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before the environment")
	root.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(c), newChatCmd(c), newIngestCmd(c))

	return root
}

// loadApp loads the configuration, applies flag overrides and wires the app.
func (c *cli) loadApp(cmd *cobra.Command, overrides map[string]any) (*bootstrap.App, error) {
	envFile, _ := cmd.Flags().GetString("env-file")

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if overrides == nil {
			overrides = map[string]any{}
		}

		overrides["log.level"] = level
	}

	cfg, err := config.Load(cmd.Context(), func(o *config.LoadOptions) {
		o.EnvFile = envFile
		o.Overrides = overrides
	})
	if err != nil {
		return nil, err
	}

	opts := append([]func(o *bootstrap.Options){
		func(o *bootstrap.Options) { o.LogOutput = c.errOut },
	}, c.bootstrap...)

	return bootstrap.New(contextOf(cmd), cfg, opts...)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
