package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coursehub/portal-access/internal/app"
	"github.com/coursehub/portal-access/internal/tools/common"
	"github.com/coursehub/portal-access/internal/tools/obscheck"
	"github.com/coursehub/portal-access/internal/tools/seed"
)

func main() {
	root := &cobra.Command{
		Use:           "portal",
		Short:         "Course portal access service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), seed.NewCommand(), obscheck.NewRootCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := common.LoadEnvFile(envFile); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "environment file loaded before config")
	return cmd
}
