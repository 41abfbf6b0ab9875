package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/edu-portal-api/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portalctl",
		Short: "Operator tooling for the interview workflow",
		Long: `portalctl applies schema migrations, flushes the notification outbox and
prints the reviewer queue. It reads the same environment as the API server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.DispatchCmd())
	rootCmd.AddCommand(cli.QueueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
