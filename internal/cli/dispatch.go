package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/internal/service"
)

// DispatchCmd delivers pending outbox events synchronously.
func DispatchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver pending interview notifications and audit records",
		Long: `Reads undispatched outbox events oldest first and delivers each one.
Failures are recorded on the event and left for the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			dispatcher := service.NewEventDispatcher(repository.NewEventRepository(rt.db), nil, rt.logger)
			report, err := dispatcher.DispatchPending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d  %s %d\n",
				color.New(color.FgGreen).Sprint("delivered"), report.Delivered,
				color.New(color.FgRed).Sprint("failed"), report.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to deliver")
	return cmd
}
