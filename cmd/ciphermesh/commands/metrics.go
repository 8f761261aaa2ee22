package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// metrics: run the key lifecycle checks once and print the counters.
func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Run key checks and print the metrics report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.Start(cmd.Context()); err != nil {
				return err
			}
			out, err := appCtx.GetMetricsReport().JSON()
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
