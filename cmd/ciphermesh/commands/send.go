package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/events"
)

// send <user> <message>: encrypt and send a message to every device of <user>.
func sendCmd() *cobra.Command {
	var (
		kind    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <user> <message>",
		Short: "Encrypt and send a message to all of a user's devices",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := appCtx.Start(ctx); err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() { _ = appCtx.Transport.Run(runCtx) }()

			res, err := appCtx.SendToUser(ctx, domain.UserID(args[0]), kind, args[1])
			if err != nil {
				return err
			}
			flushCtx, done := context.WithTimeout(ctx, timeout)
			defer done()
			if err := appCtx.Transport.Flush(flushCtx); err != nil {
				return fmt.Errorf("item %s not fully written: %w", res.ItemID, err)
			}

			fmt.Printf("sent %s to %d device(s)\n", res.ItemID, len(res.Delivered))
			for _, f := range res.Failed {
				fmt.Printf("  failed %s: %v\n", f.Address, f.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", events.KindMessage, "application message type")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for the transport")
	return cmd
}
