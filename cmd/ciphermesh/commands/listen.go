package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/events"
)

// listen: stay connected and print decrypted items as they arrive.
func listenCmd() *cobra.Command {
	var (
		receipts   bool
		probeEvery time.Duration
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive and decrypt messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := appCtx.Start(ctx); err != nil {
				return err
			}
			log := appCtx.Log.Named("listen")

			events.On(appCtx.Bus, func(ctx context.Context, meta events.Meta, m events.Message) {
				if meta.Local {
					return
				}
				fmt.Printf("[%s] %s\n", meta.From, m.Text)
				if !receipts {
					return
				}
				ack := events.Receipt{ItemIDs: []domain.ItemID{meta.ItemID}}
				go func() {
					if _, err := appCtx.SendToUser(ctx, meta.From.UserID, events.KindReceipt, ack); err != nil {
						log.Warn("receipt not sent", zap.Error(err))
					}
				}()
			})
			events.On(appCtx.Bus, func(_ context.Context, meta events.Meta, r events.Receipt) {
				if !meta.Local {
					fmt.Printf("[%s] read %d item(s)\n", meta.From, len(r.ItemIDs))
				}
			})
			events.On(appCtx.Bus, func(_ context.Context, meta events.Meta, t events.Typing) {
				if t.Active && !meta.Local {
					fmt.Printf("[%s] is typing\n", meta.From)
				}
			})

			err := appCtx.Run(ctx, probeEvery)
			if out, jerr := appCtx.GetMetricsReport().JSON(); jerr == nil {
				fmt.Fprintln(os.Stderr, string(out))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&receipts, "receipts", false, "send a receipt for every message")
	cmd.Flags().DurationVar(&probeEvery, "probe-every", 10*time.Minute, "key status check interval")
	return cmd
}
