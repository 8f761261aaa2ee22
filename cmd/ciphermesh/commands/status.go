package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ciphermesh/internal/domain"
)

// status: publish missing key material and report what the directory holds.
func statusCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Publish keys to the directory and show their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := appCtx.Log.Named("status")

			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = wait
			op := func() error {
				err := appCtx.Keys.Bootstrap(ctx)
				if err != nil && !errors.Is(err, domain.ErrDirectoryUnavailable) {
					return backoff.Permanent(err)
				}
				return err
			}
			notify := func(err error, next time.Duration) {
				log.Warn("directory not ready, retrying", zap.Error(err), zap.Duration("in", next))
			}
			if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
				return err
			}

			st, err := appCtx.Directory.QueryStatus(ctx)
			if err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to retry an unreachable directory")
	return cmd
}

func printStatus(st domain.DirectoryStatus) {
	local, _ := appCtx.PreKeys.CountPreKeys()
	fmt.Printf("Device:          %s\n", appCtx.Config.Self())
	fmt.Printf("Identity:        %v\n", st.HasIdentity)
	if st.HasSignedPreKey {
		fmt.Printf("Signed pre-key:  %d\n", st.SignedPreKeyID)
	} else {
		fmt.Println("Signed pre-key:  none")
	}
	fmt.Printf("Pre-keys:        %d published, %d local\n", st.PreKeyCount, local)
}
