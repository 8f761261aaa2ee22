package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"ciphermesh/internal/services/identity"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and store them securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.CheckPassphrase(appCtx.Config.Passphrase); err != nil {
				return err
			}
			id, created, err := appCtx.Identity.LoadOrCreate()
			if err != nil {
				return err
			}
			if created {
				fmt.Println("Identity created.")
			} else {
				fmt.Println("Identity already exists.")
			}
			fmt.Printf("Fingerprint: %s\n", identity.Fingerprint(id))
			fmt.Printf("Registration ID: %d\n", id.RegistrationID)
			return nil
		},
	}
}
