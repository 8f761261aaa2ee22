package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ciphermesh/internal/app"
)

var (
	configPath string
	appCtx     *app.App

	flagHome       string
	flagPassphrase string
	flagUser       string
	flagDevice     uint32
	flagDirectory  string
	flagLogMode    string
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:          "ciphermesh",
		Short:        "End-to-end encrypted multi-device messaging client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg)
			appCtx, err = app.Open(cmd.Context(), cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx == nil {
				return nil
			}
			return appCtx.Close(context.Background())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", os.Getenv(app.EnvPrefix+"CONFIG"), "YAML config file")
	pf.StringVar(&flagHome, "home", "", "data dir (default ~/.ciphermesh)")
	pf.StringVarP(&flagPassphrase, "passphrase", "p", "", "passphrase protecting the identity key")
	pf.StringVarP(&flagUser, "user", "u", "", "your user id")
	pf.Uint32VarP(&flagDevice, "device", "d", 0, "this device's id")
	pf.StringVar(&flagDirectory, "directory", "", "directory base URL (e.g. http://127.0.0.1:8080)")
	pf.StringVar(&flagLogMode, "log-mode", "", "development or production")

	root.AddCommand(initCmd(), fingerprintCmd(), statusCmd(), sendCmd(), listenCmd(), metricsCmd())
	return root.ExecuteContext(ctx)
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cmd *cobra.Command, cfg *app.Config) {
	pf := cmd.Flags()
	if pf.Changed("home") {
		cfg.Home = flagHome
	}
	if pf.Changed("passphrase") {
		cfg.Passphrase = flagPassphrase
	}
	if pf.Changed("user") {
		cfg.UserID = flagUser
	}
	if pf.Changed("device") {
		cfg.DeviceID = flagDevice
	}
	if pf.Changed("directory") {
		cfg.Directory.URL = flagDirectory
	}
	if pf.Changed("log-mode") {
		cfg.LogMode = flagLogMode
	}
}
