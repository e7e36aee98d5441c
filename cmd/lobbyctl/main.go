package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openlobby/lobbyctl/internal/app"
	"github.com/openlobby/lobbyctl/internal/config"
	"github.com/openlobby/lobbyctl/internal/logging"
	"github.com/openlobby/lobbyctl/internal/settings"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
		username   string
		password   string
	)

	cmd := &cobra.Command{
		Use:           "lobbyctl",
		Short:         "Lobby session engine: connects to the lobby server and serves state to the UI",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(configPath, overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			if username != "" {
				go func() {
					if err := application.AutoLogin(ctx, username, password); err != nil {
						logger.Error().Err(err).Msg("auto-login failed")
					}
				}()
			}

			return application.Run(ctx)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&overrides.SettingsPath, "settings", "", "path to settings database")
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "lobby server address (overrides profile)")
	cmd.Flags().StringVar(&overrides.Profile, "profile", "", "endpoint profile (production, dev, test)")
	cmd.Flags().StringVar(&overrides.BridgeAddr, "bridge-addr", "", "UI bridge listen address")
	cmd.Flags().StringVar(&username, "username", "", "log in automatically as this account")
	cmd.Flags().StringVar(&password, "password", "", "password for --username")

	cmd.AddCommand(newProfileCmd(&configPath, &overrides))
	return cmd
}

func newProfileCmd(configPath *string, overrides *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage lobby endpoint profiles",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List endpoint profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openSettings(*configPath, *overrides)
			if err != nil {
				return err
			}
			defer st.Close()

			profiles, err := st.Profiles(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range profiles {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Name, p.Addr())
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <name> <host> <port>",
		Short: "Create or replace an endpoint profile",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[2], err)
			}

			st, err := openSettings(*configPath, *overrides)
			if err != nil {
				return err
			}
			defer st.Close()

			return st.SetEndpoint(cmd.Context(), settings.Endpoint{
				Name: args[0],
				Host: args[1],
				Port: port,
			})
		},
	}

	cmd.AddCommand(list, set)
	return cmd
}

func loadConfig(configPath string, overrides config.Config) (config.Config, *zerolog.Logger, error) {
	bootstrap := logging.New(overrides.LogLevel)
	cfg, _, err := config.Load(bootstrap, configPath)
	if err != nil {
		return cfg, nil, err
	}
	cfg.UpdateFrom(overrides)
	return cfg, logging.New(cfg.LogLevel), nil
}

func openSettings(configPath string, overrides config.Config) (*settings.Store, error) {
	cfg, _, err := loadConfig(configPath, overrides)
	if err != nil {
		return nil, err
	}
	return settings.Open(cfg.SettingsPath)
}
