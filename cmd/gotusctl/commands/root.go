package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gotus/internal/config"
	"gotus/internal/log"
)

// NewRootCmd creates the gotusctl root command.
func NewRootCmd() *cobra.Command {
	var level string

	rootCmd := &cobra.Command{
		Use:           "gotusctl",
		Short:         "Operator tasks for the GOTUS account service",
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&level, "log-level", "info", "log level (debug, info, warn, error)")

	env := func() (*config.AppConfig, zerolog.Logger, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, zerolog.Nop(), err
		}
		return cfg, log.NewWithLevel(cfg.Environment, level), nil
	}

	rootCmd.AddCommand(
		newSeedAdminCommand(env),
		newMigrateCommand(env),
		newHashPasswordCommand(),
	)

	return rootCmd
}

type envLoader func() (*config.AppConfig, zerolog.Logger, error)
