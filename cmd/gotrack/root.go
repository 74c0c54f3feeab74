package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/datallboy/gotrack/internal/infra/config"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// commandContext carries the global flags and lazily loaded configuration.
type commandContext struct {
	configPath string
	viper      *viper.Viper
	cfg        *config.Config
	log        *logger.Logger
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{viper: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "gotrack",
		Short:         "Acquire and decrypt tracks described by a manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (default config.yaml)")

	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))

	return rootCmd
}

// bind maps a command flag onto a configuration key.
func (c *commandContext) bind(flags *pflag.FlagSet, key, flag string) {
	_ = c.viper.BindPFlag(key, flags.Lookup(flag))
}

// ensureConfig loads the configuration once and opens the log file.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, err := config.LoadInto(c.viper, c.configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, err
	}

	c.cfg = cfg
	c.log = log
	return cfg, nil
}

func (c *commandContext) close() {
	if c.log != nil {
		_ = c.log.Sync()
	}
}
