package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"beacon/internal/config"
	"beacon/internal/daemon"
	"beacon/internal/logging"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	cmd := &cobra.Command{
		Use:           "beacond",
		Short:         "Beacon configuration and coordination daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configFlag)
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return daemon.New(cfg, logger).Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFlag, "config", "c", "", "TOML configuration file")
	flags.String("db-path", "", "configuration repository root directory (required)")
	flags.Int("port", 0, "repository TCP port (0 picks a free port)")
	flags.Int("redis-port", 0, "settings redis port")
	flags.Int("redis-data-port", 0, "data redis port")
	flags.String("redis-conf", "", "settings redis configuration file")
	flags.String("redis-data-conf", "", "data redis configuration file")
	flags.String("redis-socket", "", "settings redis unix socket path")
	flags.Int("tango-port", 0, "enable the device-database emulator on this port")
	flags.Int("webapp-port", 0, "enable the configuration web editor on this port")
	flags.Int("log-server-port", 0, "enable the log aggregator on this port")
	flags.String("log-output-folder", "", "log aggregator output directory")
	flags.Int("log-viewer-port", 0, "enable the log viewer (requires --log-server-port)")
	flags.String("log-level", "", "daemon log level (debug, info, warn, error)")
	flags.StringArray("add-filter", nil, "discovery address filter, CIDR or IP, optionally allow:/deny: prefixed (repeatable)")

	return cmd
}

// loadConfig merges, in order: defaults, the optional TOML file, then any
// flag explicitly set on the command line.
func loadConfig(cmd *cobra.Command, configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db-path") {
		cfg.DBPath, _ = flags.GetString("db-path")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("redis-port") {
		cfg.Redis.Port, _ = flags.GetInt("redis-port")
	}
	if flags.Changed("redis-data-port") {
		cfg.RedisData.Port, _ = flags.GetInt("redis-data-port")
	}
	if flags.Changed("redis-conf") {
		cfg.Redis.ConfPath, _ = flags.GetString("redis-conf")
	}
	if flags.Changed("redis-data-conf") {
		cfg.RedisData.ConfPath, _ = flags.GetString("redis-data-conf")
	}
	if flags.Changed("redis-socket") {
		cfg.Redis.Socket, _ = flags.GetString("redis-socket")
	}
	if flags.Changed("tango-port") {
		cfg.TangoPort, _ = flags.GetInt("tango-port")
	}
	if flags.Changed("webapp-port") {
		cfg.WebAppPort, _ = flags.GetInt("webapp-port")
	}
	if flags.Changed("log-server-port") {
		cfg.LogServer.Port, _ = flags.GetInt("log-server-port")
	}
	if flags.Changed("log-output-folder") {
		cfg.LogServer.OutputFolder, _ = flags.GetString("log-output-folder")
	}
	if flags.Changed("log-viewer-port") {
		cfg.LogServer.ViewerPort, _ = flags.GetInt("log-viewer-port")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("add-filter") {
		filters, _ := flags.GetStringArray("add-filter")
		cfg.Filters = append(cfg.Filters, filters...)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
