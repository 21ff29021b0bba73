package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kovi-go/kovi/config"
)

var (
	configPath string
	logger     = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

var rootCmd = &cobra.Command{
	Use:   "kovi",
	Short: "Kovi — a OneBot v11 bot framework",
	Long: `Kovi connects to a OneBot v11 server, dispatches inbound events to
registered plugins, and routes plugin API calls back to the server.

Run 'kovi serve' to start the bundled echo plugin against a configured
OneBot server, or 'kovi plugin' to inspect and edit persisted plugin
state without a running bot.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (searches default locations if unset)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves and loads the config file, reconfiguring logger
// to the level it specifies.
func loadConfig() (*config.Config, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	logger.Info("config loaded", "path", path, "server", cfg.Server.Host, "port", cfg.Server.Port)
	return cfg, nil
}
