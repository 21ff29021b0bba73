package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kovi-go/kovi"
	"github.com/kovi-go/kovi/config"
	"github.com/kovi-go/kovi/examples/echoplugin"
	"github.com/kovi-go/kovi/health"
	"github.com/kovi-go/kovi/metrics"
	"github.com/kovi-go/kovi/plugin"
	"github.com/kovi-go/kovi/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bot and serve until SIGINT/SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	st, err := store.Open(store.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Addr:    cfg.Store.Addr,
		Prefix:  cfg.Store.Prefix,
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := health.NewMonitor(health.Config{
		Backend: cfg.Store.Backend,
		Store:   st,
		Logger:  logger,
		OnChange: func(ready bool, err error) {
			v := 0.0
			if ready {
				v = 1
			}
			metrics.StoreBackendReady.WithLabelValues(cfg.Store.Backend).Set(v)
		},
	})
	monitor.Start(ctx)
	defer monitor.Close()

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/healthz", monitor.Handler())
		go func() {
			logger.Info("metrics listening", "address", cfg.Metrics.Address)
			srv := &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	// Config is the admin list's baseline; a persisted list from a
	// prior run (written on Drop) overrides it, the same precedence
	// plugin enabled flags get in registerPlugin.
	adminList := store.AdminList{MainID: cfg.Admin.MainID, Deputies: cfg.Admin.Deputies}
	if persisted, found, loadErr := st.LoadAdminList(ctx); loadErr != nil {
		logger.Warn("failed to load persisted admin list", "error", loadErr)
	} else if found {
		adminList = persisted
	}

	bot := kovi.New(kovi.Server{
		Host:  cfg.Server.Host,
		Port:  cfg.Server.Port,
		Token: cfg.Server.Token,
		TLS:   cfg.Server.TLS,
	}).WithAdmin(adminList.MainID, adminList.Deputies...)

	states, err := st.LoadPluginStates(ctx)
	if err != nil {
		logger.Warn("failed to load persisted plugin states", "error", err)
		states = map[string]bool{}
	}

	echo, err := registerPlugin(bot, "echo", echoplugin.Register, cfg, states)
	if err != nil {
		return err
	}

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	watcher, err := config.Watch(cfgPath, config.MutableConfig{Admin: cfg.Admin, Plugins: cfg.Plugins},
		func(mc config.MutableConfig) { applyMutableConfig(bot, mc) })
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	logger.Info("starting kovi", "admin", adminList.MainID)
	runErr := bot.Run(ctx)

	finalStates := map[string]bool{"echo": echo.Enable.Get()}
	if err := st.SavePluginStates(context.Background(), finalStates); err != nil {
		logger.Warn("failed to persist plugin states on shutdown", "error", err)
	}
	rt := bot.Runtime()
	finalAdmin := store.AdminList{MainID: rt.AdminID(), Deputies: rt.DeputyIDs()}
	if err := st.SaveAdminList(context.Background(), finalAdmin); err != nil {
		logger.Warn("failed to persist admin list on shutdown", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("bot: %w", runErr)
	}
	logger.Info("kovi stopped")
	return nil
}

// registerPlugin registers build under name, then applies the
// persisted enabled flag (falling back to config, then true) and the
// config-declared access policy.
func registerPlugin(bot *kovi.Bot, name string, build func(*plugin.Builder), cfg *config.Config, persisted map[string]bool) (*plugin.Plugin, error) {
	p, err := bot.Plugin(name, build)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", name, err)
	}

	enabled := true
	if pc, ok := cfg.Plugins[name]; ok {
		enabled = pc.Enabled
	}
	if v, ok := persisted[name]; ok {
		enabled = v
	}
	p.SetEnabled(enabled)

	if pc, ok := cfg.Plugins[name]; ok {
		p.Policy = accessPolicyFromConfig(pc.Access)
	}
	return p, nil
}

// applyMutableConfig is config.Watch's OnChange callback: it pushes
// the admin list and each known plugin's access policy onto the
// already-running bot. It never touches server connection parameters
// or a plugin's persisted enabled flag — the latter is store state,
// not config state, and changing it from under an operator's `kovi
// plugin enable/disable` would be surprising.
func applyMutableConfig(bot *kovi.Bot, mc config.MutableConfig) {
	bot.SetAdmin(mc.Admin.MainID, mc.Admin.Deputies...)
	logger.Info("admin list reloaded", "admin", mc.Admin.MainID, "deputies", mc.Admin.Deputies)

	for name, pc := range mc.Plugins {
		p, ok := bot.Lookup(name)
		if !ok {
			continue
		}
		p.SetPolicy(accessPolicyFromConfig(pc.Access))
		logger.Info("plugin access policy reloaded", "plugin", name, "mode", pc.Access.Mode)
	}
}

func accessPolicyFromConfig(ac config.PluginAccessConfig) *kovi.AccessPolicy {
	policy := kovi.NewAccessPolicy()
	switch ac.Mode {
	case "whitelist":
		policy.Mode = kovi.AccessWhitelist
	case "blacklist":
		policy.Mode = kovi.AccessBlacklist
	default:
		policy.Mode = kovi.AccessDisabled
	}
	for _, id := range ac.Groups {
		policy.Groups[id] = struct{}{}
	}
	for _, id := range ac.Friends {
		policy.Friends[id] = struct{}{}
	}
	return policy
}

