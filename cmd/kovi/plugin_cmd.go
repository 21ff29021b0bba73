package main

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/kovi-go/kovi/store"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect and edit persisted plugin state",
	Long: `Read or mutate the plugin enabled/disabled flags Kovi persists to its
store backend. These take effect the next time 'kovi serve' starts; a
running bot is not touched.`,
}

func init() {
	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginEnableCmd)
	pluginCmd.AddCommand(pluginDisableCmd)
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted plugin enabled/disabled state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, states, err := openStoreAndStates()
		if err != nil {
			return err
		}
		defer st.Close()

		if len(states) == 0 {
			fmt.Println("no persisted plugin state (nothing has run yet)")
			return nil
		}
		for name, enabled := range states {
			status := "disabled"
			if enabled {
				status = "enabled"
			}
			fmt.Printf("%-20s %s\n", name, status)
		}
		return nil
	},
}

var pluginEnableCmd = &cobra.Command{
	Use:   "enable <glob>",
	Short: "Enable every persisted plugin whose name matches glob",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPersistedState(args[0], true)
	},
}

var pluginDisableCmd = &cobra.Command{
	Use:   "disable <glob>",
	Short: "Disable every persisted plugin whose name matches glob",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPersistedState(args[0], false)
	},
}

// applyGlob sets every key in states matching pattern to enabled, in
// place, and returns the names it touched.
func applyGlob(states map[string]bool, pattern string, enabled bool) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}

	var matched []string
	for name := range states {
		if g.Match(name) {
			states[name] = enabled
			matched = append(matched, name)
		}
	}
	return matched, nil
}

func setPersistedState(pattern string, enabled bool) error {
	st, states, err := openStoreAndStates()
	if err != nil {
		return err
	}
	defer st.Close()

	matched, err := applyGlob(states, pattern, enabled)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		fmt.Printf("no persisted plugin matched %q\n", pattern)
		return nil
	}

	if err := st.SavePluginStates(context.Background(), states); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	fmt.Printf("%s %d plugin(s) matching %q\n", verb, len(matched), pattern)
	return nil
}

func openStoreAndStates() (store.Store, map[string]bool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	st, err := store.Open(store.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Addr:    cfg.Store.Addr,
		Prefix:  cfg.Store.Prefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}

	states, err := st.LoadPluginStates(context.Background())
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	return st, states, nil
}
