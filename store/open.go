package store

import "fmt"

// Config is the subset of config.StoreConfig Open needs. Defined here
// rather than imported from package config to keep store free of a
// dependency on the config package; config.StoreConfig's fields match
// this shape exactly and config/config.go documents the mapping.
type Config struct {
	Backend string
	Path    string
	Addr    string
	Prefix  string
}

// Open selects and opens the backend named by cfg.Backend ("bolt",
// "sqlite", or "redis"), per spec §6's "pluggable persisted-state
// backend" requirement.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "bolt":
		return OpenBolt(cfg.Path)
	case "sqlite":
		return OpenSQL(cfg.Path)
	case "redis":
		return OpenRedis(cfg.Addr, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
