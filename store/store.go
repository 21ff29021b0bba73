// Package store persists the two pieces of state spec §6 names as
// worth surviving a restart: each plugin's enabled/disabled flag, and
// admin list mutations. It is deliberately small — Kovi is a
// framework, not an application, and owns no message history, no
// conversation state, and no user-facing data model. Three
// interchangeable backends are provided; which one a deployment uses
// is a config.StoreConfig choice, never a compile-time one.
package store

import "context"

// AdminList is the persisted admin configuration: the main admin and
// any deputies, mutable at runtime via plugin code (e.g. a "promote"
// command) rather than only at startup via config.
type AdminList struct {
	MainID   int64
	Deputies []int64
}

// Store is the persistence contract every backend satisfies. All
// methods must be safe for concurrent use; Kovi calls LoadPluginStates
// and LoadAdminList once at startup and the Save variants once per
// Drop (spec §6: "written on receipt of Drop and loaded at startup if
// present").
type Store interface {
	LoadPluginStates(ctx context.Context) (map[string]bool, error)
	SavePluginStates(ctx context.Context, states map[string]bool) error

	LoadAdminList(ctx context.Context) (AdminList, bool, error)
	SaveAdminList(ctx context.Context, list AdminList) error

	// Ping reports whether the backend is currently reachable, for
	// health.Monitor's readiness probing.
	Ping(ctx context.Context) error

	Close() error
}
