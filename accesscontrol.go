package kovi

import "github.com/kovi-go/kovi/plugin"

// AccessMode, AccessPolicy and the AccessDisabled/Whitelist/Blacklist
// constants are aliased from package plugin so callers configuring a
// plugin's access-control policy don't need a second import; the
// plugin's Policy field is this same type.
type (
	AccessMode   = plugin.AccessMode
	AccessPolicy = plugin.AccessPolicy
)

const (
	AccessDisabled  = plugin.AccessDisabled
	AccessWhitelist = plugin.AccessWhitelist
	AccessBlacklist = plugin.AccessBlacklist
)

// NewAccessPolicy returns a disabled policy; callers build up Groups/
// Friends and set Mode explicitly.
func NewAccessPolicy() *AccessPolicy {
	return plugin.NewAccessPolicy()
}
