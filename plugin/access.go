package plugin

// AccessMode selects how a Policy's membership sets are interpreted.
type AccessMode int

const (
	// AccessDisabled delivers every message regardless of membership.
	AccessDisabled AccessMode = iota
	// AccessWhitelist delivers only to members.
	AccessWhitelist
	// AccessBlacklist delivers only to non-members.
	AccessBlacklist
)

// AccessPolicy is a per-plugin message filter keyed by group id (group
// messages) or sender id (private messages), per spec §4.4.
type AccessPolicy struct {
	Mode    AccessMode
	Groups  map[int64]struct{}
	Friends map[int64]struct{}
}

// NewAccessPolicy returns a disabled policy; callers build up Groups/
// Friends and set Mode explicitly.
func NewAccessPolicy() *AccessPolicy {
	return &AccessPolicy{Groups: map[int64]struct{}{}, Friends: map[int64]struct{}{}}
}

// Allow reports whether a message from groupID (0 if private) and
// senderID should be delivered. Implements the totality truth table:
// disabled always allows; whitelist allows iff member; blacklist
// allows iff non-member.
func (p *AccessPolicy) Allow(groupID, senderID int64) bool {
	if p == nil || p.Mode == AccessDisabled {
		return true
	}

	id := senderID
	set := p.Friends
	if groupID != 0 {
		id = groupID
		set = p.Groups
	}
	_, member := set[id]

	switch p.Mode {
	case AccessWhitelist:
		return member
	case AccessBlacklist:
		return !member
	default:
		return true
	}
}
