package plugin

import "testing"

func TestAccessDisabledAlwaysAllows(t *testing.T) {
	p := NewAccessPolicy()
	if !p.Allow(100, 5) {
		t.Fatal("disabled policy must allow everything")
	}
}

func TestAccessWhitelistTruthTable(t *testing.T) {
	p := NewAccessPolicy()
	p.Mode = AccessWhitelist
	p.Groups[100] = struct{}{}
	p.Friends[5] = struct{}{}

	if !p.Allow(100, 1) {
		t.Fatal("whitelisted group should be allowed")
	}
	if p.Allow(200, 1) {
		t.Fatal("non-whitelisted group should be denied")
	}
	if !p.Allow(0, 5) {
		t.Fatal("whitelisted friend should be allowed")
	}
	if p.Allow(0, 6) {
		t.Fatal("non-whitelisted friend should be denied")
	}
}

func TestAccessBlacklistTruthTable(t *testing.T) {
	p := NewAccessPolicy()
	p.Mode = AccessBlacklist
	p.Groups[100] = struct{}{}
	p.Friends[5] = struct{}{}

	if p.Allow(100, 1) {
		t.Fatal("blacklisted group should be denied")
	}
	if !p.Allow(200, 1) {
		t.Fatal("non-blacklisted group should be allowed")
	}
	if p.Allow(0, 5) {
		t.Fatal("blacklisted friend should be denied")
	}
	if !p.Allow(0, 6) {
		t.Fatal("non-blacklisted friend should be allowed")
	}
}

func TestAccessNilPolicyAllows(t *testing.T) {
	var p *AccessPolicy
	if !p.Allow(1, 1) {
		t.Fatal("nil policy should allow everything")
	}
}
