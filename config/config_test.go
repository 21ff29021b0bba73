package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("server:\n  host: 127.0.0.1\n  port: 6700\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	// When no config exists anywhere, should error. Swap
	// searchPathsFunc onto a scratch dir to avoid finding real config
	// files on developer/deploy machines.
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("server:\n  host: 127.0.0.1\n  port: 6700\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func validConfigYAML() string {
	return "server:\n  host: 127.0.0.1\n  port: 6700\n" +
		"admin:\n  main_id: 10001\n"
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(
		"server:\n  host: 127.0.0.1\n  port: 6700\n  token: ${KOVI_TEST_TOKEN}\n"+
			"admin:\n  main_id: 10001\n"), 0600)
	os.Setenv("KOVI_TEST_TOKEN", "secret123")
	defer os.Unsetenv("KOVI_TEST_TOKEN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Token != "secret123" {
		t.Errorf("token = %q, want %q", cfg.Server.Token, "secret123")
	}
}

func TestLoad_MissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("server:\n  host: 127.0.0.1\n  port: 6700\n"), 0600)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing admin.main_id")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(validConfigYAML()), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.Backend != "bolt" {
		t.Errorf("store.backend = %q, want bolt", cfg.Store.Backend)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.Metrics.Address != ":9090" {
		t.Errorf("metrics.address = %q, want :9090", cfg.Metrics.Address)
	}
}

func TestLoad_PluginAccessDefaultMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(validConfigYAML()+
		"plugins:\n  echo:\n    enabled: true\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	p, ok := cfg.Plugins["echo"]
	if !ok {
		t.Fatal("expected plugins.echo to be present")
	}
	if p.Access.Mode != "disabled" {
		t.Errorf("plugins.echo.access.mode = %q, want disabled", p.Access.Mode)
	}
}

func TestLoad_PluginAccessExplicitMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(validConfigYAML()+
		"plugins:\n  echo:\n    enabled: true\n    access:\n      mode: whitelist\n      groups: [100, 200]\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	p := cfg.Plugins["echo"]
	if p.Access.Mode != "whitelist" {
		t.Errorf("access.mode = %q, want whitelist", p.Access.Mode)
	}
	if len(p.Access.Groups) != 2 {
		t.Errorf("access.groups = %v, want 2 entries", p.Access.Groups)
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Admin.MainID = 10001
	cfg.Server.Port = 99999

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestValidate_BadAccessMode(t *testing.T) {
	cfg := Default()
	cfg.Admin.MainID = 10001
	cfg.Plugins = map[string]PluginConfig{
		"echo": {Access: PluginAccessConfig{Mode: "bogus"}},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid access mode")
	}
}

func TestValidate_BadStoreBackend(t *testing.T) {
	cfg := Default()
	cfg.Admin.MainID = 10001
	cfg.Store.Backend = "bogus"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid store backend")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Admin.MainID = 10001
	cfg.LogLevel = "not-a-level"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "not-a-level") {
		t.Errorf("error should mention the bad level, got: %v", err)
	}
}

func TestDefault_HasLocalhostServer(t *testing.T) {
	cfg := Default()
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 6700 {
		t.Errorf("Default() server = %+v, want 127.0.0.1:6700", cfg.Server)
	}
	if cfg.Store.Backend != "bolt" {
		t.Errorf("Default() store.backend = %q, want bolt", cfg.Store.Backend)
	}
}

func TestApplyDefaults_StorePathDerivedFromDataDir(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/kovi"}
	cfg.applyDefaults()
	want := filepath.Join("/var/lib/kovi", "kovi.db")
	if cfg.Store.Path != want {
		t.Errorf("store.path = %q, want %q", cfg.Store.Path, want)
	}
}
