package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.DelayMS != Default().DelayMS {
		t.Errorf("DelayMS = %d, want default %d", cfg.DelayMS, Default().DelayMS)
	}
}

func TestLoadFromFileDeepMergesOverKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "delay_ms: 1000\nauth:\n  type: bearer\n  value: secret\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.DelayMS != 1000 {
		t.Errorf("DelayMS = %d, want 1000", cfg.DelayMS)
	}
	if cfg.Auth.Type != "bearer" || cfg.Auth.Value != "secret" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	// Untouched defaults survive the merge.
	if cfg.MaxRequests != Default().MaxRequests {
		t.Errorf("MaxRequests = %d, want untouched default %d", cfg.MaxRequests, Default().MaxRequests)
	}
	if len(cfg.Wordlists) != len(Default().Wordlists) {
		t.Errorf("Wordlists = %v, want untouched default", cfg.Wordlists)
	}
}

func TestLoadFromFileEmptyListOverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("strategies: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(cfg.Strategies) != 0 {
		t.Errorf("Strategies = %v, want empty (explicit key wins over default)", cfg.Strategies)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"zero max requests", func(c *Config) { c.MaxRequests = 0 }, true},
		{"negative max depth", func(c *Config) { c.MaxDepth = -1 }, true},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }, true},
		{"unknown auth type", func(c *Config) { c.Auth.Type = "oauth2" }, true},
		{"known auth type", func(c *Config) { c.Auth.Type = "api_key" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSetDotNotationAndCoercion(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("auth.type", "bearer"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if cfg.Auth.Type != "bearer" {
		t.Errorf("Auth.Type = %q", cfg.Auth.Type)
	}

	if err := cfg.Set("delay_ms", "250"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if cfg.DelayMS != 250 {
		t.Errorf("DelayMS = %d, want 250", cfg.DelayMS)
	}

	if err := cfg.Set("respect_robots_txt", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if cfg.RespectRobotsTxt {
		t.Errorf("RespectRobotsTxt = true, want false")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Wordlists[0] = "mutated.txt"
	if cfg.Wordlists[0] == "mutated.txt" {
		t.Errorf("Clone shares backing array with original")
	}
}

func TestAsMapAndFromMapRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Auth = AuthConfig{Type: "bearer", Value: "tok"}

	m, err := cfg.AsMap()
	if err != nil {
		t.Fatalf("AsMap: %v", err)
	}
	restored, err := FromMap(m)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if restored.Auth != cfg.Auth {
		t.Errorf("restored.Auth = %+v, want %+v", restored.Auth, cfg.Auth)
	}
	if restored.DelayMS != cfg.DelayMS {
		t.Errorf("restored.DelayMS = %d, want %d", restored.DelayMS, cfg.DelayMS)
	}
}

func TestMergeDeepMergesNestedMaps(t *testing.T) {
	cfg := Default()
	if err := cfg.Merge(map[string]any{
		"auth": map[string]any{"type": "api_key"},
	}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if cfg.Auth.Type != "api_key" {
		t.Errorf("Auth.Type = %q, want api_key", cfg.Auth.Type)
	}
	if cfg.MaxRequests != Default().MaxRequests {
		t.Errorf("MaxRequests changed unexpectedly: %d", cfg.MaxRequests)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.DelayMS = 777
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.DelayMS != 777 {
		t.Errorf("DelayMS = %d, want 777", loaded.DelayMS)
	}
}
