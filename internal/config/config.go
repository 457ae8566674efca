// Package config loads, merges, and mutates apiprober's probe configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AuthConfig holds outbound authentication settings for the HTTP worker.
type AuthConfig struct {
	Type  string `yaml:"type" json:"type"`
	Value string `yaml:"value" json:"value"`
}

// Config holds a full probe configuration. Field names and defaults mirror
// the original implementation's DEFAULT_CONFIG.
type Config struct {
	DelayMS          int      `yaml:"delay_ms" json:"delay_ms"`
	MaxRequests      int      `yaml:"max_requests" json:"max_requests"`
	MaxDepth         int      `yaml:"max_depth" json:"max_depth"`
	TimeoutSeconds   int      `yaml:"timeout_seconds" json:"timeout_seconds"`
	UserAgent        string   `yaml:"user_agent" json:"user_agent"`
	RespectRobotsTxt bool     `yaml:"respect_robots_txt" json:"respect_robots_txt"`
	SkipDestructive  bool     `yaml:"skip_destructive" json:"skip_destructive"`
	Strategies       []string `yaml:"strategies" json:"strategies"`

	Auth AuthConfig `yaml:"auth" json:"auth"`

	Wordlists        []string `yaml:"wordlists" json:"wordlists"`
	PatternVersions  []int    `yaml:"pattern_versions" json:"pattern_versions"`
	PatternResources []string `yaml:"pattern_resources" json:"pattern_resources"`

	MethodsSafe []string `yaml:"methods_safe" json:"methods_safe"`
	MethodsAll  []string `yaml:"methods_all" json:"methods_all"`

	ExportDir string `yaml:"export_dir" json:"export_dir"`
	DBPath    string `yaml:"db_path" json:"db_path"`

	WordlistDir string `yaml:"wordlist_dir" json:"wordlist_dir"`

	// MetricsAddr, when non-empty, serves Prometheus metrics for the
	// duration of a probe. Not present in the original config; an
	// ambient-stack addition.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	// LogFile, when non-empty, routes structured logs to a rotating
	// file instead of stderr.
	LogFile string `yaml:"log_file" json:"log_file"`
}

// Default returns a configuration with the same defaults as the original
// implementation's DEFAULT_CONFIG.
func Default() *Config {
	return &Config{
		DelayMS:          500,
		MaxRequests:      500,
		MaxDepth:         3,
		TimeoutSeconds:   15,
		UserAgent:        "apiprober/0.1 (+https://github.com/lukisch/apiprober; passive-discovery)",
		RespectRobotsTxt: true,
		SkipDestructive:  true,
		Strategies:       []string{"openapi", "wordlist", "pattern", "response_driven"},
		Auth:             AuthConfig{Type: "none"},
		Wordlists: []string{
			"common_rest.txt",
			"swagger_paths.txt",
			"auth_endpoints.txt",
			"admin_paths.txt",
		},
		PatternVersions: []int{1, 2, 3},
		PatternResources: []string{
			"users", "posts", "comments", "items", "products",
			"orders", "categories", "tags", "articles", "pages",
			"search", "settings", "config", "health", "status",
			"albums", "photos", "videos", "contacts", "customers",
			"tickets", "reviews", "collections", "templates",
		},
		MethodsSafe: []string{"GET", "HEAD", "OPTIONS"},
		MethodsAll:  []string{"GET", "HEAD", "OPTIONS", "POST", "PUT", "PATCH", "DELETE"},
		ExportDir:   "exports",
		DBPath:      "data/apiprober.db",
		WordlistDir: "wordlists",
	}
}

// LoadFromFile loads configuration from a YAML file, merged over Default().
// A missing file is not an error; Default() is returned unchanged.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; only loads .env into the process environment

	base := Default()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Decode the base into a generic map, merge the override map over it,
	// then decode the merged map back into the typed struct. This keeps
	// "key present with an empty value" distinguishable from "key absent"
	// through the merge step (see SPEC_FULL.md §5.1).
	baseYAML, err := yaml.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	var baseMap map[string]any
	if err := yaml.Unmarshal(baseYAML, &baseMap); err != nil {
		return nil, fmt.Errorf("remarshal default config: %w", err)
	}

	var overrideMap map[string]any
	if err := yaml.Unmarshal(data, &overrideMap); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	deepMerge(baseMap, overrideMap)

	merged, err := yaml.Marshal(baseMap)
	if err != nil {
		return nil, fmt.Errorf("marshal merged config: %w", err)
	}
	out := &Config{}
	if err := yaml.Unmarshal(merged, out); err != nil {
		return nil, fmt.Errorf("decode merged config: %w", err)
	}
	return out, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks invariants the orchestrator depends on.
func (c *Config) Validate() error {
	if c.MaxRequests < 1 {
		return fmt.Errorf("max_requests must be at least 1")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1")
	}
	switch c.Auth.Type {
	case "", "none", "bearer", "api_key", "basic":
	default:
		return fmt.Errorf("unknown auth type %q", c.Auth.Type)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := yaml.Marshal(c)
	clone := &Config{}
	_ = yaml.Unmarshal(data, clone)
	return clone
}

// AsMap decodes the config into a generic map, used by Set/Get and by
// ProbeRun config snapshots.
func (c *Config) AsMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap decodes a generic map (as produced by AsMap) directly into a new
// typed Config, with no merge step. Used by callers that have already
// computed the desired merged map themselves (e.g. Resume's shallow
// overlay) and just need it converted back to a typed struct.
func FromMap(m map[string]any) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge applies a generic map of overrides (e.g. a resumed run's config
// snapshot) on top of the current configuration, in place.
func (c *Config) Merge(overrides map[string]any) error {
	cur, err := c.AsMap()
	if err != nil {
		return err
	}
	deepMerge(cur, overrides)
	merged, err := yaml.Marshal(cur)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(merged, c)
}

// Set mutates a single nested key using dot notation (e.g. "auth.type").
// The incoming string value is coerced bool -> int -> float -> string, the
// first parse that succeeds wins.
func (c *Config) Set(key, value string) error {
	m, err := c.AsMap()
	if err != nil {
		return err
	}
	setDotted(m, strings.Split(key, "."), coerce(value))
	merged, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(merged, c)
}

func coerce(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

func setDotted(m map[string]any, keys []string, value any) {
	if len(keys) == 1 {
		m[keys[0]] = value
		return
	}
	next, ok := m[keys[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		m[keys[0]] = next
	}
	setDotted(next, keys[1:], value)
}

// deepMerge recursively merges override into base, in place. A map value on
// both sides merges recursively; any other value (including slices, even
// empty ones) in override replaces the base value outright. This resolves
// spec.md's Open Question: the presence of a key in override always wins.
func deepMerge(base, override map[string]any) {
	for key, value := range override {
		if baseChild, ok := base[key].(map[string]any); ok {
			if overrideChild, ok := value.(map[string]any); ok {
				deepMerge(baseChild, overrideChild)
				continue
			}
		}
		base[key] = value
	}
}
