package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/csm-companion/internal/pulse"
)

// DirName is the per-user and per-repo configuration directory name.
const DirName = ".companion"

// Token cache policies.
const (
	TokenCachePage = "page" // fetch once, reuse for the process lifetime
	TokenCacheNone = "none" // fetch a fresh token for every request
)

// Service describes one backend reached through the host request bridge.
type Service struct {
	// Name is the service identifier passed to the request bridge
	Name string `json:"service,omitempty"`

	// BaseURL is where the HTTP host bridge sends requests for this service
	BaseURL string `json:"base_url,omitempty"`

	// TokenService is the SSO service name used to obtain bearer tokens
	TokenService string `json:"token_service,omitempty"`

	// TokenCache is "page" or "none"
	TokenCache string `json:"token_cache,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// Env is forwarded with every bridge call; empty lets the host choose
	Env string `json:"env,omitempty"`

	// SSOURL is the token endpoint used by the HTTP host bridge
	SSOURL string `json:"sso_url,omitempty"`

	CaseAssistant     Service `json:"case_assistant"`
	GuidedEngineering Service `json:"guided_engineering"`

	// StaleAfterHours is the pulse age that triggers the staleness advisory
	StaleAfterHours int `json:"stale_after_hours,omitempty"`

	// SystemAccount is the integration user whose pulse writes are not reported
	SystemAccount string `json:"system_account,omitempty"`

	// InsightDedup is "substring" (default) or "exact"
	InsightDedup string `json:"insight_dedup,omitempty"`

	// TemplatesPath is the local templates file served on the templates channel
	TemplatesPath string `json:"templates_path,omitempty"`

	// HostVersion is reported on the host version channel
	HostVersion string `json:"host_version,omitempty"`

	// MinTemplatesVersion is the host version templates require (exclusive)
	MinTemplatesVersion string `json:"min_templates_version,omitempty"`

	// LogMode is "dev" or "prod"
	LogMode string `json:"log_mode,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool types to disable entirely.
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// WebBind and WebPort address the overlay preview server
	WebBind string `json:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty"`

	// BackendPort is where the local backend emulator listens
	BackendPort int `json:"backend_port,omitempty"`

	// BackendSecret signs and verifies emulator tokens
	BackendSecret string `json:"backend_secret,omitempty"`

	// BackendTokenTTLMinutes is the lifetime of emulator tokens
	BackendTokenTTLMinutes int `json:"backend_token_ttl_minutes,omitempty"`

	// BackendSeedPath is an optional YAML fixture file loaded on emulator start
	BackendSeedPath string `json:"backend_seed_path,omitempty"`

	// DBMaxOpenConns limits the emulator's open database connections. 0 means default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the emulator's idle database connections. 0 means default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SSOURL: "http://127.0.0.1:8731/sso/token",
		CaseAssistant: Service{
			Name:         "backend-case-assistant",
			BaseURL:      "http://127.0.0.1:8731",
			TokenService: "supportportal_token",
			TokenCache:   TokenCachePage,
		},
		GuidedEngineering: Service{
			Name:         "backend-guided-engineering",
			BaseURL:      "http://127.0.0.1:8731",
			TokenService: "guided-engineering-token",
			TokenCache:   TokenCacheNone,
		},
		StaleAfterHours:        48,
		SystemAccount:          "INT_ISE2SN",
		InsightDedup:           "substring",
		MinTemplatesVersion:    "1.6.44",
		LogMode:                "dev",
		WebBind:                "127.0.0.1",
		WebPort:                8730,
		BackendPort:            8731,
		BackendSecret:          "companion-dev-secret",
		BackendTokenTTLMinutes: 60,
	}
}

// StaleAfter returns the staleness threshold as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterHours) * time.Hour
}

// PulseOptions returns the evaluation options derived from the configuration.
func (c *Config) PulseOptions() pulse.Options {
	return pulse.Options{
		StaleAfter:    c.StaleAfter(),
		SystemAccount: c.SystemAccount,
		Dedup:         pulse.DedupMode(c.InsightDedup),
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.companion.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.companion) and repo (.companion) directories.
// Repo config is found by walking upward from startDir to find the nearest .companion/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .companion/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Env:                    pickString(base.Env, overlay.Env),
		SSOURL:                 pickString(base.SSOURL, overlay.SSOURL),
		CaseAssistant:          mergeService(base.CaseAssistant, overlay.CaseAssistant),
		GuidedEngineering:      mergeService(base.GuidedEngineering, overlay.GuidedEngineering),
		StaleAfterHours:        pickInt(base.StaleAfterHours, overlay.StaleAfterHours),
		SystemAccount:          pickString(base.SystemAccount, overlay.SystemAccount),
		InsightDedup:           pickString(base.InsightDedup, overlay.InsightDedup),
		TemplatesPath:          pickString(base.TemplatesPath, overlay.TemplatesPath),
		HostVersion:            pickString(base.HostVersion, overlay.HostVersion),
		MinTemplatesVersion:    pickString(base.MinTemplatesVersion, overlay.MinTemplatesVersion),
		LogMode:                pickString(base.LogMode, overlay.LogMode),
		WebBind:                pickString(base.WebBind, overlay.WebBind),
		WebPort:                pickInt(base.WebPort, overlay.WebPort),
		BackendPort:            pickInt(base.BackendPort, overlay.BackendPort),
		BackendSecret:          pickString(base.BackendSecret, overlay.BackendSecret),
		BackendTokenTTLMinutes: pickInt(base.BackendTokenTTLMinutes, overlay.BackendTokenTTLMinutes),
		BackendSeedPath:        pickString(base.BackendSeedPath, overlay.BackendSeedPath),
		DBMaxOpenConns:         pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:         pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func mergeService(base, overlay Service) Service {
	return Service{
		Name:         pickString(base.Name, overlay.Name),
		BaseURL:      pickString(base.BaseURL, overlay.BaseURL),
		TokenService: pickString(base.TokenService, overlay.TokenService),
		TokenCache:   pickString(base.TokenCache, overlay.TokenCache),
	}
}

// pickString returns overlay if set, else base.
func pickString(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// pickInt returns overlay if non-zero, else base.
func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
