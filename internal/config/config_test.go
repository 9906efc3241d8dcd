package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hpungsan/csm-companion/internal/pulse"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.StaleAfterHours != def.StaleAfterHours {
		t.Fatalf("StaleAfterHours = %d, want %d", cfg.StaleAfterHours, def.StaleAfterHours)
	}
	if cfg.CaseAssistant.TokenCache != TokenCachePage {
		t.Errorf("CaseAssistant.TokenCache = %q, want %q", cfg.CaseAssistant.TokenCache, TokenCachePage)
	}
	if cfg.GuidedEngineering.TokenCache != TokenCacheNone {
		t.Errorf("GuidedEngineering.TokenCache = %q, want %q", cfg.GuidedEngineering.TokenCache, TokenCacheNone)
	}
	if cfg.SystemAccount != "INT_ISE2SN" {
		t.Errorf("SystemAccount = %q, want INT_ISE2SN", cfg.SystemAccount)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.json"), `{
		"stale_after_hours": 72,
		"guided_engineering": {"base_url": "https://ge.example.com", "token_cache": "page"}
	}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StaleAfterHours != 72 {
		t.Fatalf("StaleAfterHours = %d, want 72", cfg.StaleAfterHours)
	}
	if cfg.StaleAfter() != 72*time.Hour {
		t.Errorf("StaleAfter() = %v, want 72h", cfg.StaleAfter())
	}
	if cfg.GuidedEngineering.BaseURL != "https://ge.example.com" {
		t.Errorf("GuidedEngineering.BaseURL = %q", cfg.GuidedEngineering.BaseURL)
	}
	if cfg.GuidedEngineering.TokenCache != TokenCachePage {
		t.Errorf("GuidedEngineering.TokenCache = %q, want page", cfg.GuidedEngineering.TokenCache)
	}
	// Untouched service fields keep their defaults
	if cfg.GuidedEngineering.Name != "backend-guided-engineering" {
		t.Errorf("GuidedEngineering.Name = %q, want default", cfg.GuidedEngineering.Name)
	}
	if cfg.GuidedEngineering.TokenService != "guided-engineering-token" {
		t.Errorf("GuidedEngineering.TokenService = %q, want default", cfg.GuidedEngineering.TokenService)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.json"), `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.json"), `{"disabled_tools": ["pulse_update", "automation_execute"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "pulse_update" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "pulse_update")
	}
	if cfg.DisabledTools[1] != "automation_execute" {
		t.Errorf("DisabledTools[1] = %q, want %q", cfg.DisabledTools[1], "automation_execute")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeFile(t, filepath.Join(globalDir, "config.json"), `{"stale_after_hours": 24, "disabled_tools": ["pulse_update"]}`)
	writeFile(t, filepath.Join(repoRoot, DirName, "config.json"), `{"stale_after_hours": 12, "disabled_tools": ["automation_execute"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	// Repo overrides scalar
	if cfg.StaleAfterHours != 12 {
		t.Errorf("StaleAfterHours = %d, want 12 (repo override)", cfg.StaleAfterHours)
	}

	// Arrays merged
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_OnlyRepo(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeFile(t, filepath.Join(repoRoot, DirName, "config.json"), `{"env": "test"}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.Env != "test" {
		t.Errorf("Env = %q, want test", cfg.Env)
	}
	if cfg.StaleAfterHours != 48 {
		t.Errorf("StaleAfterHours = %d, want 48 (default)", cfg.StaleAfterHours)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.StaleAfterHours != 48 {
		t.Errorf("StaleAfterHours = %d, want 48", cfg.StaleAfterHours)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{StaleAfterHours: 48, DBMaxOpenConns: 5}
	overlay := &Config{StaleAfterHours: 24}

	result := Merge(base, overlay)

	if result.StaleAfterHours != 24 {
		t.Errorf("StaleAfterHours = %d, want 24 (overlay)", result.StaleAfterHours)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
}

func TestMerge_BlankStringKeepsBase(t *testing.T) {
	base := &Config{SystemAccount: "INT_ISE2SN"}
	overlay := &Config{SystemAccount: "   "}

	if got := Merge(base, overlay).SystemAccount; got != "INT_ISE2SN" {
		t.Errorf("SystemAccount = %q, want INT_ISE2SN", got)
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"pulse_update", "automation_execute"}}
	overlay := &Config{DisabledTools: []string{"automation_execute", " quickview_open "}}

	result := Merge(base, overlay)

	if len(result.DisabledTools) != 3 {
		t.Errorf("DisabledTools length = %d, want 3 (merged, deduped)", len(result.DisabledTools))
	}

	has := make(map[string]bool)
	for _, s := range result.DisabledTools {
		has[s] = true
	}
	for _, want := range []string{"pulse_update", "automation_execute", "quickview_open"} {
		if !has[want] {
			t.Errorf("DisabledTools missing %q", want)
		}
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, DirName, "config.json")
	writeFile(t, configPath, `{}`)

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if found := FindRepoConfig(subdir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}

func TestPulseOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaleAfterHours = 24
	cfg.InsightDedup = "exact"

	opts := cfg.PulseOptions()
	if opts.StaleAfter != 24*time.Hour {
		t.Errorf("StaleAfter = %v, want 24h", opts.StaleAfter)
	}
	if opts.SystemAccount != "INT_ISE2SN" {
		t.Errorf("SystemAccount = %q", opts.SystemAccount)
	}
	if opts.Dedup != pulse.DedupExact {
		t.Errorf("Dedup = %q, want exact", opts.Dedup)
	}
}
