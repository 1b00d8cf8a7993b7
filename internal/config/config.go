package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// TemplatePath points at a YAML (.yaml/.yml) or Markdown (.md) template file.
	// Empty means the built-in default template.
	TemplatePath string `json:"template_path,omitempty"`

	// WatchTemplate reloads the template when TemplatePath changes on disk.
	// Sessions still keep their snapshot until their next context build.
	WatchTemplate bool `json:"watch_template,omitempty"`

	// FallbackSection receives fragments whose section name does not resolve.
	// Empty disables the fallback: unresolved names fail the contribution.
	FallbackSection string `json:"fallback_section,omitempty"`

	// TaskMatchThreshold is the score a title must exceed to complete a task by title.
	TaskMatchThreshold float64 `json:"task_match_threshold,omitempty"`

	// DraftMaxChars caps the total characters held by one draft.
	DraftMaxChars int `json:"draft_max_chars,omitempty"`

	// InsightsDefaultDays is the window used when a request does not name one.
	InsightsDefaultDays int `json:"insights_default_days,omitempty"`

	// InsightsMaxDays bounds the requested window.
	InsightsMaxDays int `json:"insights_max_days,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "session", "journal", "task", "insights", "template".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "console" or "json".
	LogFormat string `json:"log_format,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TaskMatchThreshold:  0.5,
		DraftMaxChars:       20000,
		InsightsDefaultDays: 30,
		InsightsMaxDays:     365,
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.quire.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.quire) and repo (.quire) directories.
// Repo config is found by walking upward from startDir to find the nearest .quire/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing. A relative template_path in the repo
// config is resolved against the directory holding .quire.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if global.TemplatePath != "" && !filepath.IsAbs(global.TemplatePath) {
		global.TemplatePath = filepath.Join(globalDir, global.TemplatePath)
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}
	if repoConfigPath != "" && repo.TemplatePath != "" && !filepath.IsAbs(repo.TemplatePath) {
		repo.TemplatePath = filepath.Join(filepath.Dir(filepath.Dir(repoConfigPath)), repo.TemplatePath)
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .quire/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".quire", "config.json")
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
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.TemplatePath = firstString(overlay.TemplatePath, base.TemplatePath)
	result.FallbackSection = firstString(overlay.FallbackSection, base.FallbackSection)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)
	result.LogFormat = firstString(overlay.LogFormat, base.LogFormat)

	result.TaskMatchThreshold = overlay.TaskMatchThreshold
	if result.TaskMatchThreshold == 0 {
		result.TaskMatchThreshold = base.TaskMatchThreshold
	}

	result.DraftMaxChars = firstInt(overlay.DraftMaxChars, base.DraftMaxChars)
	result.InsightsDefaultDays = firstInt(overlay.InsightsDefaultDays, base.InsightsDefaultDays)
	result.InsightsMaxDays = firstInt(overlay.InsightsMaxDays, base.InsightsMaxDays)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.WatchTemplate = base.WatchTemplate || overlay.WatchTemplate

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
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
