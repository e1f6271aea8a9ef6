package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Layout selects how migrated blocks are written to disk
type Layout string

const (
	// LayoutSingle writes one {Name}.{Type}.mars file per block.
	LayoutSingle Layout = "single"
	// LayoutSections writes one directory per block with one file per section.
	LayoutSections Layout = "sections"
)

// DefaultPaths are tried in order when no config path is given.
var DefaultPaths = []string{"config/default.yaml", "config/default.json"}

// Config represents the complete marsx configuration. Field names match the
// camelCase keys used by existing project config files.
type Config struct {
	Production     bool           `yaml:"production"`
	Port           int            `yaml:"port"`
	ProjectName    string         `yaml:"projectName"`
	BlocksDir      string         `yaml:"blocksDir"`
	CacheDir       string         `yaml:"cacheDir"`
	ImportProjects []ImportSource `yaml:"importProjects"`
	Booter         string         `yaml:"booter"`
	Compile        CommandConfig  `yaml:"compile"`
	Runtime        CommandConfig  `yaml:"runtime"`
	Migrate        MigrateConfig  `yaml:"migrate"`
	FetchTimeout   time.Duration  `yaml:"fetchTimeout"`
}

// ImportSource references a remote project whose blocks are loaded
// alongside the local ones.
type ImportSource struct {
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	Revision string `yaml:"git_commit_ish" json:"git_commit_ish,omitempty"`
}

// CommandConfig configures an external program
type CommandConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// MigrateConfig configures legacy block migration
type MigrateConfig struct {
	Layout           Layout `yaml:"layout"`
	SaveEmptySources *bool  `yaml:"saveEmptySources"`
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// ResolvePath returns path if set, otherwise the first existing entry of
// DefaultPaths.
func ResolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	for _, candidate := range DefaultPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("config file not found, ensure you have %s", strings.Join(DefaultPaths, " or "))
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// YAML is a superset of JSON, so default.json configs parse too
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()

	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.ProjectName = os.ExpandEnv(c.ProjectName)
	c.BlocksDir = os.ExpandEnv(c.BlocksDir)
	c.CacheDir = os.ExpandEnv(c.CacheDir)
	c.Booter = os.ExpandEnv(c.Booter)
	c.Compile.Command = os.ExpandEnv(c.Compile.Command)
	c.Runtime.Command = os.ExpandEnv(c.Runtime.Command)
	for i := range c.ImportProjects {
		imp := &c.ImportProjects[i]
		imp.Name = os.ExpandEnv(imp.Name)
		imp.URL = os.ExpandEnv(imp.URL)
		imp.APIKey = os.ExpandEnv(imp.APIKey)
		imp.Revision = os.ExpandEnv(imp.Revision)
	}
}

// applyEnvOverrides applies MARSX_* variables on top of the file values.
func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MARSX_PROJECT_NAME"); ok {
		c.ProjectName = v
	}
	if v, ok := lookup("MARSX_BLOCKS_DIR"); ok {
		c.BlocksDir = v
	}
	if v, ok := lookup("MARSX_CACHE_DIR"); ok {
		c.CacheDir = v
	}
	if v, ok := lookup("MARSX_BOOTER"); ok {
		c.Booter = v
	}
	if v, ok := lookup("MARSX_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MARSX_PORT: %w", err)
		}
		c.Port = port
	}
	if v, ok := lookup("MARSX_PRODUCTION"); ok {
		production, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MARSX_PRODUCTION: %w", err)
		}
		c.Production = production
	}
	if v, ok := lookup("MARSX_IMPORT_PROJECTS"); ok {
		var imports []ImportSource
		if err := json.Unmarshal([]byte(v), &imports); err != nil {
			return fmt.Errorf("MARSX_IMPORT_PROJECTS: %w", err)
		}
		c.ImportProjects = imports
	}
	return nil
}

// applyDefaults fills in zero-value fields and resolves directories to
// absolute paths.
func (c *Config) applyDefaults() error {
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.BlocksDir == "" {
		c.BlocksDir = "blocks"
	}
	if c.CacheDir == "" {
		c.CacheDir = ".cache"
	}
	if c.Booter == "" {
		c.Booter = "Booter"
	}
	if c.Compile.Command == "" {
		c.Compile.Command = "esbuild"
	}
	if c.Runtime.Command == "" {
		c.Runtime = CommandConfig{Command: "node", Args: []string{"--enable-source-maps"}}
	}
	if c.Migrate.Layout == "" {
		c.Migrate.Layout = LayoutSingle
	}
	if c.Migrate.SaveEmptySources == nil {
		save := true
		c.Migrate.SaveEmptySources = &save
	}

	var err error
	if c.BlocksDir, err = filepath.Abs(c.BlocksDir); err != nil {
		return fmt.Errorf("failed to resolve blocksDir: %w", err)
	}
	if c.CacheDir, err = filepath.Abs(c.CacheDir); err != nil {
		return fmt.Errorf("failed to resolve cacheDir: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors and reports all of them
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.ProjectName == "" {
		add("projectName is required")
	}
	if c.Port <= 0 {
		add("port must be a positive integer: %d", c.Port)
	}
	if c.BlocksDir == "" {
		add("blocksDir is required")
	}
	if c.CacheDir == "" {
		add("cacheDir is required")
	}
	if c.FetchTimeout < 0 {
		add("fetchTimeout must not be negative: %s", c.FetchTimeout)
	}

	switch c.Migrate.Layout {
	case LayoutSingle, LayoutSections:
		// valid
	default:
		add("invalid migrate.layout: %s (must be single or sections)", c.Migrate.Layout)
	}

	seen := map[string]bool{}
	for i, imp := range c.ImportProjects {
		prefix := fmt.Sprintf("importProjects[%d]", i)
		if imp.Name == "" {
			add("%s.name is required", prefix)
		} else if seen[imp.Name] {
			add("%s.name %q is used more than once", prefix, imp.Name)
		}
		seen[imp.Name] = true

		if imp.URL == "" {
			add("%s.url is required", prefix)
		} else if err := validateURL(imp.URL); err != nil {
			add("%s.url %v", prefix, err)
		}
		if imp.APIKey == "" {
			add("%s.api_key is required", prefix)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

// ImportsCacheDir returns the directory holding cached import results
func (c *Config) ImportsCacheDir() string {
	return filepath.Join(c.CacheDir, "imports")
}

// CompiledDir returns the directory holding compiled sources
func (c *Config) CompiledDir() string {
	return filepath.Join(c.CacheDir, "compiled")
}

// BooterDir returns the directory holding the launcher manifest
func (c *Config) BooterDir() string {
	return filepath.Join(c.CacheDir, "booter")
}

// SaveEmptySources reports whether empty source sections are written.
func (c *Config) SaveEmptySources() bool {
	return c.Migrate.SaveEmptySources == nil || *c.Migrate.SaveEmptySources
}
