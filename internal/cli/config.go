package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/docweave/internal/catalog"
	"github.com/mark3labs/docweave/internal/compose"
	"github.com/mark3labs/docweave/internal/emitter/openapiemitter"
	"github.com/mark3labs/docweave/internal/server"
	"github.com/mark3labs/docweave/internal/source"
)

// Output formats for the build command.
const (
	FormatJSON    = "json"
	FormatOpenAPI = "openapi"
)

// Config captures all inputs that influence a command after merging
// defaults, config file values, and CLI overrides. Each command reads the
// fields it needs.
type Config struct {
	Root          string
	DataDir       string
	SettingsFile  string
	Out           string
	Format        string
	OpenAPIFormat string
	Workers       int
	MaxRefDepth   int
	CacheTTL      time.Duration
	DryRun        bool
	Force         bool
	Verbose       bool
	Addr          string
	Watch         bool
	Debounce      time.Duration
	ConfigPath    string
	// Files are the positional arguments of the deps command.
	Files []string

	stdout io.Writer
}

func defaultConfig() Config {
	return Config{
		Root:          ".",
		DataDir:       compose.DefaultDataDir,
		SettingsFile:  source.DefaultSettingsFile,
		Out:           "dist",
		Format:        FormatJSON,
		OpenAPIFormat: openapiemitter.FormatYAML,
		MaxRefDepth:   compose.DefaultMaxDepth,
		Addr:          ":8080",
		Debounce:      server.DefaultDebounce,
	}
}

// Stdout is where command results are printed.
func (c *Config) Stdout() io.Writer {
	if c.stdout == nil {
		return os.Stdout
	}
	return c.stdout
}

// builderOptions maps the config onto catalog builder options.
func (c *Config) builderOptions() []catalog.Option {
	opts := []catalog.Option{
		catalog.WithDataDir(c.DataDir),
		catalog.WithSettingsFile(c.SettingsFile),
		catalog.WithMaxRefDepth(c.MaxRefDepth),
		catalog.WithCacheTTL(c.CacheTTL),
	}
	if c.Workers > 0 {
		opts = append(opts, catalog.WithWorkers(c.Workers))
	}
	return opts
}

func resolveConfig(cmd *cobra.Command, args []string) (*Config, error) {
	cfg := defaultConfig()
	cfg.stdout = cmd.OutOrStdout()
	cfg.Files = args

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(cmd.Name()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFlagOverrides copies every flag the user set on the command line.
// Flags a command does not define are left alone.
func applyFlagOverrides(flags *pflag.FlagSet, cfg *Config) error {
	changed := func(name string) bool {
		return flags.Lookup(name) != nil && flags.Changed(name)
	}
	var err error
	str := func(name string, dst *string) {
		if err == nil && changed(name) {
			var v string
			v, err = flags.GetString(name)
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && changed(name) {
			*dst, err = flags.GetBool(name)
		}
	}
	integer := func(name string, dst *int) {
		if err == nil && changed(name) {
			*dst, err = flags.GetInt(name)
		}
	}
	duration := func(name string, dst *time.Duration) {
		if err == nil && changed(name) {
			*dst, err = flags.GetDuration(name)
		}
	}

	str("root", &cfg.Root)
	str("data-dir", &cfg.DataDir)
	str("settings-file", &cfg.SettingsFile)
	str("out", &cfg.Out)
	str("format", &cfg.Format)
	str("openapi-format", &cfg.OpenAPIFormat)
	integer("workers", &cfg.Workers)
	integer("max-ref-depth", &cfg.MaxRefDepth)
	duration("cache-ttl", &cfg.CacheTTL)
	boolean("dry-run", &cfg.DryRun)
	boolean("force", &cfg.Force)
	boolean("verbose", &cfg.Verbose)
	str("addr", &cfg.Addr)
	boolean("watch", &cfg.Watch)
	duration("debounce", &cfg.Debounce)
	return err
}

func (c *Config) normalize() {
	c.Root = strings.TrimSpace(c.Root)
	if c.Root == "" {
		c.Root = "."
	}
	c.DataDir = strings.Trim(strings.TrimSpace(c.DataDir), "/")
	c.SettingsFile = strings.TrimSpace(c.SettingsFile)
	c.Out = strings.TrimSpace(c.Out)
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.OpenAPIFormat = strings.ToLower(strings.TrimSpace(c.OpenAPIFormat))
	c.Addr = strings.TrimSpace(c.Addr)
	files := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		if f = source.NormalizePath(strings.TrimSpace(f)); f != "" {
			files = append(files, f)
		}
	}
	c.Files = files
}

func (c *Config) validate(command string) error {
	if st, err := os.Stat(c.Root); err != nil || !st.IsDir() {
		return usageErrorf("%s: --root %q is not a directory", command, c.Root)
	}
	if c.DataDir == "" {
		return usageErrorf("%s: --data-dir must not be empty", command)
	}
	if c.Workers < 0 {
		return usageErrorf("%s: --workers must not be negative", command)
	}
	if c.MaxRefDepth <= 0 {
		return usageErrorf("%s: --max-ref-depth must be positive", command)
	}
	if c.CacheTTL < 0 {
		return usageErrorf("%s: --cache-ttl must not be negative", command)
	}

	switch command {
	case "build":
		switch c.Format {
		case FormatJSON, FormatOpenAPI:
		default:
			return usageErrorf("build: unsupported --format %q (allowed: json, openapi)", c.Format)
		}
		switch c.OpenAPIFormat {
		case openapiemitter.FormatYAML, openapiemitter.FormatJSON:
		default:
			return usageErrorf("build: unsupported --openapi-format %q (allowed: yaml, json)", c.OpenAPIFormat)
		}
		if c.Out == "" {
			return newUsageError("build: --out must not be empty")
		}
	case "deps":
		if len(c.Files) == 0 {
			return newUsageError("deps: at least one file is required")
		}
	case "serve":
		if c.Addr == "" {
			return newUsageError("serve: --addr must not be empty")
		}
	}
	return nil
}

func applyConfigFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return usageErrorf("read config file %q: %v", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return usageErrorf("parse config file %q: %v", path, err)
	}

	for key, value := range raw {
		var err error
		switch normalizeKey(key) {
		case "root":
			cfg.Root, err = valueAsString(value)
		case "datadir":
			cfg.DataDir, err = valueAsString(value)
		case "settingsfile":
			cfg.SettingsFile, err = valueAsString(value)
		case "out":
			cfg.Out, err = valueAsString(value)
		case "format":
			cfg.Format, err = valueAsString(value)
		case "openapiformat":
			cfg.OpenAPIFormat, err = valueAsString(value)
		case "workers":
			cfg.Workers, err = valueAsInt(value)
		case "maxrefdepth":
			cfg.MaxRefDepth, err = valueAsInt(value)
		case "cachettl":
			cfg.CacheTTL, err = valueAsDuration(value)
		case "dryrun":
			cfg.DryRun, err = valueAsBool(value)
		case "force":
			cfg.Force, err = valueAsBool(value)
		case "verbose":
			cfg.Verbose, err = valueAsBool(value)
		case "addr":
			cfg.Addr, err = valueAsString(value)
		case "watch":
			cfg.Watch, err = valueAsBool(value)
		case "debounce":
			cfg.Debounce, err = valueAsDuration(value)
		default:
			return usageErrorf("config file %q: unknown field %q", path, key)
		}
		if err != nil {
			return usageErrorf("config field %q: %v", key, err)
		}
	}
	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n", "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func valueAsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid integer value %q", val)
		}
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// valueAsDuration accepts Go duration strings ("30s") or whole seconds.
func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", val)
		}
		return d, nil
	case int:
		return time.Duration(val) * time.Second, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}
