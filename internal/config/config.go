// Package config provides unified configuration loading for memtrace.
// It supports loading from YAML files and environment variables, and
// converts the "locality:max_memory" process form used on the command line.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/memtrace/internal/logging"
	"github.com/nvandessel/memtrace/internal/process"
	"github.com/nvandessel/memtrace/internal/simulation"
)

// Output formats.
const (
	FormatText   = "text"
	FormatSQLite = "sqlite"
	FormatArrow  = "arrow"
)

// DefaultBatchSize is the number of rows per Arrow record batch.
const DefaultBatchSize = 4096

// DefaultSteps is the step count used when none is configured.
const DefaultSteps = 100000

// MemtraceConfig contains all memtrace configuration settings.
type MemtraceConfig struct {
	// Generator describes the run: how long, which seed, which processes.
	Generator GeneratorConfig `json:"generator" yaml:"generator"`

	// Output selects where and how records are written.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// GeneratorConfig configures the scheduler and its processes.
type GeneratorConfig struct {
	// Name labels the run in logs and the run catalog.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Steps is the number of scheduler steps.
	Steps int `json:"steps" yaml:"steps"`

	// Seed initializes the random source. 0 means derive one from the clock.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Processes lists one entry per simulated process.
	Processes []process.Config `json:"processes" yaml:"processes"`
}

// OutputConfig configures the trace sink.
type OutputConfig struct {
	// Format is "text" (default), "sqlite" or "arrow".
	Format string `json:"format" yaml:"format"`

	// Path is the output file. Empty means stdout for text; sqlite and arrow
	// require a path.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// BatchSize is the number of rows per Arrow record batch and per SQLite
	// insert transaction.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// LoggingConfig configures memtrace's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" and "trace" also write decisions.jsonl next to the output.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Default returns a MemtraceConfig with sensible defaults. It has no
// processes; at least one must come from a file, the environment or flags.
func Default() *MemtraceConfig {
	return &MemtraceConfig{
		Generator: GeneratorConfig{
			Steps: DefaultSteps,
		},
		Output: OutputConfig{
			Format:    FormatText,
			BatchSize: DefaultBatchSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.memtrace/config.yaml, or "" if the home directory
// cannot be determined.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".memtrace", "config.yaml")
}

// Load loads configuration from path and environment variables.
// Order: defaults -> path (or ~/.memtrace/config.yaml when path is empty)
// -> environment variables. An explicit path must exist; the default one
// is optional.
func Load(path string) (*MemtraceConfig, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*MemtraceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.Output.Path = expandEnvVars(config.Output.Path)

	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *MemtraceConfig) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *MemtraceConfig) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// Validate checks that the configuration is valid.
func (c *MemtraceConfig) Validate() error {
	if c.Generator.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Generator.Steps)
	}
	if err := c.Scenario().Validate(); err != nil {
		return err
	}

	switch c.Output.Format {
	case FormatText:
	case FormatSQLite, FormatArrow:
		if c.Output.Path == "" {
			return fmt.Errorf("output format %s requires an output path", c.Output.Format)
		}
	default:
		return fmt.Errorf("invalid output format: %s (valid: text, sqlite, arrow)", c.Output.Format)
	}

	if c.Output.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Output.BatchSize)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	return nil
}

// Scenario converts the generator settings into a simulation scenario. The
// seed is copied as is; callers resolve a zero seed first.
func (c *MemtraceConfig) Scenario() simulation.Scenario {
	procs := make([]process.Config, len(c.Generator.Processes))
	copy(procs, c.Generator.Processes)
	return simulation.Scenario{
		Name:      c.Generator.Name,
		Steps:     c.Generator.Steps,
		Seed:      c.Generator.Seed,
		Processes: procs,
	}
}

// ParseProcessSpec parses "locality:max_memory", e.g. "0.5:1024" or
// "0.95:64MiB". The memory part accepts plain byte counts, 0x-prefixed hex
// and humanized sizes.
func ParseProcessSpec(s string) (process.Config, error) {
	locPart, memPart, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return process.Config{}, fmt.Errorf("invalid process spec %q: want locality:max_memory", s)
	}

	locality, err := strconv.ParseFloat(locPart, 64)
	if err != nil {
		return process.Config{}, fmt.Errorf("invalid process spec %q: locality: %w", s, err)
	}
	if !(locality >= 0 && locality <= 1) {
		return process.Config{}, fmt.Errorf("invalid process spec %q: locality must be between 0 and 1", s)
	}

	mem, err := parseBytes(memPart)
	if err != nil {
		return process.Config{}, fmt.Errorf("invalid process spec %q: max memory: %w", s, err)
	}
	if mem == 0 {
		return process.Config{}, fmt.Errorf("invalid process spec %q: max memory must be positive", s)
	}

	return process.Config{Locality: locality, MaxMemory: mem}, nil
}

// ParseProcessSpecs parses every spec in args.
func ParseProcessSpecs(args []string) ([]process.Config, error) {
	procs := make([]process.Config, 0, len(args))
	for _, arg := range args {
		p, err := ParseProcessSpec(arg)
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// FormatProcessSpec renders p in the form ParseProcessSpec accepts.
func FormatProcessSpec(p process.Config) string {
	return strconv.FormatFloat(p.Locality, 'g', -1, 64) + ":" + strconv.FormatUint(p.MaxMemory, 10)
}

func parseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return humanize.ParseBytes(s)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *MemtraceConfig) error {
	if v := os.Getenv("MEMTRACE_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEMTRACE_STEPS: %w", err)
		}
		config.Generator.Steps = n
	}

	if v := os.Getenv("MEMTRACE_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return fmt.Errorf("MEMTRACE_SEED: %w", err)
		}
		config.Generator.Seed = n
	}

	if v := os.Getenv("MEMTRACE_PROCESSES"); v != "" {
		procs, err := ParseProcessSpecs(strings.Split(v, ","))
		if err != nil {
			return fmt.Errorf("MEMTRACE_PROCESSES: %w", err)
		}
		config.Generator.Processes = procs
	}

	if v := os.Getenv("MEMTRACE_FORMAT"); v != "" {
		config.Output.Format = v
	}

	if v := os.Getenv("MEMTRACE_OUTPUT"); v != "" {
		config.Output.Path = v
	}

	if v := os.Getenv("MEMTRACE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
