// Package config loads amanrag configuration.
//
// Layers are applied in order, each overriding only what it sets:
//
//  1. built-in defaults (NewConfig)
//  2. user config ($XDG_CONFIG_HOME/amanrag/config.yaml)
//  3. project config (.amanrag.yaml or .amanrag.yml in the working directory)
//  4. AMANRAG_* environment variables
//
// The result is validated before it is returned.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ProjectConfigNames are the project config file names, in lookup order.
var ProjectConfigNames = []string{".amanrag.yaml", ".amanrag.yml"}

var validate = validator.New()

// Config is the complete amanrag configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	DataDir   string          `yaml:"data_dir" json:"data_dir"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	BM25      BM25Config      `yaml:"bm25" json:"bm25"`
	Dense     DenseConfig     `yaml:"dense" json:"dense"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Corpus    CorpusConfig    `yaml:"corpus" json:"corpus"`
	Synonyms  SynonymsConfig  `yaml:"synonyms" json:"synonyms"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// SearchConfig configures ranking and fusion.
type SearchConfig struct {
	// Alpha weights dense against lexical under the weighted policy.
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"gte=0,lte=1"`

	// RRFConstant is the RRF k. Higher values flatten rank differences.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant" validate:"gt=0"`

	// FusionPolicy is "weighted" or "rrf".
	FusionPolicy string `yaml:"fusion_policy" json:"fusion_policy" validate:"oneof=weighted rrf"`

	ProbeWindow         int     `yaml:"probe_window" json:"probe_window" validate:"gt=0"`
	DefaultTopK         int     `yaml:"default_top_k" json:"default_top_k" validate:"gt=0"`
	MaxTopK             int     `yaml:"max_top_k" json:"max_top_k" validate:"gt=0,lte=1000"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold" validate:"gte=0,lte=1"`
	EnableHybrid        bool    `yaml:"enable_hybrid" json:"enable_hybrid"`
	EnableMultiPath     bool    `yaml:"enable_multi_path" json:"enable_multi_path"`
	ExpandQuery         bool    `yaml:"expand_query" json:"expand_query"`
	VariantParallelism  int     `yaml:"variant_parallelism" json:"variant_parallelism" validate:"gt=0"`

	// LexicalBackend is "memory" (exact BM25) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend" validate:"oneof=memory bleve"`

	// Timeout bounds one search, e.g. "10s". "0" disables.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// BM25Config holds the Okapi BM25 parameters.
type BM25Config struct {
	K1 float64 `yaml:"k1" json:"k1" validate:"gt=0"`
	B  float64 `yaml:"b" json:"b" validate:"gte=0,lte=1"`
}

// DenseConfig configures the dense retrieval adapter.
type DenseConfig struct {
	// Backend is "hnsw" or "none". "none" forces lexical-only search.
	Backend string `yaml:"backend" json:"backend" validate:"oneof=hnsw none"`

	// Dimensions sizes the built-in hashed featurizer.
	Dimensions int `yaml:"dimensions" json:"dimensions" validate:"gt=0"`

	Workers         int    `yaml:"workers" json:"workers" validate:"gt=0"`
	Timeout         string `yaml:"timeout" json:"timeout"`
	BreakerFailures int    `yaml:"breaker_failures" json:"breaker_failures" validate:"gt=0"`
	BreakerReset    string `yaml:"breaker_reset" json:"breaker_reset"`
	CacheSize       int    `yaml:"cache_size" json:"cache_size" validate:"gt=0"`
}

// CacheConfig configures the search result cache.
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Backend       string `yaml:"backend" json:"backend" validate:"oneof=memory redis"`
	Size          int    `yaml:"size" json:"size" validate:"gt=0"`
	TTL           string `yaml:"ttl" json:"ttl"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db" validate:"gte=0"`
}

// CorpusConfig selects where documents come from: a file (Path) or a SQL
// table (Driver + DSN).
type CorpusConfig struct {
	Path          string `yaml:"path" json:"path"`
	Driver        string `yaml:"driver" json:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN           string `yaml:"dsn" json:"-"`
	Table         string `yaml:"table" json:"table"`
	Watch         bool   `yaml:"watch" json:"watch"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// SynonymsConfig configures the expansion table.
type SynonymsConfig struct {
	// Path is a YAML file of canonical: [alternates] merged over the defaults.
	Path        string `yaml:"path" json:"path"`
	UseDefaults bool   `yaml:"use_defaults" json:"use_defaults"`
}

// ServerConfig configures `amanrag serve`.
type ServerConfig struct {
	Transport   string `yaml:"transport" json:"transport" validate:"oneof=stdio"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
}

// TelemetryConfig configures the local query log.
type TelemetryConfig struct {
	QueryLog      bool   `yaml:"query_log" json:"query_log"`
	FlushInterval string `yaml:"flush_interval" json:"flush_interval"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Search: SearchConfig{
			Alpha:               0.5,
			RRFConstant:         60,
			FusionPolicy:        "weighted",
			ProbeWindow:         50,
			DefaultTopK:         10,
			MaxTopK:             100,
			SimilarityThreshold: 0,
			EnableHybrid:        true,
			EnableMultiPath:     true,
			ExpandQuery:         true,
			VariantParallelism:  4,
			LexicalBackend:      "memory",
			Timeout:             "10s",
		},
		BM25: BM25Config{K1: 1.5, B: 0.75},
		Dense: DenseConfig{
			Backend:         "hnsw",
			Dimensions:      256,
			Workers:         4,
			Timeout:         "5s",
			BreakerFailures: 5,
			BreakerReset:    "30s",
			CacheSize:       1000,
		},
		Cache: CacheConfig{
			Enabled: false,
			Backend: "memory",
			Size:    1000,
			TTL:     "30m",
		},
		Corpus: CorpusConfig{
			Table:         "documents",
			WatchDebounce: "500ms",
		},
		Synonyms: SynonymsConfig{UseDefaults: true},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Telemetry: TelemetryConfig{
			QueryLog:      true,
			FlushInterval: "1m",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanrag")
	}
	return filepath.Join(home, ".amanrag")
}

// GetUserConfigPath returns the user config path, honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// Load builds the configuration for the project in dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if path := FindProjectConfig(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindProjectConfig returns the project config path in dir, or "".
func FindProjectConfig(dir string) string {
	for _, name := range ProjectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// loadYAML decodes path over c. Keys absent from the file keep their
// current value, so booleans can be switched off by a later layer.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to read config file %s", path), err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return amerrors.New(amerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("Check the file against `amanrag config init` output")
	}
	return nil
}

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"AMANRAG_ALPHA", func(c *Config, v string) error { return setFloat(&c.Search.Alpha, v) }},
	{"AMANRAG_RRF_CONSTANT", func(c *Config, v string) error { return setInt(&c.Search.RRFConstant, v) }},
	{"AMANRAG_FUSION_POLICY", func(c *Config, v string) error { c.Search.FusionPolicy = strings.ToLower(v); return nil }},
	{"AMANRAG_BM25_K1", func(c *Config, v string) error { return setFloat(&c.BM25.K1, v) }},
	{"AMANRAG_BM25_B", func(c *Config, v string) error { return setFloat(&c.BM25.B, v) }},
	{"AMANRAG_PROBE_WINDOW", func(c *Config, v string) error { return setInt(&c.Search.ProbeWindow, v) }},
	{"AMANRAG_ENABLE_HYBRID", func(c *Config, v string) error { return setBool(&c.Search.EnableHybrid, v) }},
	{"AMANRAG_ENABLE_MULTI_PATH", func(c *Config, v string) error { return setBool(&c.Search.EnableMultiPath, v) }},
	{"AMANRAG_DENSE_BACKEND", func(c *Config, v string) error { c.Dense.Backend = strings.ToLower(v); return nil }},
	{"AMANRAG_DENSE_TIMEOUT", func(c *Config, v string) error { c.Dense.Timeout = v; return nil }},
	{"AMANRAG_CACHE_BACKEND", func(c *Config, v string) error {
		c.Cache.Backend = strings.ToLower(v)
		c.Cache.Enabled = true
		return nil
	}},
	{"AMANRAG_REDIS_ADDR", func(c *Config, v string) error { c.Cache.RedisAddr = v; return nil }},
	{"AMANRAG_CORPUS_PATH", func(c *Config, v string) error { c.Corpus.Path = v; return nil }},
	{"AMANRAG_CORPUS_DSN", func(c *Config, v string) error { c.Corpus.DSN = v; return nil }},
	{"AMANRAG_LOG_LEVEL", func(c *Config, v string) error { c.Server.LogLevel = strings.ToLower(v); return nil }},
	{"AMANRAG_METRICS_ADDR", func(c *Config, v string) error { c.Server.MetricsAddr = v; return nil }},
}

// applyEnvOverrides applies AMANRAG_* variables. A malformed number or
// boolean is a configuration error rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			return invalid(b.name, err.Error())
		}
	}
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", v)
	}
	*dst = f
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%q is not an integer", v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%q is not a boolean", v)
	}
	*dst = b
	return nil
}

// Validate checks struct constraints and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalid(fieldPath(fe.Namespace()),
				fmt.Sprintf("failed %q constraint (got %v)", fe.Tag(), fe.Value()))
		}
		return invalid("config", err.Error())
	}

	if c.Search.DefaultTopK > c.Search.MaxTopK {
		return invalid("search.default_top_k",
			fmt.Sprintf("%d exceeds search.max_top_k %d", c.Search.DefaultTopK, c.Search.MaxTopK))
	}

	durations := []struct {
		field string
		value string
	}{
		{"search.timeout", c.Search.Timeout},
		{"dense.timeout", c.Dense.Timeout},
		{"dense.breaker_reset", c.Dense.BreakerReset},
		{"cache.ttl", c.Cache.TTL},
		{"corpus.watch_debounce", c.Corpus.WatchDebounce},
		{"telemetry.flush_interval", c.Telemetry.FlushInterval},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			return invalid(d.field, err.Error())
		}
	}

	if c.Cache.Enabled && c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return invalid("cache.redis_addr", "required when cache.backend is redis")
	}

	if c.Corpus.Path != "" && c.Corpus.DSN != "" {
		return invalid("corpus", "set either corpus.path or corpus.dsn, not both")
	}
	if c.Corpus.DSN != "" && c.Corpus.Driver == "" {
		return invalid("corpus.driver", "required when corpus.dsn is set")
	}
	if c.Corpus.Watch && c.Corpus.Path == "" {
		return invalid("corpus.watch", "watching requires a file corpus (corpus.path)")
	}
	return nil
}

// fieldPath turns a validator namespace ("Config.Search.Alpha") into the
// YAML key path ("search.alpha").
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || (nextLower && runes[i-1] >= 'A' && runes[i-1] <= 'Z') {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func invalid(field, msg string) error {
	return amerrors.ConfigError(field+": "+msg, nil)
}

// parseDuration accepts Go durations, with "" and "0" meaning zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", s)
	}
	return d, nil
}

// Duration parses a duration field already accepted by Validate.
func Duration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LockDir returns the directory holding the serve lock.
func (c *Config) LockDir() string {
	return c.DataDir
}

// TelemetryPath returns the query log database path.
func (c *Config) TelemetryPath() string {
	return filepath.Join(c.DataDir, "telemetry.db")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
