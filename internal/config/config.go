// Package config loads the server configuration from TOML.
//
// Every setting has a default; a file only needs the keys it changes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/limiter"
	"github.com/luciancaetano/vowsock/internal/logging"
)

// Config is the immutable snapshot handed to the server at construction.
type Config struct {
	Addr string
	// Path is the prefix the upgrade endpoint is mounted on.
	Path           string
	Compression    bool
	Debug          bool
	HandshakeDelay time.Duration
	SendQueue      int
	TrustProxy     bool
	RateLimit      limiter.Config
	Log            logging.Config
	Core           CoreConfig
	Metrics        MetricsConfig
	Projects       []vowsock.Project
}

// CoreConfig locates the development and production bundles.
type CoreConfig struct {
	DevelopmentFile string
	DevelopmentHash string
	ProductionFile  string
	ProductionHash  string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:           ":3000",
		Path:           "/",
		Compression:    true,
		HandshakeDelay: 100 * time.Millisecond,
		SendQueue:      256,
		RateLimit:      limiter.DefaultConfig(),
		Log:            logging.DefaultConfig(),
		Metrics:        MetricsConfig{Path: "/metrics"},
	}
}

type fileConfig struct {
	Addr           string        `toml:"addr"`
	Path           string        `toml:"path"`
	Compression    bool          `toml:"compression"`
	Debug          bool          `toml:"debug"`
	HandshakeDelay string        `toml:"handshake_delay"`
	SendQueue      int           `toml:"send_queue"`
	TrustProxy     bool          `toml:"trust_proxy"`
	RateLimit      fileRateLimit `toml:"rate_limit"`
	Log            fileLog       `toml:"log"`
	Core           fileCore      `toml:"core"`
	Metrics        fileMetrics   `toml:"metrics"`
	Projects       []fileProject `toml:"projects"`
}

type fileRateLimit struct {
	Enabled      bool           `toml:"enabled"`
	Max          int            `toml:"max"`
	Window       string         `toml:"window"`
	WindowMS     int64          `toml:"window_ms"`
	NoticeMax    int            `toml:"notice_max"`
	NoticeWindow string         `toml:"notice_window"`
	QuietTopics  []string       `toml:"quiet_topics"`
	Tokens       fileTokens     `toml:"tokens"`
	TopicCosts   map[string]int `toml:"topic_costs"`
}

// fileTokens names the costs of the core's built-in topics.
type fileTokens struct {
	PageGhost  int `toml:"page_ghost"`
	Logger     int `toml:"logger"`
	Modules    int `toml:"modules"`
	ClientInfo int `toml:"client_info"`
}

type fileLog struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
}

type fileCore struct {
	DevelopmentFile string `toml:"development_file"`
	DevelopmentHash string `toml:"development_hash"`
	ProductionFile  string `toml:"production_file"`
	ProductionHash  string `toml:"production_hash"`
}

type fileMetrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type fileProject struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	AutoExecute bool   `toml:"autoexecute"`
}

// Load reads path over the defaults.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return apply(Default(), raw, meta)
}

// Parse reads TOML text over the defaults.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("compression") {
		cfg.Compression = raw.Compression
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	if meta.IsDefined("handshake_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeDelay))
		if err != nil {
			return Config{}, fmt.Errorf("parse handshake_delay: %w", err)
		}
		cfg.HandshakeDelay = d
	}
	if meta.IsDefined("send_queue") {
		cfg.SendQueue = raw.SendQueue
	}
	if meta.IsDefined("trust_proxy") {
		cfg.TrustProxy = raw.TrustProxy
	}

	if err := applyRateLimit(&cfg.RateLimit, raw.RateLimit, meta); err != nil {
		return Config{}, err
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	cfg.Core = CoreConfig{
		DevelopmentFile: raw.Core.DevelopmentFile,
		DevelopmentHash: raw.Core.DevelopmentHash,
		ProductionFile:  raw.Core.ProductionFile,
		ProductionHash:  raw.Core.ProductionHash,
	}

	if meta.IsDefined("metrics", "enabled") {
		cfg.Metrics.Enabled = raw.Metrics.Enabled
	}
	if meta.IsDefined("metrics", "path") {
		cfg.Metrics.Path = raw.Metrics.Path
	}

	seen := make(map[string]bool, len(raw.Projects))
	for i, p := range raw.Projects {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return Config{}, fmt.Errorf("projects[%d]: missing name", i)
		}
		if seen[name] {
			return Config{}, fmt.Errorf("projects[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = name
		}
		cfg.Projects = append(cfg.Projects, vowsock.Project{
			ID:     id,
			Name:   name,
			Config: vowsock.ProjectConfig{AutoExecute: p.AutoExecute},
		})
	}

	return cfg, cfg.Validate()
}

func applyRateLimit(rl *limiter.Config, raw fileRateLimit, meta toml.MetaData) error {
	if meta.IsDefined("rate_limit", "enabled") {
		rl.Enabled = raw.Enabled
	}
	if meta.IsDefined("rate_limit", "max") {
		rl.Max = raw.Max
	}
	if meta.IsDefined("rate_limit", "window") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Window))
		if err != nil {
			return fmt.Errorf("parse rate_limit.window: %w", err)
		}
		rl.Window = d
	}
	if meta.IsDefined("rate_limit", "window_ms") {
		rl.Window = time.Duration(raw.WindowMS) * time.Millisecond
	}
	if meta.IsDefined("rate_limit", "notice_max") {
		rl.NoticeMax = raw.NoticeMax
	}
	if meta.IsDefined("rate_limit", "notice_window") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.NoticeWindow))
		if err != nil {
			return fmt.Errorf("parse rate_limit.notice_window: %w", err)
		}
		rl.NoticeWindow = d
	}
	if meta.IsDefined("rate_limit", "quiet_topics") {
		rl.Quiet = append([]string(nil), raw.QuietTopics...)
	}

	costs := make(map[string]int, len(rl.Costs))
	for topic, n := range rl.Costs {
		costs[topic] = n
	}
	named := []struct {
		key    string
		value  int
		topics []string
	}{
		{"page_ghost", raw.Tokens.PageGhost, []string{vowsock.TopicPageGhost}},
		{"logger", raw.Tokens.Logger, []string{vowsock.TopicLogger, vowsock.TopicError}},
		{"modules", raw.Tokens.Modules, []string{vowsock.TopicModule}},
		{"client_info", raw.Tokens.ClientInfo, []string{vowsock.TopicClientInfo}},
	}
	for _, n := range named {
		if !meta.IsDefined("rate_limit", "tokens", n.key) {
			continue
		}
		for _, topic := range n.topics {
			costs[topic] = n.value
		}
	}
	for topic, n := range raw.TopicCosts {
		costs[topic] = n
	}
	rl.Costs = costs
	return nil
}

// Validate checks values that would make the server misbehave.
func (c Config) Validate() error {
	if c.HandshakeDelay < 0 {
		return fmt.Errorf("handshake_delay must not be negative")
	}
	if c.SendQueue <= 0 {
		return fmt.Errorf("send_queue must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Max <= 0 {
			return fmt.Errorf("rate_limit.max must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.window must be positive")
		}
	}
	for topic, n := range c.RateLimit.Costs {
		if n < 0 {
			return fmt.Errorf("rate_limit cost of %q must not be negative", topic)
		}
	}
	return nil
}
