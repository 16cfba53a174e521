package ws

import (
	"errors"
	"net/http"
	"os"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/config"
	"github.com/luciancaetano/vowsock/internal/delivery"
	"github.com/luciancaetano/vowsock/internal/limiter"
	"github.com/luciancaetano/vowsock/internal/logging"
	"github.com/luciancaetano/vowsock/internal/metrics"
	"github.com/luciancaetano/vowsock/internal/websocket"
)

type Config = config.Config
type RateLimitConfig = limiter.Config
type CheckOriginFn = websocket.CheckOriginFn
type ServerConfig = *websocket.ServerConfig

// New creates a server from a config built by NewConfig.
//
// Example:
//
//	cfg, err := ws.LoadConfig("vowsock.toml")
//	if err != nil {
//	    return err
//	}
//	sc, err := ws.NewConfig(cfg, store, ws.AllOrigins(), nil)
//	if err != nil {
//	    return err
//	}
//	server := ws.New(sc)
//	server.Start(ctx)
func New(cfg ServerConfig) vowsock.Server {
	return websocket.New(cfg)
}

// NewConfig wires cfg to its collaborators: the core bundles named in
// cfg.Core are read from disk, the logger follows cfg.Log and metrics are
// created when cfg.Metrics is enabled. A nil describer selects the header
// based default.
func NewConfig(cfg Config, store vowsock.ProjectStore, checkOrigin CheckOriginFn, describer vowsock.ClientDescriber) (ServerConfig, error) {
	if store == nil {
		return nil, errors.New("project store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dev, err := bundle(cfg.Core.DevelopmentFile, cfg.Core.DevelopmentHash)
	if err != nil {
		return nil, err
	}
	prod, err := bundle(cfg.Core.ProductionFile, cfg.Core.ProductionHash)
	if err != nil {
		return nil, err
	}

	sc := &websocket.ServerConfig{
		Config:      cfg,
		Store:       store,
		Describer:   describer,
		Development: dev,
		Production:  prod,
		Logger:      logging.New("vowsock", cfg.Log, os.Stderr),
		CheckOrigin: checkOrigin,
	}
	if cfg.Metrics.Enabled {
		sc.Metrics = metrics.New("vowsock")
	}
	return sc, nil
}

func bundle(path, hash string) (vowsock.CoreBundle, error) {
	if path == "" {
		return delivery.NewBundle("", hash), nil
	}
	return delivery.LoadBundle(path, hash)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a TOML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return limiter.DefaultConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() RateLimitConfig {
	return limiter.Disabled()
}
