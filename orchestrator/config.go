package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"github.com/klendathu-run/klendathu/agent"
	"github.com/klendathu-run/klendathu/cachestore"
	"github.com/klendathu-run/klendathu/internal/tracelog"
)

// Logger is the minimal logging seam every component in this module
// accepts. A nil Logger is valid and logs nothing.
type Logger interface {
	Logf(format string, args ...any)
}

// Config controls one orchestrator's cache root, cache mode, agent
// adapter, and logging.
type Config struct {
	// Agent is the adapter that drives the agent against the Tool
	// Surface. Required.
	Agent agent.Adapter

	// CacheRoot is the directory cache entries are read from and
	// written to. Defaults to cachestore.ResolveRoot(".") if unset.
	CacheRoot string

	// CacheMode controls lookup/write behavior. Defaults to
	// cachestore.ParseMode(os.Getenv("KLENDATHU_CACHE_MODE")), which is
	// cachestore.Normal when the environment variable is unset.
	CacheMode cachestore.Mode

	// Logger receives diagnostic log lines. Defaults to a best-effort
	// logger gated on KLENDATHU_TRACE.
	Logger Logger

	// cacheModeSet distinguishes "CacheMode left at its zero value" from
	// "WithCacheMode(cachestore.Normal) called explicitly", so an
	// explicit option always wins over KLENDATHU_CACHE_MODE.
	cacheModeSet bool
}

// applyDefaults fills unset Config fields with their defaults. Callers
// must have already validated Config before calling this.
func (c *Config) applyDefaults() error {
	if c.Logger == nil {
		c.Logger = tracelog.New()
	}
	if !c.cacheModeSet {
		c.CacheMode = cachestore.ParseMode(os.Getenv("KLENDATHU_CACHE_MODE"))
	}
	if c.CacheRoot == "" {
		root, err := cachestore.ResolveRoot(".")
		if err != nil {
			return err
		}
		c.CacheRoot = root
	}
	return nil
}

// Validate reports ErrConfiguration, naming every missing required
// field, if Config is incomplete.
func (c *Config) Validate() error {
	var missing []string
	if c.Agent == nil {
		missing = append(missing, "Agent")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Config)

// WithAgent sets the agent adapter.
func WithAgent(a agent.Adapter) Option {
	return func(c *Config) { c.Agent = a }
}

// WithCacheRoot overrides the cache directory.
func WithCacheRoot(root string) Option {
	return func(c *Config) { c.CacheRoot = root }
}

// WithCacheMode overrides the cache mode, taking precedence over
// KLENDATHU_CACHE_MODE.
func WithCacheMode(mode cachestore.Mode) Option {
	return func(c *Config) { c.CacheMode = mode; c.cacheModeSet = true }
}

// WithLogger sets a custom logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) { c.Logger = logger }
}
