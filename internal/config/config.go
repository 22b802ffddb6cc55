// Package config provides runtime configuration values for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/inventory-coordinator/internal/model"
)

// Config holds configuration knobs for the HTTP server, the reservation
// workers and the inventory coordinator.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`

	InitialWorkerCount      int           `yaml:"worker_count"`
	WorkerMin               int           `yaml:"worker_min"`
	WorkerMax               int           `yaml:"worker_max"`
	ScaleInterval           time.Duration `yaml:"scale_interval"`
	ScaleUpBacklogPerWorker int           `yaml:"scale_up_backlog_per_worker"`
	ScaleDownIdleTicks      int           `yaml:"scale_down_idle_ticks"`
	QueueHighWatermark      int           `yaml:"queue_high_watermark"`

	RateLimit        int           `yaml:"rate_limit"`
	RateWindow       time.Duration `yaml:"rate_window"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`

	// Seed products are created at startup. Only settable from a file.
	Seed []model.Product `yaml:"seed"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, def time.Duration) time.Duration {
	ms := atoienv(key, int(def/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, def time.Duration) time.Duration {
	sec := atoienv(key, int(def/time.Second))
	return time.Duration(sec) * time.Second
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:                ":8080",
		ShutdownTimeout:         15 * time.Second,
		LogLevel:                "info",
		InitialWorkerCount:      3,
		WorkerMin:               3,
		WorkerMax:               8,
		ScaleInterval:           500 * time.Millisecond,
		ScaleUpBacklogPerWorker: 100,
		ScaleDownIdleTicks:      6,
		QueueHighWatermark:      5000,
		RateLimit:               10,
		RateWindow:              60 * time.Second,
		BreakerThreshold:        5,
		BreakerCooldown:         60 * time.Second,
		CacheTTL:                30 * time.Second,
	}
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return applyEnv(Defaults())
}

// LoadFile reads a YAML file over the defaults and then applies environment
// overrides. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	c := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		// Initial worker count follows worker_min unless set explicitly.
		if !hasKey(b, "worker_count") {
			c.InitialWorkerCount = c.WorkerMin
		}
	}
	c = applyEnv(c)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func applyEnv(c Config) Config {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.ShutdownTimeout = durenvs("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.WorkerMin = atoienv("WORKER_MIN", c.WorkerMin)
	c.WorkerMax = atoienv("WORKER_MAX", c.WorkerMax)
	if os.Getenv("WORKER_MIN") != "" && os.Getenv("WORKER_COUNT") == "" {
		c.InitialWorkerCount = c.WorkerMin
	}
	c.InitialWorkerCount = atoienv("WORKER_COUNT", c.InitialWorkerCount)
	c.ScaleInterval = durenvms("SCALE_INTERVAL_MS", c.ScaleInterval)
	c.ScaleUpBacklogPerWorker = atoienv("SCALE_UP_BACKLOG_PER_WORKER", c.ScaleUpBacklogPerWorker)
	c.ScaleDownIdleTicks = atoienv("SCALE_DOWN_IDLE_TICKS", c.ScaleDownIdleTicks)
	c.QueueHighWatermark = atoienv("QUEUE_HIGH_WATERMARK", c.QueueHighWatermark)
	c.RateLimit = atoienv("RATE_LIMIT", c.RateLimit)
	c.RateWindow = durenvs("RATE_WINDOW", c.RateWindow)
	c.BreakerThreshold = atoienv("BREAKER_THRESHOLD", c.BreakerThreshold)
	c.BreakerCooldown = durenvs("BREAKER_COOLDOWN", c.BreakerCooldown)
	c.CacheTTL = durenvs("CACHE_TTL", c.CacheTTL)
	return c
}

// Validate rejects settings the coordinator cannot run with.
func (c Config) Validate() error {
	switch {
	case c.RateLimit <= 0:
		return fmt.Errorf("rate_limit must be > 0, got %d", c.RateLimit)
	case c.RateWindow <= 0:
		return fmt.Errorf("rate_window must be > 0")
	case c.BreakerThreshold <= 0:
		return fmt.Errorf("breaker_threshold must be > 0, got %d", c.BreakerThreshold)
	case c.CacheTTL <= 0:
		return fmt.Errorf("cache_ttl must be > 0")
	case c.WorkerMin <= 0 || c.WorkerMax < c.WorkerMin:
		return fmt.Errorf("worker bounds invalid: min=%d max=%d", c.WorkerMin, c.WorkerMax)
	}
	for i, p := range c.Seed {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	return nil
}

func hasKey(doc []byte, key string) bool {
	var m map[string]any
	if err := yaml.Unmarshal(doc, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}
