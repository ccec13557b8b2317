package config

import (
	"cmp"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/STTM-NSU/futures-signal/internal/classifier"
	"github.com/STTM-NSU/futures-signal/internal/model"
	"gopkg.in/yaml.v3"
)

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Jitter      float64       `yaml:"jitter"` // fraction of interval
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

const (
	_pollIntervalDefault = 1 * time.Second
	_jitterDefault       = 0.1
	_maxRetriesDefault   = 3
	_backoffBaseDefault  = 500 * time.Millisecond
	_backoffMaxDefault   = 30 * time.Second
)

func (c *PollConfig) Setup() error {
	if c.Interval <= 0 {
		c.Interval = _pollIntervalDefault
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("jitter must be within [0, 1], got %v", c.Jitter)
	}
	if c.Jitter == 0 {
		c.Jitter = _jitterDefault
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = _maxRetriesDefault
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = _backoffBaseDefault
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = _backoffMaxDefault
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}

	return nil
}

type ExchangeConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	WeightPerMinute int           `yaml:"weight_per_minute"`
}

const (
	_baseURLDefault         = "https://fapi.binance.com"
	_timeoutDefault         = 10 * time.Second
	_weightPerMinuteDefault = 2400
)

func (c *ExchangeConfig) Setup() error {
	c.BaseURL = cmp.Or(c.BaseURL, _baseURLDefault)
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("%w: bad base url", err)
	}
	if c.Timeout <= 0 {
		c.Timeout = _timeoutDefault
	}
	if c.WeightPerMinute <= 0 {
		c.WeightPerMinute = _weightPerMinuteDefault
	}

	return nil
}

type ForecastConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ServerConfig struct {
	Port string `yaml:"port"` // empty disables the http surface
}

type Config struct {
	Symbol   string                `yaml:"symbol"`
	Interval model.Interval        `yaml:"interval"`
	Limit    int                   `yaml:"limit"`
	Timezone string                `yaml:"timezone"`
	Risk     classifier.RiskParams `yaml:"risk"`
	Poll     PollConfig            `yaml:"poll"`
	Exchange ExchangeConfig        `yaml:"exchange"`
	Forecast ForecastConfig        `yaml:"forecast"`
	Server   ServerConfig          `yaml:"server"`
	LogLevel string                `yaml:"log_level"`

	location *time.Location
}

const (
	_intervalDefault = model.OneMinute
	_timezoneDefault = "Asia/Kolkata"
	_logLevelDefault = "info"
)

// Default returns a config that only lacks a symbol.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
	}
}

func (c *Config) ValidateAndSetup() error {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if c.Interval == "" {
		c.Interval = _intervalDefault
	}
	interval, err := model.ParseInterval(string(c.Interval))
	if err != nil {
		return err
	}
	c.Interval = interval

	if c.Limit == 0 {
		c.Limit = model.DefaultLimit
	}
	if c.Limit < model.MinLimit || c.Limit > model.MaxLimit {
		return fmt.Errorf("limit must be within [%d, %d], got %d", model.MinLimit, model.MaxLimit, c.Limit)
	}

	c.Timezone = cmp.Or(c.Timezone, _timezoneDefault)
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("%w: can't load timezone", err)
	}
	c.location = loc

	if c.Risk.StopLossPct < 0 || c.Risk.TakeProfitPct < 0 || c.Risk.EntryPrice < 0 {
		return fmt.Errorf("risk parameters must not be negative")
	}
	for _, pct := range c.Risk.CustomPcts {
		if pct <= 0 {
			return fmt.Errorf("custom percentage must be positive, got %v", pct)
		}
	}

	if err := c.Poll.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup poll", err)
	}
	if err := c.Exchange.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup exchange", err)
	}

	c.LogLevel = cmp.Or(c.LogLevel, _logLevelDefault)

	return nil
}

// Location is the presentation timezone; valid after ValidateAndSetup.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Load reads a yaml config on top of Default. Validation is left to the
// caller so command line overrides can be applied first.
func Load(filename string) (Config, error) {
	cfg := Default()
	input, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("%w: can't read file", err)
	}

	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: can't unmarshal config", err)
	}

	return cfg, nil
}
