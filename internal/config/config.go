// Package config loads repeatbot settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// Token is the bot token used for the gateway and REST API.
	Token string `yaml:"token"`
	// PublicKey is the hex Ed25519 key for verifying interaction requests.
	// The interactions endpoint is disabled when empty.
	PublicKey string `yaml:"public_key"`
	Port      string `yaml:"port"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Discord DiscordConfig `yaml:"discord"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// DiscordConfig controls the platform client.
type DiscordConfig struct {
	APIURL            string        `yaml:"api_url"`
	CDNURL            string        `yaml:"cdn_url"`
	GatewayURL        string        `yaml:"gateway_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
}

// HTTPConfig controls the interactions server.
type HTTPConfig struct {
	InteractionRate  float64       `yaml:"interaction_rate"`
	InteractionBurst int           `yaml:"interaction_burst"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:      "8080",
		LogLevel:  "info",
		LogFormat: "text",
		Discord: DiscordConfig{
			APIURL:            "https://discord.com/api/v10",
			CDNURL:            "https://cdn.discordapp.com",
			RequestsPerSecond: 50,
			RequestTimeout:    15 * time.Second,
			ReconnectMax:      2 * time.Minute,
		},
		HTTP: HTTPConfig{
			InteractionRate:  5,
			InteractionBurst: 20,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds a Config from defaults, then path (skipped when empty or
// missing), then environment variables. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports settings the bot cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Token) == "" {
		errs = append(errs, errors.New("token is required (REPEATBOT_TOKEN or BOT_TOKEN)"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	} else if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("port %q is not a number", c.Port))
	}
	if c.Discord.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("discord.requests_per_second must be positive"))
	}
	if c.HTTP.InteractionRate <= 0 || c.HTTP.InteractionBurst <= 0 {
		errs = append(errs, errors.New("http interaction rate and burst must be positive"))
	}
	if c.Discord.RequestTimeout <= 0 {
		errs = append(errs, errors.New("discord.request_timeout must be positive"))
	}
	if c.Discord.ReconnectMax <= 0 {
		errs = append(errs, errors.New("discord.reconnect_max must be positive"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

// first returns the value of the first set variable in keys.
func first(lookup lookupFunc, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := lookup(k); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.Token, []string{"REPEATBOT_TOKEN", "BOT_TOKEN"}},
		{&cfg.PublicKey, []string{"REPEATBOT_PUBLIC_KEY", "PUBLIC_KEY"}},
		{&cfg.Port, []string{"REPEATBOT_PORT", "PORT"}},
		{&cfg.LogLevel, []string{"REPEATBOT_LOG_LEVEL"}},
		{&cfg.LogFormat, []string{"REPEATBOT_LOG_FORMAT"}},
		{&cfg.Discord.APIURL, []string{"REPEATBOT_API_URL"}},
		{&cfg.Discord.CDNURL, []string{"REPEATBOT_CDN_URL"}},
		{&cfg.Discord.GatewayURL, []string{"REPEATBOT_GATEWAY_URL"}},
	}
	for _, s := range strs {
		if v, ok := first(lookup, s.keys...); ok {
			*s.dst = v
		}
	}

	floats := []struct {
		dst *float64
		key string
	}{
		{&cfg.Discord.RequestsPerSecond, "REPEATBOT_REQUESTS_PER_SECOND"},
		{&cfg.HTTP.InteractionRate, "REPEATBOT_INTERACTION_RATE"},
	}
	for _, f := range floats {
		if v, ok := first(lookup, f.key); ok {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = n
		}
	}

	if v, ok := first(lookup, "REPEATBOT_INTERACTION_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REPEATBOT_INTERACTION_BURST: %w", err)
		}
		cfg.HTTP.InteractionBurst = n
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.Discord.RequestTimeout, "REPEATBOT_REQUEST_TIMEOUT"},
		{&cfg.Discord.ReconnectMax, "REPEATBOT_RECONNECT_MAX"},
		{&cfg.HTTP.ShutdownTimeout, "REPEATBOT_SHUTDOWN_TIMEOUT"},
	}
	for _, d := range durations {
		if v, ok := first(lookup, d.key); ok {
			n, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = n
		}
	}
	return nil
}
