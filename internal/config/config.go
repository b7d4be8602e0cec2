package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/confirm"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/policy"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPINE_"

// Storage and limiter drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

type AuditConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

type ConfirmConfig struct {
	Driver string        `yaml:"driver" env:"DRIVER"`
	TTL    time.Duration `yaml:"ttl" env:"TTL"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type RateLimitConfig struct {
	Driver    string `yaml:"driver" env:"DRIVER"`
	PerMinute int    `yaml:"per_minute" env:"PER_MINUTE"`
	Burst     int    `yaml:"burst" env:"BURST"`
}

type RouterConfig struct {
	TopN int `yaml:"top_n" env:"TOP_N"`
}

// PolicyConfig overrides the default rule tables. Empty fields keep the defaults.
// It is read from the YAML file only.
type PolicyConfig struct {
	PrivilegedNamespaces []string            `yaml:"privileged_namespaces"`
	PrivilegedRoles      []string            `yaml:"privileged_roles"`
	ReadOnlyRoles        map[string][]string `yaml:"read_only_roles"`
	HighRiskActions      []string            `yaml:"high_risk_actions"`
	Rules                []policy.Rule       `yaml:"rules"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
}

// Config holds the runtime configuration.
type Config struct {
	ListenAddr string          `yaml:"listen_addr" env:"LISTEN_ADDR"`
	Log        LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Audit      AuditConfig     `yaml:"audit" envPrefix:"AUDIT_"`
	Confirm    ConfirmConfig   `yaml:"confirm" envPrefix:"CONFIRM_"`
	Redis      RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Router     RouterConfig    `yaml:"router" envPrefix:"ROUTER_"`
	Policy     PolicyConfig    `yaml:"policy"`
	Auth       AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads an optional YAML file, applies SPINE_ environment overrides,
// applies defaults, and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9800"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = DriverMemory
	}
	if c.Confirm.Driver == "" {
		c.Confirm.Driver = DriverMemory
	}
	if c.Confirm.TTL == 0 {
		c.Confirm.TTL = confirm.DefaultTTL
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.RateLimit.Driver == "" {
		c.RateLimit.Driver = DriverMemory
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 60
	}
	if c.Router.TopN == 0 {
		c.Router.TopN = intent.DefaultTopN
	}
}

func (c *Config) validate() error {
	var problems []string

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}

	switch c.Audit.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Audit.DSN == "" {
			problems = append(problems, "audit.dsn is required for driver "+c.Audit.Driver)
		}
	default:
		problems = append(problems, fmt.Sprintf("audit.driver %q is not supported", c.Audit.Driver))
	}

	if c.Confirm.Driver != DriverMemory && c.Confirm.Driver != DriverRedis {
		problems = append(problems, fmt.Sprintf("confirm.driver %q is not supported", c.Confirm.Driver))
	}
	if c.Confirm.TTL < 0 {
		problems = append(problems, "confirm.ttl must be positive")
	}

	if c.RateLimit.Driver != DriverMemory && c.RateLimit.Driver != DriverRedis {
		problems = append(problems, fmt.Sprintf("rate_limit.driver %q is not supported", c.RateLimit.Driver))
	}
	if c.RateLimit.PerMinute < 0 {
		problems = append(problems, "rate_limit.per_minute must not be negative")
	}
	if c.RateLimit.Burst < 0 {
		problems = append(problems, "rate_limit.burst must not be negative")
	}

	if c.Router.TopN < 0 {
		problems = append(problems, "router.top_n must be positive")
	}

	for _, r := range c.Policy.PrivilegedRoles {
		if !knownRole(r) {
			problems = append(problems, fmt.Sprintf("policy.privileged_roles: unknown role %q", r))
		}
	}
	for r := range c.Policy.ReadOnlyRoles {
		if !knownRole(r) {
			problems = append(problems, fmt.Sprintf("policy.read_only_roles: unknown role %q", r))
		}
	}
	for i, r := range c.Policy.Rules {
		if r.Name == "" || r.Expr == "" {
			problems = append(problems, fmt.Sprintf("policy.rules[%d] needs a name and an expr", i))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		problems = append(problems, "auth.jwt_secret must be at least 16 bytes")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

func knownRole(r string) bool {
	switch domain.Role(r) {
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleManager, domain.RoleStaff, domain.RoleViewer, domain.RoleClient:
		return true
	}
	return false
}

// PolicyConfig merges the configured tables over policy.DefaultConfig.
func (c *Config) PolicyConfig() policy.Config {
	pc := policy.DefaultConfig()
	if len(c.Policy.PrivilegedNamespaces) > 0 {
		pc.PrivilegedNamespaces = c.Policy.PrivilegedNamespaces
	}
	if len(c.Policy.PrivilegedRoles) > 0 {
		pc.PrivilegedRoles = make([]domain.Role, len(c.Policy.PrivilegedRoles))
		for i, r := range c.Policy.PrivilegedRoles {
			pc.PrivilegedRoles[i] = domain.Role(r)
		}
	}
	if len(c.Policy.ReadOnlyRoles) > 0 {
		pc.DeniedActions = make(map[domain.Role][]string, len(c.Policy.ReadOnlyRoles))
		for r, patterns := range c.Policy.ReadOnlyRoles {
			pc.DeniedActions[domain.Role(r)] = patterns
		}
	}
	if len(c.Policy.HighRiskActions) > 0 {
		pc.HighRiskActions = c.Policy.HighRiskActions
	}
	pc.Rules = c.Policy.Rules
	return pc
}
