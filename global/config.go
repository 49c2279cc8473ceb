package global

import (
	"crypto/ed25519"
	"os"

	"github.com/go-redis/redis_rate/v10"
	"gopkg.in/yaml.v3"
)

// Conf global config
var Conf Config

// Public and Private key of the server (loaded from serverKeysPath in conf.yaml).
// The private key signs bearer tokens, the public key verifies them.
var PublicKey ed25519.PublicKey
var PrivateKey ed25519.PrivateKey
var ServerKeysCreated int64

// Global rate limiter (transport-level admission control)
var RateLimiter *redis_rate.Limiter

type Config struct {
	Version        string           `yaml:"version"`
	Mode           string           `yaml:"mode"` // debug or release
	Scheme         string           `yaml:"scheme"`
	Host           string           `yaml:"host"`
	Port           int              `yaml:"port"`
	ServerKeysPath string           `yaml:"serverKeysPath"`
	Postgres       PostgresConfig   `yaml:"postgres"`
	Redis          RedisConfig      `yaml:"redis"`
	Prometheus     PrometheusConfig `yaml:"prometheus"`
	Rotation       RotationConfig   `yaml:"rotation"`
	Cors           CorsConfig       `yaml:"cors"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type PrometheusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RotationConfig carries the key-rotation policy knobs
type RotationConfig struct {
	DeprecationWindowDays   int      `yaml:"deprecationWindowDays"`   // rollback allowed this many days after completion
	DailyCap                int      `yaml:"dailyCap"`                // max rotation starts per owner per 24h
	CooldownMinutes         int      `yaml:"cooldownMinutes"`         // min minutes between rotation starts per owner
	AllowedAliasDomains     []string `yaml:"allowedAliasDomains"`     // alias namespaces permitted for newly created aliases
	AllowlistURL            string   `yaml:"allowlistUrl"`            // optional remote allowlist document
	AllowlistRefreshMinutes int      `yaml:"allowlistRefreshMinutes"` // remote allowlist refresh period
}

type CorsConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// LoadConfig reads the yaml configuration file into the global Conf
// and fills in rotation policy defaults.
func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, &Conf); err != nil {
		return err
	}
	applyDefaults(&Conf)
	return nil
}

func applyDefaults(c *Config) {
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Rotation.DeprecationWindowDays == 0 {
		c.Rotation.DeprecationWindowDays = 30
	}
	if c.Rotation.DailyCap == 0 {
		c.Rotation.DailyCap = 3
	}
	if c.Rotation.CooldownMinutes == 0 {
		c.Rotation.CooldownMinutes = 15
	}
	if c.Rotation.AllowlistRefreshMinutes == 0 {
		c.Rotation.AllowlistRefreshMinutes = 60
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
}
