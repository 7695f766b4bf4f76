// Package config carga la configuración del servicio: YAML con defaults y
// luego overrides por variables de entorno.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env" env:"APP_ENV"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr" env:"SERVER_ADDR"`
		PublicURL       string        `yaml:"public_url" env:"SERVER_PUBLIC_URL"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
		CookieDomain    string        `yaml:"cookie_domain" env:"SERVER_COOKIE_DOMAIN"`
		CookieSecure    bool          `yaml:"cookie_secure" env:"SERVER_COOKIE_SECURE"`
		// TrustProxy habilita X-Forwarded-For para identificar al cliente.
		TrustProxy bool `yaml:"trust_proxy" env:"SERVER_TRUST_PROXY"`
	} `yaml:"server"`

	Storage struct {
		Driver       string `yaml:"driver" env:"STORAGE_DRIVER"` // postgres | sqlite
		DSN          string `yaml:"dsn" env:"STORAGE_DSN"`
		MaxOpenConns int    `yaml:"max_open_conns" env:"STORAGE_MAX_OPEN_CONNS"`
		AutoMigrate  bool   `yaml:"auto_migrate" env:"STORAGE_AUTO_MIGRATE"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind" env:"CACHE_KIND"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr" env:"REDIS_ADDR"`
			Password string `yaml:"password" env:"REDIS_PASSWORD"`
			DB       int    `yaml:"db" env:"REDIS_DB"`
			Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Tenancies struct {
		File     string        `yaml:"file" env:"TENANCIES_FILE"`
		CacheTTL time.Duration `yaml:"cache_ttl" env:"TENANCIES_CACHE_TTL"`
	} `yaml:"tenancies"`

	Callback struct {
		ExchangeTimeout time.Duration `yaml:"exchange_timeout" env:"CALLBACK_EXCHANGE_TIMEOUT"`
		ResolveTimeout  time.Duration `yaml:"resolve_timeout" env:"CALLBACK_RESOLVE_TIMEOUT"`
	} `yaml:"callback"`

	Provider struct {
		DefaultAccessTokenTTL time.Duration `yaml:"default_access_token_ttl" env:"PROVIDER_DEFAULT_ACCESS_TOKEN_TTL"`
		HTTPTimeout           time.Duration `yaml:"http_timeout" env:"PROVIDER_HTTP_TIMEOUT"`
	} `yaml:"provider"`

	RateLimit struct {
		Disabled bool          `yaml:"disabled" env:"RATE_LIMIT_DISABLED"`
		Max      int           `yaml:"max" env:"RATE_LIMIT_MAX"`
		Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	} `yaml:"rate_limit"`

	Grant struct {
		CodeTTL    time.Duration `yaml:"code_ttl" env:"GRANT_CODE_TTL"`
		TokenTTL   time.Duration `yaml:"token_ttl" env:"GRANT_TOKEN_TTL"`
		SigningKey string        `yaml:"signing_key" env:"GRANT_SIGNING_KEY"`
	} `yaml:"grant"`

	Security struct {
		// base64(32 bytes) para sellar los tokens de providers en reposo
		TokenSealKey string `yaml:"token_seal_key" env:"SECURITY_TOKEN_SEAL_KEY"`
	} `yaml:"security"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`
}

// Load lee path (opcional), aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyDefaults()

	// Overrides por env: solo las variables presentes pisan el YAML.
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = "./data/oauthcallback.db"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "oauthcb"
	}
	if c.Tenancies.File == "" {
		c.Tenancies.File = "./tenancies.yaml"
	}
	if c.Tenancies.CacheTTL == 0 {
		c.Tenancies.CacheTTL = 30 * time.Second
	}
	if c.Callback.ExchangeTimeout == 0 {
		c.Callback.ExchangeTimeout = 10 * time.Second
	}
	if c.Callback.ResolveTimeout == 0 {
		c.Callback.ResolveTimeout = 5 * time.Second
	}
	if c.Provider.DefaultAccessTokenTTL == 0 {
		c.Provider.DefaultAccessTokenTTL = time.Hour
	}
	if c.Provider.HTTPTimeout == 0 {
		c.Provider.HTTPTimeout = 15 * time.Second
	}
	if c.Grant.CodeTTL == 0 {
		c.Grant.CodeTTL = 60 * time.Second
	}
	if c.Grant.TokenTTL == 0 {
		c.Grant.TokenTTL = time.Hour
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 60
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// IsProd reporta si el entorno es producción.
func (c *Config) IsProd() bool { return c.App.Env == "prod" }

// Validate verifica los valores críticos. Acumula todos los problemas.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be postgres or sqlite, got %q", c.Storage.Driver))
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required when cache.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind must be memory or redis, got %q", c.Cache.Kind))
	}
	if strings.TrimSpace(c.Server.PublicURL) == "" {
		errs = append(errs, errors.New("server.public_url is required (providers redirect to it)"))
	}
	if strings.TrimSpace(c.Security.TokenSealKey) == "" {
		errs = append(errs, errors.New("security.token_seal_key is required"))
	}
	if c.IsProd() && len(c.Grant.SigningKey) < 32 {
		errs = append(errs, errors.New("grant.signing_key must be at least 32 bytes in prod"))
	}
	for name, d := range map[string]time.Duration{
		"callback.exchange_timeout": c.Callback.ExchangeTimeout,
		"callback.resolve_timeout":  c.Callback.ResolveTimeout,
		"grant.code_ttl":            c.Grant.CodeTTL,
		"grant.token_ttl":           c.Grant.TokenTTL,
		"rate_limit.window":         c.RateLimit.Window,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.RateLimit.Max < 0 {
		errs = append(errs, errors.New("rate_limit.max must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
