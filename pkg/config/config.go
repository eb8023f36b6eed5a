package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Storefront StorefrontConfig
	Cart       CartConfig
	Display    DisplayConfig
	Session    SessionConfig
	Metrics    MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Storefront.ensureBaseURL(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTSYNC_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"CARTSYNC_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CARTSYNC_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CARTSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StorefrontConfig points the client at the remote cart service.
type StorefrontConfig struct {
	BaseURL        string        `envconfig:"CARTSYNC_STOREFRONT_BASE_URL"`
	Fake           bool          `envconfig:"CARTSYNC_STOREFRONT_FAKE" default:"false"`
	CSRFCookie     string        `envconfig:"CARTSYNC_CSRF_COOKIE" default:"csrftoken"`
	CSRFHeader     string        `envconfig:"CARTSYNC_CSRF_HEADER" default:"X-CSRFToken"`
	RequestTimeout time.Duration `envconfig:"CARTSYNC_REQUEST_TIMEOUT" default:"10s"`
}

type CartConfig struct {
	AddConfirmHold time.Duration `envconfig:"CARTSYNC_ADD_CONFIRM_HOLD" default:"1s"`
}

type DisplayConfig struct {
	MediaPrefix    string `envconfig:"CARTSYNC_MEDIA_PREFIX" default:"/media/"`
	Locale         string `envconfig:"CARTSYNC_LOCALE" default:"es-MX"`
	CurrencySymbol string `envconfig:"CARTSYNC_CURRENCY_SYMBOL" default:"$"`
}

// SessionConfig mirrors what the server-rendered page tells the scripts about the visitor.
type SessionConfig struct {
	Authenticated bool `envconfig:"CARTSYNC_AUTHENTICATED" default:"false"`
}

type MetricsConfig struct {
	Addr string `envconfig:"CARTSYNC_METRICS_ADDR" default:""`
}

// Enabled reports whether the driver should expose /metrics.
func (m MetricsConfig) Enabled() bool {
	return strings.TrimSpace(m.Addr) != ""
}

func (s *StorefrontConfig) ensureBaseURL() error {
	trimmed := strings.TrimSpace(s.BaseURL)
	if trimmed == "" {
		if s.Fake {
			return nil
		}
		return fmt.Errorf("either %s or %s=true is required", EnvStorefrontBaseURL, EnvStorefrontFake)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvStorefrontBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url, got %q", EnvStorefrontBaseURL, trimmed)
	}
	s.BaseURL = strings.TrimRight(trimmed, "/")
	return nil
}
