package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}
	if cfg.Storefront.BaseURL != "http://shop.local:8000" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Storefront.BaseURL)
	}
	if cfg.Storefront.CSRFCookie != "csrftoken" {
		t.Fatalf("unexpected csrf cookie %q", cfg.Storefront.CSRFCookie)
	}
	if cfg.Storefront.CSRFHeader != "X-CSRFToken" {
		t.Fatalf("unexpected csrf header %q", cfg.Storefront.CSRFHeader)
	}
	if got := cfg.Storefront.RequestTimeout; got != 10*time.Second {
		t.Fatalf("expected default timeout 10s, got %v", got)
	}
	if got := cfg.Cart.AddConfirmHold; got != time.Second {
		t.Fatalf("expected default confirm hold 1s, got %v", got)
	}
	if cfg.Display.MediaPrefix != "/media/" || cfg.Display.Locale != "es-MX" {
		t.Fatalf("unexpected display defaults %+v", cfg.Display)
	}
	if cfg.Metrics.Enabled() {
		t.Fatalf("metrics should be disabled without an address")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvRequestTimeout, "250ms")
	t.Setenv(EnvAuthenticated, "true")
	t.Setenv(EnvMetricsAddr, ":9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Storefront.RequestTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected timeout %v", cfg.Storefront.RequestTimeout)
	}
	if !cfg.Session.Authenticated {
		t.Fatalf("expected authenticated session")
	}
	if !cfg.Metrics.Enabled() {
		t.Fatalf("expected metrics enabled")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_BaseURLRules(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvStorefrontBaseURL, "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without base url or fake mode")
	}

	t.Setenv(EnvStorefrontFake, "true")
	if _, err := Load(); err != nil {
		t.Fatalf("fake mode should not need a base url: %v", err)
	}

	t.Setenv(EnvStorefrontFake, "false")
	t.Setenv(EnvStorefrontBaseURL, "ftp://shop.local")
	if _, err := Load(); err == nil {
		t.Fatal("expected non-http base url to be rejected")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "production")
	t.Setenv(EnvStorefrontBaseURL, "http://shop.local:8000/")
	t.Setenv(EnvStorefrontFake, "false")
	t.Setenv(EnvRequestTimeout, "10s")
	t.Setenv(EnvAuthenticated, "false")
	t.Setenv(EnvMetricsAddr, "")
}

func TestAppConfigEnvHelpers(t *testing.T) {
	devConfig := AppConfig{Env: "DEV"}
	if !devConfig.IsDev() {
		t.Fatalf("expected IsDev true for %q", devConfig.Env)
	}
	if devConfig.IsProd() {
		t.Fatalf("expected IsProd false for %q", devConfig.Env)
	}

	prodConfig := AppConfig{Env: "prod"}
	if !prodConfig.IsProd() {
		t.Fatalf("expected IsProd true for %q", prodConfig.Env)
	}
}
