package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimal = `
database:
  user: fieldnav
  password: secret
  database: fieldnav
rabbitmq:
  user: guest
  password: guest
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Errorf("database defaults: %+v", cfg.Database)
	}
	if cfg.Navigation.RecalcThresholdMeters != 50 || cfg.Navigation.ArrivalRadiusMeters != 30 {
		t.Errorf("navigation defaults: %+v", cfg.Navigation)
	}
	if cfg.Navigation.RouteTimeout != 15*time.Second {
		t.Errorf("route timeout = %v", cfg.Navigation.RouteTimeout)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Cache.GeocodeTTL != 24*time.Hour {
		t.Errorf("redis/cache defaults: %+v %+v", cfg.Redis, cfg.Cache)
	}
	if cfg.JWT.SecretKey == "" {
		t.Error("jwt secret not generated")
	}
	if cfg.Navigation.Fallback != nil {
		t.Error("fallback should be nil when not configured")
	}
}

func TestLoadParsesNavigationSection(t *testing.T) {
	body := minimal + `
navigation:
  recalc_threshold_meters: 75
  route_timeout: 5s
  traffic_aware: true
  fallback:
    latitude: 33.749
    longitude: -84.39
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	n := cfg.Navigation
	if n.RecalcThresholdMeters != 75 || n.RouteTimeout != 5*time.Second || !n.TrafficAware {
		t.Fatalf("navigation = %+v", n)
	}
	if n.Fallback == nil || n.Fallback.Latitude != 33.749 {
		t.Fatalf("fallback = %+v", n.Fallback)
	}
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	t.Setenv(EnvDBPassword, "from-env")
	t.Setenv(EnvJWTSecret, "jwt-from-env")

	cfg, err := LoadFromFile(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Database.Password != "from-env" || cfg.JWT.SecretKey != "jwt-from-env" {
		t.Fatalf("env overrides not applied: db=%q jwt=%q", cfg.Database.Password, cfg.JWT.SecretKey)
	}
}

func TestLoadCollectsProblems(t *testing.T) {
	body := `
database:
  port: 70000
rabbitmq:
  user: guest
  password: guest
navigation:
  fallback:
    latitude: 123
    longitude: 0
services:
  navigation_service: 9000
  metrics: 9000
`
	_, err := LoadFromFile(writeConfig(t, body))
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"database.port", "database.user", "database.password", "navigation.fallback.latitude", "share port 9000"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
