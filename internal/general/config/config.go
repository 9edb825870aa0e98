package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host" validate:"required"`
		Port     int    `yaml:"port" validate:"gte=1,lte=65535"`
		User     string `yaml:"user" validate:"required"`
		Password string `yaml:"password" validate:"required"`
		Name     string `yaml:"database" validate:"required"`
		MaxConns int32  `yaml:"max_conns" validate:"gte=1"`
	} `yaml:"database"`
	RabbitMQ struct {
		Host     string `yaml:"host" validate:"required"`
		Port     int    `yaml:"port" validate:"gte=1,lte=65535"`
		User     string `yaml:"user" validate:"required"`
		Password string `yaml:"password" validate:"required"`
		VHost    string `yaml:"vhost"`
	} `yaml:"rabbitmq"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"required,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`
	Services struct {
		NavigationServicePort int `yaml:"navigation_service" validate:"gte=1,lte=65535"`
		MetricsPort           int `yaml:"metrics" validate:"gte=1,lte=65535"`
		GRPCHealthPort        int `yaml:"grpc_health" validate:"gte=1,lte=65535"`
	} `yaml:"services"`
	JWT struct {
		SecretKey string        `yaml:"secret_key"`
		TTL       time.Duration `yaml:"ttl" validate:"gt=0"`
		DevTokens bool          `yaml:"dev_tokens"` // mounts POST /tokens
	} `yaml:"jwt"`
	Navigation Navigation `yaml:"navigation"`
	Providers  struct {
		OSRMBaseURL      string        `yaml:"osrm_base_url" validate:"required,url"`
		NominatimBaseURL string        `yaml:"nominatim_base_url" validate:"required,url"`
		UserAgent        string        `yaml:"user_agent" validate:"required"`
		HTTPTimeout      time.Duration `yaml:"http_timeout" validate:"gt=0"`
	} `yaml:"providers"`
	Cache struct {
		GeocodeTTL time.Duration `yaml:"geocode_ttl" validate:"gt=0"`
		RoleTTL    time.Duration `yaml:"role_ttl" validate:"gt=0"`
	} `yaml:"cache"`
	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// Navigation holds the session tuning shared by every surface.
type Navigation struct {
	RecalcThresholdMeters float64       `yaml:"recalc_threshold_meters" validate:"gt=0"`
	ArrivalRadiusMeters   float64       `yaml:"arrival_radius_meters" validate:"gt=0"`
	RouteTimeout          time.Duration `yaml:"route_timeout" validate:"gt=0"`
	GeocodeTimeout        time.Duration `yaml:"geocode_timeout" validate:"gt=0"`
	TrafficAware          bool          `yaml:"traffic_aware"`
	MailboxSize           int           `yaml:"mailbox_size" validate:"gte=1"`
	HighAccuracy          bool          `yaml:"high_accuracy"`
	PositionMaxAge        time.Duration `yaml:"position_max_age" validate:"gte=0"`
	PositionTimeout       time.Duration `yaml:"position_timeout" validate:"gte=0"`
	Fallback              *struct {
		Latitude  float64 `yaml:"latitude" validate:"latitude"`
		Longitude float64 `yaml:"longitude" validate:"longitude"`
	} `yaml:"fallback"`
	HistoryInterval time.Duration `yaml:"history_interval" validate:"gte=0"`
}

// Environment variables that override secrets from the file.
const (
	EnvDBPassword       = "FIELDNAV_DB_PASSWORD"
	EnvRabbitMQPassword = "FIELDNAV_RABBITMQ_PASSWORD"
	EnvJWTSecret        = "FIELDNAV_JWT_SECRET"
)

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPassword); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv(EnvRabbitMQPassword); v != "" {
		cfg.RabbitMQ.Password = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.JWT.SecretKey = v
	}
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.VHost == "" {
		cfg.RabbitMQ.VHost = "/"
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	// Services
	if cfg.Services.NavigationServicePort == 0 {
		cfg.Services.NavigationServicePort = 3010
	}
	if cfg.Services.MetricsPort == 0 {
		cfg.Services.MetricsPort = 9110
	}
	if cfg.Services.GRPCHealthPort == 0 {
		cfg.Services.GRPCHealthPort = 50061
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 12 * time.Hour
	}

	// Navigation
	n := &cfg.Navigation
	if n.RecalcThresholdMeters == 0 {
		n.RecalcThresholdMeters = 50
	}
	if n.ArrivalRadiusMeters == 0 {
		n.ArrivalRadiusMeters = 30
	}
	if n.RouteTimeout == 0 {
		n.RouteTimeout = 15 * time.Second
	}
	if n.GeocodeTimeout == 0 {
		n.GeocodeTimeout = 10 * time.Second
	}
	if n.MailboxSize == 0 {
		n.MailboxSize = 64
	}
	if n.HistoryInterval == 0 {
		n.HistoryInterval = 15 * time.Second
	}

	// Providers
	if cfg.Providers.OSRMBaseURL == "" {
		cfg.Providers.OSRMBaseURL = "https://router.project-osrm.org"
	}
	if cfg.Providers.NominatimBaseURL == "" {
		cfg.Providers.NominatimBaseURL = "https://nominatim.openstreetmap.org"
	}
	if cfg.Providers.UserAgent == "" {
		cfg.Providers.UserAgent = "fieldnav/1.0"
	}
	if cfg.Providers.HTTPTimeout == 0 {
		cfg.Providers.HTTPTimeout = 10 * time.Second
	}

	// Cache
	if cfg.Cache.GeocodeTTL == 0 {
		cfg.Cache.GeocodeTTL = 24 * time.Hour
	}
	if cfg.Cache.RoleTTL == 0 {
		cfg.Cache.RoleTTL = 5 * time.Minute
	}
}

var structValidator = newValidator()

// newValidator reports fields by their yaml keys.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", yamlPath(fe.Namespace()), fe.Tag()))
		}
	}

	ports := map[int]string{}
	for name, port := range map[string]int{
		"services.navigation_service": c.Services.NavigationServicePort,
		"services.metrics":            c.Services.MetricsPort,
		"services.grpc_health":        c.Services.GRPCHealthPort,
	} {
		if other, dup := ports[port]; dup {
			problems = append(problems, fmt.Sprintf("%s and %s share port %d", other, name, port))
		}
		ports[port] = name
	}

	if c.Navigation.ArrivalRadiusMeters >= c.Navigation.RecalcThresholdMeters*10 {
		problems = append(problems, "navigation.arrival_radius_meters is unreasonably large")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// yamlPath drops the root type name: "Config.database.port" becomes "database.port".
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
