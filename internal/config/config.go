// Package config loads service settings from an optional application.yaml and
// IMOBIX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	App struct {
		Name string `mapstructure:"name"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`

	GRPC struct {
		Port       string `mapstructure:"port"`
		TLSCert    string `mapstructure:"tls_cert"`
		TLSKey     string `mapstructure:"tls_key"`
		RequireTLS bool   `mapstructure:"require_tls"`
	} `mapstructure:"grpc"`

	HTTP struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"http"`

	Storage struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"storage"`

	Mongo struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`

	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`

	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		OwnerTTL time.Duration `mapstructure:"owner_ttl"`
	} `mapstructure:"redis"`

	JWT struct {
		Secret    string        `mapstructure:"secret"`
		Keys      string        `mapstructure:"keys"`
		ActiveKid string        `mapstructure:"active_kid"`
		Duration  time.Duration `mapstructure:"duration"`
	} `mapstructure:"jwt"`

	RateLimit struct {
		RPM             int `mapstructure:"rpm"`
		Burst           int `mapstructure:"burst"`
		EventsPerMinute int `mapstructure:"events_per_minute"`
		EventBurst      int `mapstructure:"event_burst"`
	} `mapstructure:"ratelimit"`

	// Properties holds "propertyId:ownerId,..." pairs for the memory driver.
	Properties struct {
		Owners string `mapstructure:"owners"`
	} `mapstructure:"properties"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "imobix-chat")
	v.SetDefault("app.env", "development")
	v.SetDefault("grpc.port", "50051")
	v.SetDefault("grpc.tls_cert", "")
	v.SetDefault("grpc.tls_key", "")
	v.SetDefault("grpc.require_tls", false)
	v.SetDefault("http.port", "8080")
	v.SetDefault("storage.driver", DriverMongo)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "imobix_chat")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.owner_ttl", 10*time.Minute)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.keys", "")
	v.SetDefault("jwt.active_kid", "")
	v.SetDefault("jwt.duration", 24*time.Hour)
	v.SetDefault("ratelimit.rpm", 60)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("ratelimit.events_per_minute", 120)
	v.SetDefault("ratelimit.event_burst", 20)
	v.SetDefault("properties.owners", "")
}

// Load reads application.yaml from the given directories (the working directory when
// none is given) and overlays IMOBIX_* environment variables. A missing file is fine.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("IMOBIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("configuration file loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no sensible default.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMongo:
		if c.Mongo.URI == "" {
			return errors.New("mongo.uri must be set for the mongo storage driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWT.Secret == "" && c.JWT.Keys == "" {
		return errors.New("either jwt.secret or jwt.keys must be set")
	}
	if c.GRPC.RequireTLS && (c.GRPC.TLSCert == "" || c.GRPC.TLSKey == "") {
		return errors.New("grpc.require_tls is set but tls_cert/tls_key are not configured")
	}
	return nil
}

// IsDevelopment reports whether human-readable console logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "" || c.App.Env == "development" || c.App.Env == "dev"
}

// PropertyOwners parses Properties.Owners into a property -> owner map.
func (c *Config) PropertyOwners() (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(c.Properties.Owners, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		property, owner, ok := strings.Cut(pair, ":")
		if !ok || property == "" || owner == "" {
			return nil, fmt.Errorf("invalid properties.owners entry %q", pair)
		}
		out[property] = owner
	}
	return out, nil
}
