package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "SOULMATCH"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDriver   = DatabaseDriverSQLite
	defaultDatabaseDSN      = "soulmatch.db"
	defaultLogLevel         = "info"
	defaultLogEncoding      = "json"
	defaultTokenTTLMinutes  = 60
	defaultStorageRoot      = "storage"
	defaultStoragePublicURL = "/storage"
	defaultRedisChannel     = "soulmatch:messages"
)

const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress            string
	DatabaseDriver         string
	DatabaseDSN            string
	SigningSecret          string
	TokenTTL               time.Duration
	LogLevel               string
	LogEncoding            string
	StorageRoot            string
	StoragePublicBaseURL   string
	RedisAddress           string
	RedisChannel           string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("storage.root", defaultStorageRoot)
	configViper.SetDefault("storage.public_base_url", defaultStoragePublicURL)
	configViper.SetDefault("realtime.redis_channel", defaultRedisChannel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabaseDriver:         strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:            configViper.GetString("database.dsn"),
		SigningSecret:          configViper.GetString("auth.signing_secret"),
		TokenTTL:               time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		LogLevel:               configViper.GetString("log.level"),
		LogEncoding:            configViper.GetString("log.encoding"),
		StorageRoot:            configViper.GetString("storage.root"),
		StoragePublicBaseURL:   configViper.GetString("storage.public_base_url"),
		RedisAddress:           strings.TrimSpace(configViper.GetString("realtime.redis_address")),
		RedisChannel:           configViper.GetString("realtime.redis_channel"),
		BootstrapAdminEmail:    strings.TrimSpace(configViper.GetString("bootstrap.admin_email")),
		BootstrapAdminPassword: configViper.GetString("bootstrap.admin_password"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DatabaseDriverSQLite, DatabaseDriverPostgres, c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if strings.TrimSpace(c.StorageRoot) == "" {
		return fmt.Errorf("storage.root is required")
	}
	if c.RedisAddress != "" && strings.TrimSpace(c.RedisChannel) == "" {
		return fmt.Errorf("realtime.redis_channel is required when realtime.redis_address is set")
	}
	if c.BootstrapAdminEmail != "" && len(c.BootstrapAdminPassword) < 6 {
		return fmt.Errorf("bootstrap.admin_password must be at least 6 characters")
	}
	return nil
}
