// Package config supplies the server and client binaries' CLI/config
// layer. Grounded on Sentinel-Gate-Sentinelgate's internal/config
// (cobra persistent flags + viper env binding, mapstructure struct
// tags), generalized from a single YAML-file schema to this system's
// two binaries' flag sets.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds every setting the server binary needs, bindable
// from flags or MODELGATE_-prefixed environment variables, in that
// order of precedence (flags win). No config file is read.
type ServerConfig struct {
	ControlAddr string `mapstructure:"control_addr"`
	ProxyAddr   string `mapstructure:"proxy_addr"`
	PublicAddr  string `mapstructure:"public_addr"`
	AdminAddr   string `mapstructure:"admin_addr"`

	// PublicAPIKey is the shared secret the public router compares
	// incoming Authorization headers against (spec's reference default
	// is "abc123"). AdminAPIKey guards the separate, operator-only
	// admin HTTP API — the two are deliberately distinct secrets.
	PublicAPIKey string `mapstructure:"public_api_key"`
	AdminAPIKey  string `mapstructure:"admin_api_key"`

	SQLitePath string `mapstructure:"sqlite_path"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	JWTSigningKey string `mapstructure:"jwt_signing_key"`

	StorageBackend string `mapstructure:"storage_backend"` // "sqlite" or "dynamodb"
	AWSRegion      string `mapstructure:"aws_region"`
	DynamoDBTable  string `mapstructure:"dynamodb_table"`

	PairEvictAfter time.Duration `mapstructure:"pair_evict_after"`

	Monitor bool `mapstructure:"monitor"`
}

// Default listener ports for the four server-side roles.
const (
	DefaultControlPort = "17000"
	DefaultProxyPort   = "17001"
	DefaultPublicPort  = "18080"
	DefaultAdminPort   = "18081"
)

// DefaultPublicAPIKey matches the reference implementation's default
// shared secret, used throughout spec.md's own worked scenarios
// ("Authorization: Bearer abc123").
const DefaultPublicAPIKey = "abc123"

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ControlAddr:    ":" + DefaultControlPort,
		ProxyAddr:      ":" + DefaultProxyPort,
		PublicAddr:     ":" + DefaultPublicPort,
		AdminAddr:      ":" + DefaultAdminPort,
		PublicAPIKey:   DefaultPublicAPIKey,
		SQLitePath:     "modelgate.db",
		RedisAddr:      "localhost:6379",
		StorageBackend: "sqlite",
		AWSRegion:      "us-east-1",
		DynamoDBTable:  "ModelGate_Clients",
		PairEvictAfter: 30 * time.Second,
	}
}

// NewServerViper builds a *viper.Viper pre-seeded with defaults and
// MODELGATE_ environment variable support, following the
// InitViper pattern from Sentinel-Gate-Sentinelgate's
// internal/config/loader.go: SetEnvPrefix + SetEnvKeyReplacer +
// AutomaticEnv.
func NewServerViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MODELGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := defaultServerConfig()
	v.SetDefault("control_addr", defaults.ControlAddr)
	v.SetDefault("proxy_addr", defaults.ProxyAddr)
	v.SetDefault("public_addr", defaults.PublicAddr)
	v.SetDefault("admin_addr", defaults.AdminAddr)
	v.SetDefault("public_api_key", defaults.PublicAPIKey)
	v.SetDefault("sqlite_path", defaults.SQLitePath)
	v.SetDefault("redis_addr", defaults.RedisAddr)
	v.SetDefault("redis_password", defaults.RedisPassword)
	v.SetDefault("jwt_signing_key", defaults.JWTSigningKey)
	v.SetDefault("storage_backend", defaults.StorageBackend)
	v.SetDefault("aws_region", defaults.AWSRegion)
	v.SetDefault("dynamodb_table", defaults.DynamoDBTable)
	v.SetDefault("pair_evict_after", defaults.PairEvictAfter)
	return v
}

// LoadServerConfig unmarshals v into a ServerConfig, after flags have
// already been bound by the caller (see cmd/server's BindPFlag use).
func LoadServerConfig(v *viper.Viper) (ServerConfig, error) {
	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}
