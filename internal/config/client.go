package config

import (
	"strings"

	"github.com/spf13/viper"
)

// ClientConfig holds the tunneling agent's settings: required
// --client-id, server address/ports, and the local service it
// forwards to.
type ClientConfig struct {
	ClientID string `mapstructure:"client_id"`

	ServerHost  string `mapstructure:"server_host"`
	ControlPort string `mapstructure:"control_port"`
	ProxyPort   string `mapstructure:"proxy_port"`

	LocalServiceAddr string `mapstructure:"local_service_addr"`

	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`

	TokenFile string `mapstructure:"token_file"`
}

// DefaultLocalServiceAddr is the default inference daemon endpoint
// (Ollama's conventional port).
const DefaultLocalServiceAddr = "127.0.0.1:11434"

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerHost:       "localhost",
		ControlPort:      DefaultControlPort,
		ProxyPort:        DefaultProxyPort,
		LocalServiceAddr: DefaultLocalServiceAddr,
		TokenFile:        "token.json",
	}
}

// NewClientViper mirrors NewServerViper for the client binary's
// MODELGATE_CLIENT_ environment namespace, kept distinct from the
// server's so running both on one host never cross-contaminates env
// vars.
func NewClientViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MODELGATE_CLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := defaultClientConfig()
	v.SetDefault("client_id", defaults.ClientID)
	v.SetDefault("server_host", defaults.ServerHost)
	v.SetDefault("control_port", defaults.ControlPort)
	v.SetDefault("proxy_port", defaults.ProxyPort)
	v.SetDefault("local_service_addr", defaults.LocalServiceAddr)
	v.SetDefault("token_file", defaults.TokenFile)
	return v
}

func LoadClientConfig(v *viper.Viper) (ClientConfig, error) {
	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
