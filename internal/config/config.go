package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iggydv12/tabsync/internal/relay"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid config")

// Transport names accepted in relay.transport.
const (
	TransportNone   = "none"
	TransportMemory = "memory"
	TransportRedis  = "redis"
	TransportLibP2P = "libp2p"
	TransportHub    = "hub"
)

// Config is the root configuration struct
type Config struct {
	Relay RelayConfig `mapstructure:"relay"`
	Redis RedisConfig `mapstructure:"redis"`
	P2P   P2PConfig   `mapstructure:"p2p"`
	Hub   HubConfig   `mapstructure:"hub"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Probe ProbeConfig `mapstructure:"probe"`
}

// RelayConfig holds presence and heartbeat settings
type RelayConfig struct {
	Channel           string        `mapstructure:"channel"`
	Transport         string        `mapstructure:"transport"`
	Codec             string        `mapstructure:"codec"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	StaleAfter        time.Duration `mapstructure:"staleAfter"`
}

// RedisConfig is used when relay.transport is "redis"
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// P2PConfig is used when relay.transport is "libp2p"
type P2PConfig struct {
	ListenAddrs []string `mapstructure:"listenAddrs"`
	MDNS        bool     `mapstructure:"mdns"`
}

// HubConfig is used when relay.transport is "hub"
type HubConfig struct {
	URL string `mapstructure:"url"`
}

// HTTPConfig holds the REST listener
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProbeConfig is the upstream hit by GET /probe through the network seam
type ProbeConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("relay.channel", "default")
	v.SetDefault("relay.transport", TransportMemory)
	v.SetDefault("relay.codec", "json")
	v.SetDefault("relay.heartbeatInterval", 2*time.Second)
	v.SetDefault("relay.staleAfter", 6*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("p2p.listenAddrs", []string{"/ip4/0.0.0.0/tcp/0"})
	v.SetDefault("p2p.mdns", true)
	v.SetDefault("hub.url", "http://localhost:8080")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("probe.url", "http://localhost:3000/api/todos")
	v.SetDefault("probe.timeout", 5*time.Second)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TABSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	r := c.Relay
	if r.Channel == "" {
		return fmt.Errorf("%w: relay.channel is empty", ErrInvalid)
	}
	if r.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: relay.heartbeatInterval must be positive", ErrInvalid)
	}
	if r.StaleAfter <= r.HeartbeatInterval {
		return fmt.Errorf("%w: relay.staleAfter (%s) must exceed relay.heartbeatInterval (%s)",
			ErrInvalid, r.StaleAfter, r.HeartbeatInterval)
	}
	switch r.Transport {
	case TransportNone, TransportMemory, TransportRedis, TransportLibP2P, TransportHub:
	default:
		return fmt.Errorf("%w: unknown relay.transport %q", ErrInvalid, r.Transport)
	}
	if _, err := relay.CodecByName(r.Codec); err != nil {
		return fmt.Errorf("%w: relay.codec: %v", ErrInvalid, err)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("%w: probe.timeout must be positive", ErrInvalid)
	}
	return nil
}

// HubDialsSelf reports whether relay.transport is "hub" and hub.url points at
// this process's own http.addr. A node serving its own hub cannot also be a
// client of it.
func (c *Config) HubDialsSelf() bool {
	if c.Relay.Transport != TransportHub {
		return false
	}
	u, err := url.Parse(c.Hub.URL)
	if err != nil {
		return false
	}
	listenHost, listenPort, err := net.SplitHostPort(c.HTTP.Addr)
	if err != nil {
		return false
	}

	hubPort := u.Port()
	if hubPort == "" {
		switch u.Scheme {
		case "http", "ws":
			hubPort = "80"
		case "https", "wss":
			hubPort = "443"
		}
	}
	if hubPort != listenPort || !isLocalHost(u.Hostname()) {
		return false
	}
	return listenHost == "" || isLocalHost(listenHost) || net.ParseIP(listenHost).IsUnspecified()
}

func isLocalHost(h string) bool {
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
