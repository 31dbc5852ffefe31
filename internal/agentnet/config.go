package agentnet

import (
	"log/slog"
	"time"
)

// Config configures a Client. There is no global configuration singleton;
// every agent builds one explicitly and passes it to Dial.
type Config struct {
	Server     string // "host:port"
	ClientID   string
	Username   string
	Password   string
	KeepAlive  time.Duration
	CleanStart bool

	SessionExpiryInterval time.Duration

	HasWill     bool
	WillTopic   string
	WillPayload []byte

	ConnectTimeout time.Duration
	Logger         *slog.Logger

	// DisableReconnect turns off the client's automatic reconnect-with-
	// backoff loop, so that a connection loss is terminal (the pre-existing
	// behavior). Reconnection is on by default, per spec §4.5's "reconnection
	// with session resumption" requirement: a reconnect resumes the existing
	// session with CleanStart false rather than redoing a clean handshake.
	DisableReconnect    bool
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 500 * time.Millisecond
	}
	if cfg.MaxReconnectBackoff <= 0 {
		cfg.MaxReconnectBackoff = 30 * time.Second
	}
	return &cfg
}
