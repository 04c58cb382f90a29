package config

import "time"

// Config holds control-service configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// ChatURL is the WebSocket endpoint of the chat service.
	ChatURL string `mapstructure:"chat_url" yaml:"chat_url"`

	// ControlSecret guards every mutating and listing control route.
	// ControlSecretHash, when set, is a bcrypt hash checked instead of
	// the plaintext (see `chatlink hash-secret`).
	ControlSecret     string        `mapstructure:"control_secret" yaml:"control_secret"`
	ControlSecretHash string        `mapstructure:"control_secret_hash" yaml:"control_secret_hash"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// App credentials for OAuth token refresh.
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	TokenURL     string `mapstructure:"token_url" yaml:"token_url"`

	// Session engine timings.
	JoinTimeout       time.Duration `mapstructure:"join_timeout" yaml:"join_timeout"`
	ReconnectBase     time.Duration `mapstructure:"reconnect_base" yaml:"reconnect_base"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max" yaml:"reconnect_max"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval" yaml:"keep_alive_interval"`
	AuthSettleDelay   time.Duration `mapstructure:"auth_settle_delay" yaml:"auth_settle_delay"`

	// BufferSize bounds the listen-only message ring.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		ChatURL:           "wss://irc-ws.chat.twitch.tv:443",
		TokenTTL:          time.Hour,
		DatabasePath:      "chatlink.db",
		JoinTimeout:       10 * time.Second,
		ReconnectBase:     time.Second,
		ReconnectMax:      30 * time.Second,
		MaxAttempts:       8,
		KeepAliveInterval: 60 * time.Second,
		AuthSettleDelay:   500 * time.Millisecond,
		BufferSize:        200,
	}
}
