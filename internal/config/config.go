package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment variable the relay reads
const EnvPrefix = "CHATRELAY_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP      *HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	WebSocket *WebSocketConfig `json:"websocket" envPrefix:"WEBSOCKET_"`
	Chat      *ChatConfig      `json:"chat" envPrefix:"CHAT_"`
	Archive   *ArchiveConfig   `json:"archive" envPrefix:"ARCHIVE_"`
	Telemetry *TelemetryConfig `json:"telemetry" envPrefix:"TELEMETRY_"`
}

type HTTPConfig struct {
	Host            string        `json:"host" env:"HOST"`
	Port            int           `json:"port" env:"PORT"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// FUNCTIONAL DISCOVERY: PongWait doubles as the read deadline; pings go out
// at PingInterval, which must be shorter
type WebSocketConfig struct {
	PingInterval    time.Duration `json:"ping_interval" env:"PING_INTERVAL"`
	PongWait        time.Duration `json:"pong_wait" env:"PONG_WAIT"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	SendBuffer      int           `json:"send_buffer" env:"SEND_BUFFER"`
	MaxMessageBytes int64         `json:"max_message_bytes" env:"MAX_MESSAGE_BYTES"`
	// Empty allows every origin
	AllowedOrigins  []string      `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type ChatConfig struct {
	SnapshotHistory    int      `json:"snapshot_history" env:"SNAPSHOT_HISTORY"`
	JoinHistory        int      `json:"join_history" env:"JOIN_HISTORY"`
	PageDefault        int      `json:"page_default" env:"PAGE_DEFAULT"`
	PageMax            int      `json:"page_max" env:"PAGE_MAX"`
	MessagesPerMinute  int      `json:"messages_per_minute" env:"MESSAGES_PER_MINUTE"`
	MaxAttachmentBytes int      `json:"max_attachment_bytes" env:"MAX_ATTACHMENT_BYTES"`
	AllowedReactions   []string `json:"allowed_reactions" env:"ALLOWED_REACTIONS" envSeparator:","`
	CommandBuffer      int      `json:"command_buffer" env:"COMMAND_BUFFER"`
}

// An empty Path disables the archive
type ArchiveConfig struct {
	Path           string `json:"path" env:"PATH"`
	MaxConnections int    `json:"max_connections" env:"MAX_CONNECTIONS"`
	WriteBuffer    int    `json:"write_buffer" env:"WRITE_BUFFER"`
}

// An empty Endpoint disables trace export
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint" env:"ENDPOINT"`
	ServiceName string `json:"service_name" env:"SERVICE_NAME"`
}

// FUNCTIONAL DISCOVERY: Defaults run a complete relay with no archive and no exporter
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:    30 * time.Second,
			PongWait:        60 * time.Second,
			WriteTimeout:    5 * time.Second,
			SendBuffer:      256,
			MaxMessageBytes: 8 << 20,
		},
		Chat: &ChatConfig{
			SnapshotHistory:    50,
			JoinHistory:        20,
			PageDefault:        20,
			PageMax:            100,
			MessagesPerMinute:  100,
			MaxAttachmentBytes: 5 << 20,
			CommandBuffer:      1000,
		},
		Archive: &ArchiveConfig{
			MaxConnections: 10,
			WriteBuffer:    100,
		},
		Telemetry: &TelemetryConfig{
			ServiceName: "chatrelay",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PongWait <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("WebSocket ping interval must be positive and shorter than pong wait")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WebSocket send buffer must be positive")
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if c.Chat.SnapshotHistory <= 0 || c.Chat.JoinHistory <= 0 {
		return fmt.Errorf("chat history sizes must be positive")
	}
	if c.Chat.PageDefault <= 0 || c.Chat.PageMax < c.Chat.PageDefault {
		return fmt.Errorf("chat page default must be positive and not exceed page max")
	}
	if c.Chat.MessagesPerMinute <= 0 {
		return fmt.Errorf("chat rate limit must be positive")
	}
	if c.Chat.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("chat attachment limit must be positive")
	}
	if c.Chat.CommandBuffer <= 0 {
		return fmt.Errorf("chat command buffer must be positive")
	}

	if c.Archive == nil {
		return fmt.Errorf("archive configuration is required")
	}
	if c.Archive.Path != "" && (c.Archive.MaxConnections <= 0 || c.Archive.WriteBuffer <= 0) {
		return fmt.Errorf("archive connection and buffer sizes must be positive")
	}

	if c.Telemetry == nil {
		return fmt.Errorf("telemetry configuration is required")
	}
	if c.Telemetry.Endpoint != "" && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry service name cannot be empty")
	}
	return nil
}

// LoadFromEnv overlays CHATRELAY_* environment variables onto the defaults
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Chat      *ChatConfig          `json:"chat"`
	Archive   *ArchiveConfig       `json:"archive"`
	Telemetry *TelemetryConfig     `json:"telemetry"`
}

type HTTPConfigFile struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ReadTimeout     string `json:"read_timeout"`
	WriteTimeout    string `json:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval    string   `json:"ping_interval"`
	PongWait        string   `json:"pong_wait"`
	WriteTimeout    string   `json:"write_timeout"`
	SendBuffer      int      `json:"send_buffer"`
	MaxMessageBytes int64    `json:"max_message_bytes"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

// LoadFromFile overlays a JSON file onto the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// applyFile copies every field the file sets; zero values leave config untouched
func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if f := file.HTTP; f != nil {
		setString(&config.HTTP.Host, f.Host)
		setInt(&config.HTTP.Port, f.Port)
		if err := setDuration(&config.HTTP.ReadTimeout, f.ReadTimeout); err != nil {
			return fmt.Errorf("http.read_timeout: %w", err)
		}
		if err := setDuration(&config.HTTP.WriteTimeout, f.WriteTimeout); err != nil {
			return fmt.Errorf("http.write_timeout: %w", err)
		}
		if err := setDuration(&config.HTTP.ShutdownTimeout, f.ShutdownTimeout); err != nil {
			return fmt.Errorf("http.shutdown_timeout: %w", err)
		}
	}

	if f := file.WebSocket; f != nil {
		if err := setDuration(&config.WebSocket.PingInterval, f.PingInterval); err != nil {
			return fmt.Errorf("websocket.ping_interval: %w", err)
		}
		if err := setDuration(&config.WebSocket.PongWait, f.PongWait); err != nil {
			return fmt.Errorf("websocket.pong_wait: %w", err)
		}
		if err := setDuration(&config.WebSocket.WriteTimeout, f.WriteTimeout); err != nil {
			return fmt.Errorf("websocket.write_timeout: %w", err)
		}
		setInt(&config.WebSocket.SendBuffer, f.SendBuffer)
		if f.MaxMessageBytes > 0 {
			config.WebSocket.MaxMessageBytes = f.MaxMessageBytes
		}
		if f.AllowedOrigins != nil {
			config.WebSocket.AllowedOrigins = f.AllowedOrigins
		}
	}

	if f := file.Chat; f != nil {
		setInt(&config.Chat.SnapshotHistory, f.SnapshotHistory)
		setInt(&config.Chat.JoinHistory, f.JoinHistory)
		setInt(&config.Chat.PageDefault, f.PageDefault)
		setInt(&config.Chat.PageMax, f.PageMax)
		setInt(&config.Chat.MessagesPerMinute, f.MessagesPerMinute)
		setInt(&config.Chat.MaxAttachmentBytes, f.MaxAttachmentBytes)
		setInt(&config.Chat.CommandBuffer, f.CommandBuffer)
		if f.AllowedReactions != nil {
			config.Chat.AllowedReactions = f.AllowedReactions
		}
	}

	if f := file.Archive; f != nil {
		setString(&config.Archive.Path, f.Path)
		setInt(&config.Archive.MaxConnections, f.MaxConnections)
		setInt(&config.Archive.WriteBuffer, f.WriteBuffer)
	}

	if f := file.Telemetry; f != nil {
		setString(&config.Telemetry.Endpoint, f.Endpoint)
		setString(&config.Telemetry.ServiceName, f.ServiceName)
	}
	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
