// Package config provides Viper-based configuration loading for the duelhub server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Mode is the server operation mode. Only "standalone" is supported.
	Mode string `mapstructure:"mode"`
	// Name identifies this instance in logs and health reports.
	Name string `mapstructure:"name"`
}

// HTTPConfig holds settings for the HTTP listener that carries the REST
// endpoints and the Socket.IO and WebSocket transports.
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins lists CORS origins; "*" allows every origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LineConfig holds settings for the raw TCP line transport.
type LineConfig struct {
	// Enabled turns the TCP line listener on.
	Enabled bool `mapstructure:"enabled"`
	// Host is the bind address for the TCP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read timeout. Zero disables it, since a waiting
	// player may sit in the queue indefinitely.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxClients caps concurrent line sessions; 0 means unlimited.
	MaxClients int `mapstructure:"max_clients"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (l LineConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// GRPCConfig holds settings for the gRPC health endpoint.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" gRPC address.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// DatabaseConfig holds PostgreSQL connection settings for the card catalog.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// CatalogConfig holds settings for the card catalog REST endpoints and image storage.
type CatalogConfig struct {
	// Enabled turns on the catalog endpoints and the database connection.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL prefixes image URLs returned by GET /cards.
	BaseURL string `mapstructure:"base_url"`
	// ImageStore selects the image backend: "disk" or "s3".
	ImageStore string `mapstructure:"image_store"`
	// UploadsDir is the directory served under /uploads when ImageStore is "disk".
	UploadsDir string `mapstructure:"uploads_dir"`
	// MaxUploadBytes caps the multipart body size of POST /create-card.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	S3Bucket       string `mapstructure:"s3_bucket"`
	S3Region       string `mapstructure:"s3_region"`
	S3Prefix       string `mapstructure:"s3_prefix"`
}

// MatchmakingConfig holds sizing for the matchmaking event loop.
type MatchmakingConfig struct {
	// MailboxSize is the buffer of the event loop's inbound message channel.
	MailboxSize int `mapstructure:"mailbox_size"`
	// OutboxSize is the per-connection outbound event buffer.
	OutboxSize int `mapstructure:"outbox_size"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Line        LineConfig        `mapstructure:"line"`
	GRPC        GRPCConfig        `mapstructure:"grpc"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Line.Enabled {
		if err := validateLine(c.Line); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.GRPC.Enabled {
		if err := validateGRPC(c.GRPC); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Catalog.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
		if err := validateCatalog(c.Catalog); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateMatchmaking(c.Matchmaking); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Mode != "standalone" {
		return fmt.Errorf("server.mode must be one of [standalone], got %q", s.Mode)
	}
	if s.Name == "" {
		return errors.New("server.name must not be empty")
	}
	return nil
}

func validatePort(key string, port int) string {
	if port < 0 || port > 65535 {
		return fmt.Sprintf("%s must be 0-65535, got %d", key, port)
	}
	return ""
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if msg := validatePort("http.port", h.Port); msg != "" {
		errs = append(errs, msg)
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLine(l LineConfig) error {
	var errs []string
	if msg := validatePort("line.port", l.Port); msg != "" {
		errs = append(errs, msg)
	}
	if l.ReadTimeout < 0 {
		errs = append(errs, "line.read_timeout must not be negative")
	}
	if l.WriteTimeout < 0 {
		errs = append(errs, "line.write_timeout must not be negative")
	}
	if l.MaxClients < 0 {
		errs = append(errs, "line.max_clients must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGRPC(g GRPCConfig) error {
	var errs []string
	if g.Host == "" {
		errs = append(errs, "grpc.host must not be empty")
	}
	if msg := validatePort("grpc.port", g.Port); msg != "" {
		errs = append(errs, msg)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCatalog(c CatalogConfig) error {
	var errs []string
	switch c.ImageStore {
	case "disk":
		if c.UploadsDir == "" {
			errs = append(errs, "catalog.uploads_dir must not be empty when catalog.image_store is disk")
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, "catalog.s3_bucket must not be empty when catalog.image_store is s3")
		}
	default:
		errs = append(errs, fmt.Sprintf("catalog.image_store must be one of [disk, s3], got %q", c.ImageStore))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Sprintf("catalog.max_upload_bytes must be >= 1, got %d", c.MaxUploadBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateMatchmaking(m MatchmakingConfig) error {
	var errs []string
	if m.MailboxSize < 1 {
		errs = append(errs, fmt.Sprintf("matchmaking.mailbox_size must be >= 1, got %d", m.MailboxSize))
	}
	if m.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("matchmaking.outbox_size must be >= 1, got %d", m.OutboxSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with DUELHUB_ prefix
	v.SetEnvPrefix("DUELHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults installs the default value of every configuration key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "standalone")
	v.SetDefault("server.name", "duelhub")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "0s")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("line.enabled", false)
	v.SetDefault("line.host", "0.0.0.0")
	v.SetDefault("line.port", 4000)
	v.SetDefault("line.read_timeout", "0s")
	v.SetDefault("line.write_timeout", "10s")
	v.SetDefault("line.max_clients", 0)

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "duelhub")
	v.SetDefault("database.password", "duelhub")
	v.SetDefault("database.name", "duelhub")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.base_url", "http://localhost:3000")
	v.SetDefault("catalog.image_store", "disk")
	v.SetDefault("catalog.uploads_dir", "public/uploads")
	v.SetDefault("catalog.max_upload_bytes", 10<<20)
	v.SetDefault("catalog.s3_prefix", "cards/")

	v.SetDefault("matchmaking.mailbox_size", 256)
	v.SetDefault("matchmaking.outbox_size", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
