package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the emergency service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Fabric     FabricConfig     `mapstructure:"fabric"`
	Codec      CodecConfig      `mapstructure:"codec"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// PublicOrigin is the origin QR URLs point at, e.g. https://care.example.org
	PublicOrigin string `mapstructure:"public_origin"`
	LogLevel     string `mapstructure:"log_level"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	// RateLimitPerMinute bounds public requests per client IP; 0 disables it
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// FabricConfig holds Hyperledger Fabric gateway configuration
type FabricConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MSPID         string `mapstructure:"msp_id"`
	PeerEndpoint  string `mapstructure:"peer_endpoint"`
	GatewayPeer   string `mapstructure:"gateway_peer"`
	TLSCertPath   string `mapstructure:"tls_cert_path"`
	CertPath      string `mapstructure:"cert_path"`
	KeyPath       string `mapstructure:"key_path"`
	ChannelName   string `mapstructure:"channel_name"`
	ChaincodeName string `mapstructure:"chaincode_name"`
}

// CodecConfig controls the Zero-Net payload codec
type CodecConfig struct {
	// IntegrityKey keys the BLAKE2b tag; empty means an unkeyed tag
	IntegrityKey     string `mapstructure:"integrity_key"`
	MaxRawBytes      int    `mapstructure:"max_raw_bytes"`
	MaxPackedBytes   int    `mapstructure:"max_packed_bytes"`
	MaxAgeHours      int    `mapstructure:"max_age_hours"`
	ClockSkewSeconds int    `mapstructure:"clock_skew_seconds"`
	StrictExpiry     bool   `mapstructure:"strict_expiry"`
	QRMaxVersion     int    `mapstructure:"qr_max_version"`
	ErrorCorrection  string `mapstructure:"error_correction"`
	EmbedWalletHint  bool   `mapstructure:"embed_wallet_hint"`
}

// MaxAge returns the configured staleness threshold
func (c CodecConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// ClockSkew returns the tolerated future drift of issuedAt
func (c CodecConfig) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// ResolverConfig controls the legacy fallback lookup
type ResolverConfig struct {
	// Sources are tried in order: any of "api", "database", "fabric"
	Sources        []string `mapstructure:"sources"`
	ProfileAPIURL  string   `mapstructure:"profile_api_url"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-resolve deadline
func (r ResolverConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// JWTConfig holds JWT configuration for patient-facing endpoints
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
}

// AuditConfig holds scan audit store configuration
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	MetricsPath    string  `mapstructure:"metrics_path"`
	HealthPath     string  `mapstructure:"health_path"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	CPUDegradedPct float64 `mapstructure:"cpu_degraded_pct"`
	ServiceVersion string  `mapstructure:"service_version"`
	Environment    string  `mapstructure:"environment"`
}

var knownSources = map[string]bool{"api": true, "database": true, "fabric": true}

// Load loads configuration from .env, config files and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/zeronet")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile loads configuration from an explicit YAML file
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// Defaults returns the configuration with only defaults applied
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.rate_limit_per_minute", 120)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "zeronet")
	v.SetDefault("database.user", "zeronet")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 300)

	v.SetDefault("fabric.enabled", false)
	v.SetDefault("fabric.msp_id", "Org1MSP")
	v.SetDefault("fabric.peer_endpoint", "localhost:7051")
	v.SetDefault("fabric.gateway_peer", "peer0.org1.example.com")
	v.SetDefault("fabric.channel_name", "healthcare")
	v.SetDefault("fabric.chaincode_name", "emergency-profile")

	v.SetDefault("codec.max_raw_bytes", 300)
	v.SetDefault("codec.max_packed_bytes", 400)
	v.SetDefault("codec.max_age_hours", 24*90)
	v.SetDefault("codec.clock_skew_seconds", 300)
	v.SetDefault("codec.strict_expiry", false)
	v.SetDefault("codec.qr_max_version", 25)
	v.SetDefault("codec.error_correction", "H")
	v.SetDefault("codec.embed_wallet_hint", true)

	v.SetDefault("resolver.sources", []string{"api"})
	v.SetDefault("resolver.profile_api_url", "http://localhost:3000")
	v.SetDefault("resolver.timeout_seconds", 8)

	v.SetDefault("jwt.issuer", "zeronet")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "./data/scan-audit")

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")
	v.SetDefault("monitoring.tracing_enabled", false)
	v.SetDefault("monitoring.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("monitoring.sampling_rate", 0.1)
	v.SetDefault("monitoring.cpu_degraded_pct", 90.0)
	v.SetDefault("monitoring.service_version", "1.0.0")
	v.SetDefault("monitoring.environment", "development")

	v.SetDefault("public_origin", "http://localhost:3000")
	v.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with conventional environment variables
func overrideWithEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		cfg.JWT.SecretKey = jwtSecret
	}

	if key := os.Getenv("ZERONET_INTEGRITY_KEY"); key != "" {
		cfg.Codec.IntegrityKey = key
	}

	if origin := os.Getenv("PUBLIC_ORIGIN"); origin != "" {
		cfg.PublicOrigin = origin
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.JWT.SecretKey == "" {
		return fmt.Errorf("JWT secret key is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Codec.MaxRawBytes <= 0 {
		return fmt.Errorf("codec max_raw_bytes must be positive")
	}

	if cfg.Codec.MaxPackedBytes < cfg.Codec.MaxRawBytes {
		return fmt.Errorf("codec max_packed_bytes (%d) is below max_raw_bytes (%d)", cfg.Codec.MaxPackedBytes, cfg.Codec.MaxRawBytes)
	}

	if cfg.Codec.QRMaxVersion < 1 || cfg.Codec.QRMaxVersion > 40 {
		return fmt.Errorf("codec qr_max_version must be between 1 and 40, got %d", cfg.Codec.QRMaxVersion)
	}

	switch strings.ToUpper(cfg.Codec.ErrorCorrection) {
	case "L", "M", "Q", "H":
	default:
		return fmt.Errorf("invalid error correction level: %q", cfg.Codec.ErrorCorrection)
	}

	if cfg.Resolver.TimeoutSeconds < 1 || cfg.Resolver.TimeoutSeconds > 30 {
		return fmt.Errorf("resolver timeout must be between 1 and 30 seconds, got %d", cfg.Resolver.TimeoutSeconds)
	}

	for _, src := range cfg.Resolver.Sources {
		if !knownSources[src] {
			return fmt.Errorf("unknown resolver source: %q", src)
		}
	}

	if cfg.PublicOrigin == "" {
		return fmt.Errorf("public origin is required")
	}

	return nil
}
