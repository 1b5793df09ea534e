package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration, loaded via a viper
// profile cascade (application.yaml -> application-{profile}.yaml ->
// environment overrides).
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	PodID      string           `mapstructure:"pod_id"`
	Server     ServerConfig     `mapstructure:"server"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Session    SessionConfig    `mapstructure:"session"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	OCPP       OCPPConfig       `mapstructure:"ocpp"`
}

// AppConfig carries basic process identity.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Profile string `mapstructure:"profile"`
}

// ServerConfig is the station-facing HTTP/WebSocket listener.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
}

// WebSocketConfig tunes the gorilla/websocket upgrader.
type WebSocketConfig struct {
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	CheckOrigin       bool          `mapstructure:"check_origin"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// SessionConfig holds the per-station timing knobs spec.md §4.3/§5 names.
type SessionConfig struct {
	HeartbeatIntervalSeconds int           `mapstructure:"heartbeat_interval_seconds"`
	WatchdogGrace            time.Duration `mapstructure:"watchdog_grace"`
	OutboundDelay            time.Duration `mapstructure:"outbound_delay"`
	OutboundReplyTimeout     time.Duration `mapstructure:"outbound_reply_timeout"`
}

// RedisConfig backs the outbound-routing hint store (internal/routing).
// RoutingEnabled gates whether main.go constructs it at all — a single-pod
// deployment has no ownership to track and leaves it off by default.
type RedisConfig struct {
	RoutingEnabled bool          `mapstructure:"routing_enabled"`
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig backs the optional audit sink and command inlet.
type KafkaConfig struct {
	Brokers       []string       `mapstructure:"brokers"`
	AuditTopic    string         `mapstructure:"audit_topic"`
	CommandTopic  string         `mapstructure:"command_topic"`
	ConsumerGroup string         `mapstructure:"consumer_group"`
	AuditEnabled  bool           `mapstructure:"audit_enabled"`
	InletEnabled  bool           `mapstructure:"inlet_enabled"`
	Producer      ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
}

// LogConfig configures the zerolog-backed Logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MonitoringConfig is the operator surface spec.md §6 calls for: optional
// metrics and health endpoints.
type MonitoringConfig struct {
	MetricsAddr     string `mapstructure:"metrics_addr"`
	HealthCheckPort int    `mapstructure:"health_check_port"`
}

// OCPPConfig carries the domain policy knobs spec.md §4.5/§9 names:
// auto-remote-start, meter-jump threshold, and the orphan sweep.
type OCPPConfig struct {
	AutoRemoteStartEnabled bool          `mapstructure:"auto_remote_start_enabled"`
	AutoRemoteStartIDTag   string        `mapstructure:"auto_remote_start_id_tag"`
	AutoRemoteStartDelay   time.Duration `mapstructure:"auto_remote_start_delay"`
	JumpThresholdWh        int           `mapstructure:"jump_threshold_wh"`
	OrphanSweepInterval    time.Duration `mapstructure:"orphan_sweep_interval"`
}

// Load reads configuration via the profile cascade: defaults ->
// application.yaml -> application-{profile}.yaml -> environment override.
func Load() (*Config, error) {
	setDefaults()

	profile := getProfile()
	fmt.Printf("Loading configuration for profile: %s\n", profile)

	if err := loadConfigFile("application"); err != nil {
		fmt.Printf("Warning: Could not load default config file: %v\n", err)
	}

	if profile != "" {
		configName := fmt.Sprintf("application-%s", profile)
		if err := loadConfigFile(configName); err != nil {
			fmt.Printf("Warning: Could not load profile config file %s: %v\n", configName, err)
		}
	}

	setupEnvironmentVariables()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.App.Profile = profile
	return &cfg, nil
}

func getProfile() string {
	if profile := os.Getenv("APP_PROFILE"); profile != "" {
		return profile
	}
	if profile := viper.GetString("app.profile"); profile != "" {
		return profile
	}
	return "local"
}

func loadConfigFile(configName string) error {
	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	return viper.MergeInConfig()
}

func setupEnvironmentVariables() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("monitoring.health_check_port", "MONITORING_HEALTH_CHECK_PORT")
	viper.BindEnv("app.profile", "APP_PROFILE")

	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		for i, broker := range brokers {
			brokers[i] = strings.TrimSpace(broker)
		}
		viper.Set("kafka.brokers", brokers)
	}
}

func setDefaults() {
	viper.SetDefault("app.name", "central-system")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.profile", "local")
	viper.SetDefault("pod_id", "")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.websocket_path", "/ws")
	viper.SetDefault("server.read_timeout", "60s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.max_connections", 100000)

	viper.SetDefault("websocket.read_buffer_size", 4096)
	viper.SetDefault("websocket.write_buffer_size", 4096)
	viper.SetDefault("websocket.handshake_timeout", "10s")
	viper.SetDefault("websocket.max_message_size", 1048576)
	viper.SetDefault("websocket.enable_compression", false)
	viper.SetDefault("websocket.check_origin", false)
	viper.SetDefault("websocket.allowed_origins", []string{})

	viper.SetDefault("session.heartbeat_interval_seconds", 60)
	viper.SetDefault("session.watchdog_grace", "60s")
	viper.SetDefault("session.outbound_delay", "1s")
	viper.SetDefault("session.outbound_reply_timeout", "30s")

	viper.SetDefault("redis.routing_enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("redis.min_idle_conns", 10)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.audit_topic", "ocpp-audit")
	viper.SetDefault("kafka.command_topic", "ocpp-commands")
	viper.SetDefault("kafka.consumer_group", "central-system-commands")
	viper.SetDefault("kafka.audit_enabled", false)
	viper.SetDefault("kafka.inlet_enabled", false)
	viper.SetDefault("kafka.producer.flush_frequency", "500ms")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")

	viper.SetDefault("monitoring.metrics_addr", ":9090")
	viper.SetDefault("monitoring.health_check_port", 8081)

	viper.SetDefault("ocpp.auto_remote_start_enabled", false)
	viper.SetDefault("ocpp.auto_remote_start_id_tag", "anonymous")
	viper.SetDefault("ocpp.auto_remote_start_delay", "0s")
	viper.SetDefault("ocpp.jump_threshold_wh", 10000)
	viper.SetDefault("ocpp.orphan_sweep_interval", "15m")
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetMetricsAddr() string {
	return c.Monitoring.MetricsAddr
}

func (c *Config) GetHealthCheckAddr() string {
	return fmt.Sprintf(":%d", c.Monitoring.HealthCheckPort)
}

func (c *Config) IsProduction() bool {
	return c.App.Profile == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Profile == "dev"
}

func (c *Config) IsTest() bool {
	return c.App.Profile == "test" || c.App.Profile == "local"
}
