package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/archive"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/overlay"
	pkgconfig "github.com/weiawesome/wes-io-live/overlay-service/pkg/config"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/database"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/pubsub"
)

// DriverNone disables the durable snapshot store.
const DriverNone = "none"

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Transport TransportConfig
	Database  DatabaseConfig
	Overlay   OverlayConfig
	SSE       SSEConfig `mapstructure:"sse"`
	Kafka     KafkaConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	InstanceID string `mapstructure:"instance_id"`
}

// RedisConfig configures the pub/sub transport. An empty address runs the
// service single-process; "memory" uses the in-process broker.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type TransportConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type OverlayConfig struct {
	Debounce             time.Duration
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	IOTimeout            time.Duration `mapstructure:"io_timeout"`
	AvatarTimeoutSeconds int           `mapstructure:"avatar_timeout_seconds"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
}

type SSEConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
	Retention  time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads ./config/config.yaml (optional) and the environment.
func Load() (*Config, *viper.Viper, error) {
	return LoadFrom("./config")
}

// LoadFrom reads config.yaml from dir (optional) and the environment. The
// returned viper instance can be watched for live reload.
func LoadFrom(dir string) (*Config, *viper.Viper, error) {
	v, err := pkgconfig.Load(dir, "config")
	if err != nil {
		return nil, nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.instance_id", "")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("transport.max_attempts", 3)
	v.SetDefault("transport.base_delay", "1s")
	v.SetDefault("transport.max_delay", "30s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "overlay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "overlay.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("overlay.debounce", "200ms")
	v.SetDefault("overlay.cache_ttl", "0s")
	v.SetDefault("overlay.io_timeout", "5s")
	v.SetDefault("overlay.avatar_timeout_seconds", 300)
	v.SetDefault("overlay.sweep_interval", "5s")
	v.SetDefault("sse.heartbeat_interval", "15s")
	v.SetDefault("sse.write_timeout", "10s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "overlay-events")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("kafka.retention", "168h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	// Parse durations
	cfg.Redis.ReadTimeout = parseDuration(v, "redis.read_timeout", 3*time.Second)
	cfg.Redis.WriteTimeout = parseDuration(v, "redis.write_timeout", 3*time.Second)
	cfg.Transport.BaseDelay = parseDuration(v, "transport.base_delay", time.Second)
	cfg.Transport.MaxDelay = parseDuration(v, "transport.max_delay", 30*time.Second)
	cfg.Overlay.Debounce = parseDuration(v, "overlay.debounce", 200*time.Millisecond)
	cfg.Overlay.CacheTTL = parseDuration(v, "overlay.cache_ttl", 0)
	cfg.Overlay.IOTimeout = parseDuration(v, "overlay.io_timeout", 5*time.Second)
	cfg.Overlay.SweepInterval = parseDuration(v, "overlay.sweep_interval", 5*time.Second)
	cfg.SSE.HeartbeatInterval = parseDuration(v, "sse.heartbeat_interval", 15*time.Second)
	cfg.SSE.WriteTimeout = parseDuration(v, "sse.write_timeout", 10*time.Second)
	cfg.Kafka.Retention = parseDuration(v, "kafka.retention", 168*time.Hour)

	return &cfg, v, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}

// PubSub returns the transport driver settings.
func (c *Config) PubSub() pubsub.RedisConfig {
	return pubsub.RedisConfig{
		Address:      c.Redis.Address,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		PoolSize:     c.Redis.PoolSize,
		ReadTimeout:  c.Redis.ReadTimeout,
		WriteTimeout: c.Redis.WriteTimeout,
	}
}

// Manager returns the reconnect policy of the transport manager.
func (c *Config) Manager() pubsub.ManagerConfig {
	return pubsub.ManagerConfig{
		InstanceID:  c.Server.InstanceID,
		MaxAttempts: c.Transport.MaxAttempts,
		BaseDelay:   c.Transport.BaseDelay,
		MaxDelay:    c.Transport.MaxDelay,
	}
}

// DurableEnabled reports whether a durable snapshot store is configured.
func (c *Config) DurableEnabled() bool {
	return c.Database.Driver != "" && c.Database.Driver != DriverNone
}

// DB returns the database connection settings.
func (c *Config) DB() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		DBName:          c.Database.DBName,
		SSLMode:         c.Database.SSLMode,
		FilePath:        c.Database.FilePath,
		MaxIdleConns:    c.Database.MaxIdleConns,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		LogLevel:        c.Database.LogLevel,
	}
}

// Store returns the overlay persistence settings.
func (c *Config) Store() overlay.Config {
	return overlay.Config{
		Debounce:                    c.Overlay.Debounce,
		CacheTTL:                    c.Overlay.CacheTTL,
		IOTimeout:                   c.Overlay.IOTimeout,
		DefaultAvatarTimeoutSeconds: c.Overlay.AvatarTimeoutSeconds,
	}
}

// Archive returns the Kafka event archive settings.
func (c *Config) Archive() archive.Config {
	return archive.Config{
		Brokers:    c.Kafka.Brokers,
		Topic:      c.Kafka.Topic,
		Partitions: c.Kafka.Partitions,
		Retention:  c.Kafka.Retention,
	}
}
