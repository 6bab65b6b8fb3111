package pubsub

import "time"

// DriverMemory selects the in-process broker instead of redis.
const DriverMemory = "memory"

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ManagerConfig controls connection attempts of the Manager.
type ManagerConfig struct {
	InstanceID  string        `mapstructure:"instance_id"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DefaultManagerConfig returns the default reconnect policy: 3 attempts,
// 1s base delay doubling per attempt, capped at 30s.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// DefaultRedisConfig returns the default redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		PoolSize:     10,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewDialer picks a driver for the configured address. An empty address means
// no transport endpoint is configured and nil is returned.
func NewDialer(cfg RedisConfig) Dialer {
	switch cfg.Address {
	case "":
		return nil
	case DriverMemory:
		return NewMemoryBroker()
	default:
		return NewRedisDialer(cfg)
	}
}
