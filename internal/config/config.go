// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "BROKER"

type Config struct {
	HTTPAddress string
	LogLevel    string
	LogFormat   string

	DBURI string

	Redis RedisConfig
	Kafka KafkaConfig
	Price PriceConfig
	Auth  AuthConfig

	// ExecuteTimeout bounds one PlaceOrder call end to end, covering every
	// store round trip inside it.
	ExecuteTimeout time.Duration

	RateLimit      RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type PriceConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type RateLimitConfig struct {
	Limit  int64
	Window time.Duration
}

type CircuitBreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.address", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("kafka.brokers", "127.0.0.1:9092")
	v.SetDefault("kafka.topic", "brokercore.executions")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("price.base.url", "https://query2.finance.yahoo.com")
	v.SetDefault("price.timeout", 8*time.Second)
	v.SetDefault("price.cache.ttl", time.Minute)
	v.SetDefault("execute.timeout", 10*time.Second)
	v.SetDefault("rate.limit", 30)
	v.SetDefault("rate.window", time.Minute)
	v.SetDefault("cb.max.requests", 3)
	v.SetDefault("cb.interval", 10*time.Second)
	v.SetDefault("cb.timeout", 5*time.Second)
	v.SetDefault("cb.max.failures", 5)

	cfg := &Config{
		HTTPAddress: v.GetString("http.address"),
		LogLevel:    v.GetString("log.level"),
		LogFormat:   v.GetString("log.format"),
		DBURI:       v.GetString("db.uri"),
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Enabled:  v.GetBool("redis.enabled"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
			Enabled: v.GetBool("kafka.enabled"),
		},
		Price: PriceConfig{
			BaseURL:  v.GetString("price.base.url"),
			Timeout:  v.GetDuration("price.timeout"),
			CacheTTL: v.GetDuration("price.cache.ttl"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt.secret"),
		},
		ExecuteTimeout: v.GetDuration("execute.timeout"),
		RateLimit: RateLimitConfig{
			Limit:  v.GetInt64("rate.limit"),
			Window: v.GetDuration("rate.window"),
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests: v.GetUint32("cb.max.requests"),
			Interval:    v.GetDuration("cb.interval"),
			Timeout:     v.GetDuration("cb.timeout"),
			MaxFailures: v.GetUint32("cb.max.failures"),
		},
	}

	if cfg.DBURI == "" {
		return nil, fmt.Errorf("BROKER_DB_URI is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("BROKER_AUTH_JWT_SECRET is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
