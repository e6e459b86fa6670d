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
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// RedisConfig необязателен: пустой Addr отключает кэш счётчика корзины.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CountTTL time.Duration `yaml:"count_ttl"`
}

// KafkaConfig необязателен: без брокеров события пишутся в outbox, но не отправляются.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

type AuthConfig struct {
	JWTSecret    string  `yaml:"jwt_secret"`
	AdminUserIDs []int64 `yaml:"admin_user_ids"`
}

type OrderNumberConfig struct {
	Prefix   string `yaml:"prefix"`
	Attempts int    `yaml:"attempts"`
}

type Config struct {
	App         AppConfig         `yaml:"app"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Auth        AuthConfig        `yaml:"auth"`
	OrderNumber OrderNumberConfig `yaml:"order_number"`
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:     "checkout-service",
			Port:     "8080",
			Env:      "development",
			LogLevel: "info",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            "5432",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
		},
		Redis: RedisConfig{
			CountTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic:        "order-events",
			PollInterval: time.Second,
			BatchSize:    100,
		},
		OrderNumber: OrderNumberConfig{
			Prefix:   "JD",
			Attempts: 5,
		},
	}
}

// Load собирает конфигурацию из значений по умолчанию, YAML-файла по path (если есть),
// .env (если есть) и, наконец, переменных окружения.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("config: invalid config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.App.Port, "APP_PORT")
	setString(&c.App.Env, "APP_ENV")
	setString(&c.App.LogLevel, "LOG_LEVEL")

	setString(&c.Postgres.Host, "DB_HOST")
	setString(&c.Postgres.Port, "DB_PORT")
	setString(&c.Postgres.User, "DB_USER")
	setString(&c.Postgres.Password, "DB_PASSWORD")
	setString(&c.Postgres.DBName, "DB_NAME")
	setString(&c.Postgres.SSLMode, "DB_SSLMODE")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.OrderNumber.Prefix, "ORDER_NUMBER_PREFIX")

	if v := os.Getenv("ADMIN_USER_IDS"); v != "" {
		ids := make([]int64, 0)
		for _, raw := range splitList(v) {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("config: ADMIN_USER_IDS: invalid user id %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
		c.Auth.AdminUserIDs = ids
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"REDIS_DB", &c.Redis.DB},
		{"OUTBOX_BATCH_SIZE", &c.Kafka.BatchSize},
		{"ORDER_NUMBER_ATTEMPTS", &c.OrderNumber.Attempts},
	}
	for _, it := range ints {
		if err := setInt(it.dst, it.key); err != nil {
			return err
		}
	}

	for _, it := range []struct {
		key string
		dst *int32
	}{
		{"DB_MAX_CONNS", &c.Postgres.MaxConns},
		{"DB_MIN_CONNS", &c.Postgres.MinConns},
	} {
		v := os.Getenv(it.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("config: %s: %w", it.key, err)
		}
		*it.dst = int32(n)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DB_MAX_CONN_LIFETIME", &c.Postgres.MaxConnLifetime},
		{"CART_COUNT_TTL", &c.Redis.CountTTL},
		{"OUTBOX_POLL_INTERVAL", &c.Kafka.PollInterval},
	}
	for _, it := range durations {
		v := os.Getenv(it.key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", it.key, err)
		}
		*it.dst = d
	}

	return nil
}

func (c *Config) Validate() error {
	if c.App.Port == "" {
		return errors.New("config: APP_PORT is required")
	}
	if c.Postgres.Host == "" || c.Postgres.DBName == "" || c.Postgres.User == "" {
		return errors.New("config: DB_HOST, DB_NAME and DB_USER are required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.OrderNumber.Attempts < 1 {
		return fmt.Errorf("config: ORDER_NUMBER_ATTEMPTS must be at least 1, got %d", c.OrderNumber.Attempts)
	}
	if c.Kafka.BatchSize < 1 {
		return fmt.Errorf("config: OUTBOX_BATCH_SIZE must be at least 1, got %d", c.Kafka.BatchSize)
	}
	return nil
}

// IsAdmin сообщает, может ли userID выполнять административные операции.
func (a AuthConfig) IsAdmin(userID int64) bool {
	for _, id := range a.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
