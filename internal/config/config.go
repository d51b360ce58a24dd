package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Env       string `yaml:"env"`
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	UploadDir string `yaml:"upload_dir"`
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
	MigrationsPath  string        `yaml:"migrations_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Name        string        `yaml:"name"`
	Concurrency int           `yaml:"concurrency"`
	ResultTTL   time.Duration `yaml:"result_ttl"`
}

type JobsConfig struct {
	SummaryInterval time.Duration `yaml:"summary_interval"`
	ImportBatchSize int           `yaml:"import_batch_size"`
	ProductCacheTTL time.Duration `yaml:"product_cache_ttl"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// NewConfig loads .env from the working directory (if present), then CONFIG_FILE
// (if set), then applies environment overrides.
func NewConfig() (*Config, error) {
	return Load(".env")
}

func Load(envPath string) (*Config, error) {
	if envPath != "" {
		err := godotenv.Load(envPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Env = "development"
	cfg.App.Port = "8080"
	cfg.App.LogLevel = "info"
	cfg.App.UploadDir = "uploads"

	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute
	cfg.Postgres.MigrationsPath = "migrations"

	cfg.Redis.Addr = "localhost:6379"

	cfg.Queue.Name = "default"
	cfg.Queue.Concurrency = 4
	cfg.Queue.ResultTTL = 24 * time.Hour

	cfg.Jobs.SummaryInterval = 30 * time.Minute
	cfg.Jobs.ImportBatchSize = 400
	cfg.Jobs.ProductCacheTTL = 5 * time.Minute
	return cfg
}

func loadYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	setString(&cfg.App.UploadDir, "UPLOAD_DIR")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "MIGRATIONS_PATH")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Queue.Name, "QUEUE_NAME")

	var err error
	if cfg.Postgres.MaxConns, err = int32Env("DB_MAX_CONNS", cfg.Postgres.MaxConns); err != nil {
		return err
	}
	if cfg.Postgres.MinConns, err = int32Env("DB_MIN_CONNS", cfg.Postgres.MinConns); err != nil {
		return err
	}
	if cfg.Postgres.MaxConnLifetime, err = durationEnv("DB_MAX_CONN_LIFETIME", cfg.Postgres.MaxConnLifetime); err != nil {
		return err
	}
	if cfg.Redis.DB, err = intEnv("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	if cfg.Queue.Concurrency, err = intEnv("QUEUE_CONCURRENCY", cfg.Queue.Concurrency); err != nil {
		return err
	}
	if cfg.Queue.ResultTTL, err = durationEnv("QUEUE_RESULT_TTL", cfg.Queue.ResultTTL); err != nil {
		return err
	}
	if cfg.Jobs.SummaryInterval, err = durationEnv("SUMMARY_INTERVAL", cfg.Jobs.SummaryInterval); err != nil {
		return err
	}
	if cfg.Jobs.ImportBatchSize, err = intEnv("IMPORT_BATCH_SIZE", cfg.Jobs.ImportBatchSize); err != nil {
		return err
	}
	if cfg.Jobs.ProductCacheTTL, err = durationEnv("PRODUCT_CACHE_TTL", cfg.Jobs.ProductCacheTTL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"DB_HOST":     c.Postgres.Host,
		"DB_PORT":     c.Postgres.Port,
		"DB_USER":     c.Postgres.User,
		"DB_PASSWORD": c.Postgres.Password,
		"DB_NAME":     c.Postgres.DBName,
	}
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
		if required[key] == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be positive, got %d", c.Queue.Concurrency)
	}
	if c.Jobs.ImportBatchSize < 1 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.Jobs.ImportBatchSize)
	}
	if c.Jobs.SummaryInterval <= 0 {
		return fmt.Errorf("SUMMARY_INTERVAL must be positive, got %s", c.Jobs.SummaryInterval)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func int32Env(key string, def int32) (int32, error) {
	n, err := intEnv(key, int(def))
	return int32(n), err
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
