package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
	Glpk     GlpkConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// DispatchConfig holds the tunables for the per-tick dispatch pipeline:
// route extension, pool building, the fallback assigner and relocation.
type DispatchConfig struct {
	TickInterval          time.Duration `mapstructure:"DISPATCH_TICK_INTERVAL"`
	MaxLegs               int           `mapstructure:"DISPATCH_MAX_LEGS"`
	MaxAngle              float64       `mapstructure:"DISPATCH_MAX_ANGLE"`
	ExtendMargin          float64       `mapstructure:"DISPATCH_EXTEND_MARGIN"`
	StopWaitMinutes       int           `mapstructure:"DISPATCH_STOP_WAIT_MINUTES"`
	MaxExtenderSize       int           `mapstructure:"DISPATCH_MAX_EXTENDER_SIZE"`
	MaxAssignTimeMinutes  int           `mapstructure:"DISPATCH_MAX_ASSIGN_TIME_MINUTES"`
	CabSpeedKmph          float64       `mapstructure:"DISPATCH_CAB_SPEED_KMPH"`
	PoolThreads           int           `mapstructure:"DISPATCH_POOL_THREADS"`
	MaxInPool             int           `mapstructure:"DISPATCH_MAX_IN_POOL"`
	PoolDedupDropoffsToo  bool          `mapstructure:"DISPATCH_POOL_DEDUP_DROPOFFS_TOO"`
	RelocationStrategy    string        `mapstructure:"DISPATCH_RELOCATION_STRATEGY"` // "greedy" or "glpk"
	DistanceMatrixPath    string        `mapstructure:"DISPATCH_DISTANCE_MATRIX_PATH"`
}

// GlpkConfig holds the settings for the external GLPK transportation-LP
// solver used by the "glpk" relocation strategy.
type GlpkConfig struct {
	Enabled   bool   `mapstructure:"GLPK_ENABLED"`
	BinPath   string `mapstructure:"GLPK_BIN_PATH"`
	ModelPath string `mapstructure:"GLPK_MODEL_PATH"`
	OutPath   string `mapstructure:"GLPK_OUT_PATH"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "dispatch")
	viper.SetDefault("POSTGRES_PASSWORD", "dispatch_secret")
	viper.SetDefault("POSTGRES_DB", "dispatch_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("DISPATCH_TICK_INTERVAL", "15s")
	viper.SetDefault("DISPATCH_MAX_LEGS", 8)
	viper.SetDefault("DISPATCH_MAX_ANGLE", 120.0)
	viper.SetDefault("DISPATCH_EXTEND_MARGIN", 1.05)
	viper.SetDefault("DISPATCH_STOP_WAIT_MINUTES", 5)
	viper.SetDefault("DISPATCH_MAX_EXTENDER_SIZE", 10000)
	viper.SetDefault("DISPATCH_MAX_ASSIGN_TIME_MINUTES", 10)
	viper.SetDefault("DISPATCH_CAB_SPEED_KMPH", 30.0)
	viper.SetDefault("DISPATCH_POOL_THREADS", 4)
	viper.SetDefault("DISPATCH_MAX_IN_POOL", 4)
	viper.SetDefault("DISPATCH_POOL_DEDUP_DROPOFFS_TOO", false)
	viper.SetDefault("DISPATCH_RELOCATION_STRATEGY", "greedy")
	viper.SetDefault("DISPATCH_DISTANCE_MATRIX_PATH", "")

	viper.SetDefault("GLPK_ENABLED", false)
	viper.SetDefault("GLPK_BIN_PATH", "glpsol")
	viper.SetDefault("GLPK_MODEL_PATH", "glpk.mod")
	viper.SetDefault("GLPK_OUT_PATH", "out.csv")

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("POSTGRES_HOST"),
		Port:     viper.GetInt("POSTGRES_PORT"),
		User:     viper.GetString("POSTGRES_USER"),
		Password: viper.GetString("POSTGRES_PASSWORD"),
		DBName:   viper.GetString("POSTGRES_DB"),
		SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Dispatch ────────────────────────────────────────
	cfg.Dispatch = DispatchConfig{
		TickInterval:         viper.GetDuration("DISPATCH_TICK_INTERVAL"),
		MaxLegs:              viper.GetInt("DISPATCH_MAX_LEGS"),
		MaxAngle:             viper.GetFloat64("DISPATCH_MAX_ANGLE"),
		ExtendMargin:         viper.GetFloat64("DISPATCH_EXTEND_MARGIN"),
		StopWaitMinutes:      viper.GetInt("DISPATCH_STOP_WAIT_MINUTES"),
		MaxExtenderSize:      viper.GetInt("DISPATCH_MAX_EXTENDER_SIZE"),
		MaxAssignTimeMinutes: viper.GetInt("DISPATCH_MAX_ASSIGN_TIME_MINUTES"),
		CabSpeedKmph:         viper.GetFloat64("DISPATCH_CAB_SPEED_KMPH"),
		PoolThreads:          viper.GetInt("DISPATCH_POOL_THREADS"),
		MaxInPool:            viper.GetInt("DISPATCH_MAX_IN_POOL"),
		PoolDedupDropoffsToo: viper.GetBool("DISPATCH_POOL_DEDUP_DROPOFFS_TOO"),
		RelocationStrategy:   viper.GetString("DISPATCH_RELOCATION_STRATEGY"),
		DistanceMatrixPath:   viper.GetString("DISPATCH_DISTANCE_MATRIX_PATH"),
	}

	// ── GLPK ────────────────────────────────────────────
	cfg.Glpk = GlpkConfig{
		Enabled:   viper.GetBool("GLPK_ENABLED"),
		BinPath:   viper.GetString("GLPK_BIN_PATH"),
		ModelPath: viper.GetString("GLPK_MODEL_PATH"),
		OutPath:   viper.GetString("GLPK_OUT_PATH"),
	}

	return cfg, nil
}
