package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers supported for the user store.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Fallback token secrets, accepted only in development.
const (
	devAccessTokenSecret  = "dev-access-secret"
	devRefreshTokenSecret = "dev-refresh-secret"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Cookie   CookieConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSAllowOrigins      string
}

// DatabaseConfig selects the user store backend.
type DatabaseConfig struct {
	Driver     string
	SQLitePath string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Encoding    string
	Development bool
}

// AuthConfig defines token signing and credential parameters.
type AuthConfig struct {
	AccessTokenSecret      string
	RefreshTokenSecret     string
	AccessTokenTTLMinutes  int
	RefreshTokenTTLHours   int
	BcryptCost             int
	LoginMaxAttempts       int
	LoginAttemptWindowSecs int
}

// CookieConfig names the refresh token cookie. Its security attributes are fixed.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "session-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSAllowOrigins:      getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			SQLitePath: getEnv("SQLITE_PATH", "session-service.db"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    getEnv("LOG_ENCODING", "json"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			AccessTokenSecret:      getEnv("ACCESS_TOKEN_SECRET", devAccessTokenSecret),
			RefreshTokenSecret:     getEnv("REFRESH_TOKEN_SECRET", devRefreshTokenSecret),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLHours:   getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 7*24),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 10),
			LoginMaxAttempts:       getEnvAsInt("AUTH_LOGIN_MAX_ATTEMPTS", 0),
			LoginAttemptWindowSecs: getEnvAsInt("AUTH_LOGIN_ATTEMPT_WINDOW_SECONDS", 900),
		},
		Cookie: CookieConfig{
			Name:   getEnv("REFRESH_COOKIE_NAME", "jwt"),
			Path:   getEnv("REFRESH_COOKIE_PATH", "/"),
			Domain: os.Getenv("REFRESH_COOKIE_DOMAIN"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that would make the session protocol unsafe or unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.AccessTokenSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required"))
	}
	if c.Auth.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required"))
	}
	if c.Auth.AccessTokenSecret != "" && c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if !c.App.IsDevelopment() {
		if c.Auth.AccessTokenSecret == devAccessTokenSecret {
			errs = append(errs, errors.New("ACCESS_TOKEN_SECRET must be set outside development"))
		}
		if c.Auth.RefreshTokenSecret == devRefreshTokenSecret {
			errs = append(errs, errors.New("REFRESH_TOKEN_SECRET must be set outside development"))
		}
	}
	if c.Auth.AccessTokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TOKEN_TTL_MINUTES must be positive"))
	}
	if c.Auth.RefreshTokenTTLHours <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESH_TOKEN_TTL_HOURS must be positive"))
	}
	if c.Auth.LoginMaxAttempts > 0 && c.Auth.LoginAttemptWindowSecs <= 0 {
		errs = append(errs, errors.New("AUTH_LOGIN_ATTEMPT_WINDOW_SECONDS must be positive when the login throttle is enabled"))
	}
	if strings.TrimSpace(c.App.CORSAllowOrigins) == "*" {
		errs = append(errs, errors.New("CORS_ALLOW_ORIGINS cannot be * with credentialed requests"))
	}
	if c.Cookie.Name == "" {
		errs = append(errs, errors.New("REFRESH_COOKIE_NAME is required"))
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment reports whether APP_ENV names a development or test environment.
func (a AppConfig) IsDevelopment() bool {
	switch strings.ToLower(a.Env) {
	case "", "development", "dev", "local", "test":
		return true
	}
	return false
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the access token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token (and cookie) lifetime.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}

// LoginAttemptWindow returns how long failed logins are remembered.
func (a AuthConfig) LoginAttemptWindow() time.Duration {
	return time.Duration(a.LoginAttemptWindowSecs) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
