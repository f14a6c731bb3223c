package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Registration RegistrationConfig
	Identity     IdentityConfig
	Email        EmailConfig
	Admin        AdminConfig
	CORS         CORSConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// RegistrationConfig controls the pending registration token lifecycle.
type RegistrationConfig struct {
	// CleanupInterval is the period of the in-process cleanup loop. 0 disables it.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// DuplicateWindow suppresses repeated link requests for the same email.
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
	// VerifyURL is the client page that receives ?token=... from the email.
	VerifyURL string `mapstructure:"verify_url"`
}

// IdentityConfig configures the local identity provider and its sign-in credentials.
type IdentityConfig struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	SignInURL     string        `mapstructure:"sign_in_url"`
	CredentialTTL time.Duration `mapstructure:"credential_ttl"`
	Issuer        string        `mapstructure:"issuer"`
}

// EmailConfig selects the outgoing mail provider.
type EmailConfig struct {
	Provider     string `mapstructure:"provider"` // "resend" или "noop"
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// AdminConfig protects maintenance endpoints.
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// CORSConfig содержит список разрешенных источников
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase loads the same sources but only requires the database section.
// Used by maintenance commands that never touch identity or email.
func LoadDatabase(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(configPath string) (*Config, error) {
	// Локальный .env не обязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to read .env file: %v", err)
	}

	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readTimeout", 15)
	vip.SetDefault("server.writeTimeout", 15)
	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.migrations_path", "file://migrations")
	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("registration.cleanup_interval", "24h")
	vip.SetDefault("registration.duplicate_window", "30s")
	vip.SetDefault("identity.credential_ttl", "1h")
	vip.SetDefault("identity.issuer", "artist-finance-manager")
	vip.SetDefault("email.provider", "resend")

	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")
	vip.BindEnv("database.migrations_path", "DATABASE_MIGRATIONS_PATH")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("registration.cleanup_interval", "REGISTRATION_CLEANUP_INTERVAL")
	vip.BindEnv("registration.duplicate_window", "REGISTRATION_DUPLICATE_WINDOW")
	vip.BindEnv("registration.verify_url", "REGISTRATION_VERIFY_URL")

	vip.BindEnv("identity.signing_secret", "IDENTITY_SIGNING_SECRET")
	vip.BindEnv("identity.sign_in_url", "IDENTITY_SIGN_IN_URL")
	vip.BindEnv("identity.credential_ttl", "IDENTITY_CREDENTIAL_TTL")
	vip.BindEnv("identity.issuer", "IDENTITY_ISSUER")

	vip.BindEnv("email.provider", "EMAIL_PROVIDER")
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	vip.BindEnv("admin.api_key", "ADMIN_API_KEY")
	vip.BindEnv("cors.allow_origins", "CORS_ALLOW_ORIGINS")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// Файл не обязателен, т.к. есть BindEnv
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				log.Printf("Config file '%s' not found, using environment and defaults.", configPath)
			} else {
				log.Printf("Warning: failed to read config file '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s (mode %s)", cfg.Redis.Addr, cfg.Redis.Mode)
		log.Printf("Registration Cleanup Interval: %s", cfg.Registration.CleanupInterval)
		log.Printf("Identity Signing Secret Set: %t", cfg.Identity.SigningSecret != "")
		log.Printf("Email Provider: %s", cfg.Email.Provider)
		log.Printf("Admin API Enabled: %t", cfg.Admin.APIKey != "")
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	return &cfg, nil
}

// ValidateDatabase проверяет только параметры подключения к PostgreSQL
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	return nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.Identity.SigningSecret == "" {
		return fmt.Errorf("identity signing secret is required (check IDENTITY_SIGNING_SECRET env var)")
	}
	if len(c.Identity.SigningSecret) < 32 {
		return fmt.Errorf("identity signing secret must be at least 32 characters")
	}
	if c.Identity.SignInURL == "" {
		return fmt.Errorf("identity sign-in URL is required (check IDENTITY_SIGN_IN_URL env var)")
	}
	if c.Registration.VerifyURL == "" {
		return fmt.Errorf("registration verify URL is required (check REGISTRATION_VERIFY_URL env var)")
	}
	switch c.Email.Provider {
	case "resend":
		if c.Email.ResendAPIKey == "" || c.Email.From == "" {
			return fmt.Errorf("resend provider requires RESEND_API_KEY and EMAIL_FROM")
		}
	case "noop":
	default:
		return fmt.Errorf("unsupported email provider: %s", c.Email.Provider)
	}
	return nil
}
