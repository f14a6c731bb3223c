package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_USER", "app")
	t.Setenv("DATABASE_DBNAME", "artist_finance")
	t.Setenv("IDENTITY_SIGNING_SECRET", testSecret)
	t.Setenv("IDENTITY_SIGN_IN_URL", "https://app.example.com/auth/sign-in")
	t.Setenv("REGISTRATION_VERIFY_URL", "https://app.example.com/auth/verify")
	t.Setenv("EMAIL_PROVIDER", "noop")
	t.Setenv("GIN_MODE", "release")
}

func TestLoad_DefaultsFromEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "file://migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, "single", cfg.Redis.Mode)
	assert.Equal(t, 24*time.Hour, cfg.Registration.CleanupInterval)
	assert.Equal(t, 30*time.Second, cfg.Registration.DuplicateWindow)
	assert.Equal(t, time.Hour, cfg.Identity.CredentialTTL)
	assert.Equal(t, "artist-finance-manager", cfg.Identity.Issuer)
	assert.Equal(t, "noop", cfg.Email.Provider)
	assert.Empty(t, cfg.Admin.APIKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REGISTRATION_CLEANUP_INTERVAL", "0s")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ADMIN_API_KEY", "admin-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.Registration.CleanupInterval)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "admin-key", cfg.Admin.APIKey)
}

func TestLoad_FileThenEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_HOST", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: from-file
  port: "6543"
registration:
  duplicate_window: 45s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, "6543", cfg.Database.Port)
	assert.Equal(t, 45*time.Second, cfg.Registration.DuplicateWindow)
}

func TestLoad_MissingFileFallsBack(t *testing.T) {
	setRequiredEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}

func TestLoadDatabase_OnlyRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_USER", "app")
	t.Setenv("DATABASE_DBNAME", "artist_finance")
	t.Setenv("IDENTITY_SIGNING_SECRET", "")
	t.Setenv("GIN_MODE", "release")

	cfg, err := LoadDatabase("")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Empty(t, cfg.Identity.SigningSecret)

	_, err = Load("")
	assert.Error(t, err, "the API still needs identity and email settings")
}

func TestLoadDatabase_MissingDatabase(t *testing.T) {
	t.Setenv("DATABASE_HOST", "")
	t.Setenv("GIN_MODE", "release")

	_, err := LoadDatabase("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:     DatabaseConfig{Host: "h", User: "u", DBName: "d"},
			Identity:     IdentityConfig{SigningSecret: testSecret, SignInURL: "https://app/sign-in"},
			Registration: RegistrationConfig{VerifyURL: "https://app/verify"},
			Email:        EmailConfig{Provider: "resend", ResendAPIKey: "re_123", From: "noreply@example.com"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"missing secret", func(c *Config) { c.Identity.SigningSecret = "" }},
		{"short secret", func(c *Config) { c.Identity.SigningSecret = "short" }},
		{"missing sign-in url", func(c *Config) { c.Identity.SignInURL = "" }},
		{"missing verify url", func(c *Config) { c.Registration.VerifyURL = "" }},
		{"resend without key", func(c *Config) { c.Email.ResendAPIKey = "" }},
		{"unknown provider", func(c *Config) { c.Email.Provider = "smtp" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPostgresConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", d.PostgresConnectionString())
}
