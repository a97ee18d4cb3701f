package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, DispatcherTemporal, cfg.Dispatcher)
	assert.Equal(t, "deploy-assist", cfg.Temporal.TaskQueue)
	assert.Equal(t, 5*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, "us-east-1", cfg.AWS.DefaultRegion)
	assert.False(t, cfg.GitHub.Enabled())
}

func TestLoadYAMLThenEnvironment(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log_level: debug
http:
  addr: ":9090"
  rate_limit: 5
dispatcher: local
task_timeout: 90s
database:
  host: db.internal
  user: deploy
aws:
  default_region: eu-west-1
github:
  token: ghp_file
  repository: acme/infra
`)
	t.Setenv("POSTGRES_DB_PASSWORD", "from-env")
	t.Setenv("DEPLOY_ASSIST_HTTP_ADDR", ":7070")
	t.Setenv("DEPLOY_ASSIST_REQUIRE_ADMIN", "true")
	t.Setenv("DEPLOY_ASSIST_ADMIN_TOKEN", "s3cret")

	cfg, err := Load("", path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, 5.0, cfg.HTTP.RateLimit)
	assert.Equal(t, DispatcherLocal, cfg.Dispatcher)
	assert.Equal(t, 90*time.Second, cfg.TaskTimeout)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "eu-west-1", cfg.AWS.DefaultRegion)
	assert.True(t, cfg.RequireAdmin)
	assert.True(t, cfg.GitHub.Enabled())

	owner, repo, err := cfg.GitHub.OwnerRepo()
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "infra", repo)
}

// unset clears keys for the test and restores them afterwards.
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "ROLE_ID=role-123\nSECRET_ID=secret-456\nVAULT_ADDR=https://vault.internal:8200\n")
	unset(t, "ROLE_ID", "VAULT_ADDR")
	// Variables already present in the environment win over the file.
	t.Setenv("SECRET_ID", "preset")

	cfg, err := Load(envFile, "")
	require.NoError(t, err)
	assert.Equal(t, "role-123", cfg.Vault.RoleID)
	assert.Equal(t, "preset", cfg.Vault.SecretID)
	assert.Equal(t, "https://vault.internal:8200", cfg.Vault.Address)
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"), "")
	assert.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing yaml", func(t *testing.T) {
		_, err := Load("", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load("", writeFile(t, "bad.yaml", "http: [unterminated"))
		assert.Error(t, err)
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("DEPLOY_ASSIST_TASK_TIMEOUT", "soon")
		_, err := Load("", "")
		assert.Error(t, err)
	})
	t.Run("bad bool", func(t *testing.T) {
		t.Setenv("DEPLOY_ASSIST_REQUIRE_ADMIN", "maybe")
		_, err := Load("", "")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown dispatcher", func(c *Config) { c.Dispatcher = "sidekiq" }},
		{"zero timeout", func(c *Config) { c.TaskTimeout = 0 }},
		{"admin without token", func(c *Config) { c.RequireAdmin = true }},
		{"negative rate", func(c *Config) { c.HTTP.RateLimit = -1 }},
		{"bad repository", func(c *Config) { c.GitHub = GitHubConfig{Token: "t", Repository: "acme"} }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestSupportedRegion(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.SupportedRegion("eu-west-1"))
	assert.False(t, cfg.SupportedRegion("mars-north-1"))

	cfg.AWS.Regions = nil
	assert.True(t, cfg.SupportedRegion("mars-north-1"))
}
