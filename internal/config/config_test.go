package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("TAGBLOG_ADDR", "")
	t.Setenv("PORT", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "tagblog.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, RateLimits{AuthPerMinute: 20, PostPerMinute: 30, CommentPerMinute: 60}, cfg.RateLimits)
}

func TestPortFallback(t *testing.T) {
	t.Setenv("TAGBLOG_ADDR", "")
	t.Setenv("PORT", "9000")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)

	t.Setenv("TAGBLOG_ADDR", "127.0.0.1:7000")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestOverrides(t *testing.T) {
	t.Setenv("TAGBLOG_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TAGBLOG_RL_POST_PER_MIN", "5")
	t.Setenv("TAGBLOG_BCRYPT_COST", "4")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.RateLimits.PostPerMinute)
	assert.Equal(t, 4, cfg.BcryptCost)
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("TAGBLOG_DB_DRIVER", "mysql")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "unknown TAGBLOG_DB_DRIVER")

	t.Setenv("TAGBLOG_DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/tagblog")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)

	t.Setenv("TAGBLOG_BCRYPT_COST", "99")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "TAGBLOG_BCRYPT_COST")

	t.Setenv("TAGBLOG_BCRYPT_COST", "ten")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TAGBLOG_DB=from-file.db\n"), 0o600))
	t.Chdir(dir)
	// godotenv only fills unset variables; t.Setenv registers cleanup first.
	t.Setenv("TAGBLOG_DB", "")
	require.NoError(t, os.Unsetenv("TAGBLOG_DB"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.DBPath)
}

func TestLoadWithoutDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load()
	assert.NoError(t, err)
}
