package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, int64(50000), cfg.Pricing.PerTank)
	require.Contains(t, cfg.Pricing.Coupons, "FLAT20")
	require.Error(t, cfg.ValidateServe())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
  shutdown_grace: 3s
database:
  url: postgres://file
  max_conns: 4
auth:
  jwt_secret: from-file
  token_ttl: 2h
log:
  level: debug
  format: console
pricing:
  per_tank: 60000
  coupons:
    MONSOON:
      flat: 10000
`), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTP.Addr)
	require.Equal(t, 3*time.Second, cfg.HTTP.ShutdownGrace)
	require.Equal(t, "postgres://env", cfg.Database.URL)
	require.Equal(t, int32(4), cfg.Database.MaxConns)
	require.Equal(t, "from-file", cfg.Auth.JWTSecret)
	require.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "console", cfg.Log.Format)
	require.Equal(t, int64(60000), cfg.Pricing.PerTank)
	require.Equal(t, int64(10000), cfg.Pricing.Coupons["MONSOON"].Flat)
	require.NoError(t, cfg.ValidateServe())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unterminated"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyEnv_BadMaxConns(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "DB_MAX_CONNS" {
			return "many", true
		}
		return "", false
	})
	require.Error(t, err)
}
