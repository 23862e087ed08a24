package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		viper.Set("jwt.secret_key", "test-secret")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, StorePostgres, cfg.Store)
		assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
		assert.Equal(t, 5.0, cfg.AwardRateLimit)
		assert.Equal(t, 10, cfg.AwardRateBurst)
	})

	t.Run("missing secret", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
	})

	t.Run("unknown store", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		viper.Set("jwt.secret_key", "test-secret")
		viper.Set("ledger.store", "mongo")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestInit(t *testing.T) {
	t.Run("environment binding", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		t.Setenv("LEDGER_STORE", "memory")
		t.Setenv("JWT_SECRET_KEY", "from-env")
		t.Setenv("PORT", "9090")

		require.NoError(t, Init(""))
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, StoreMemory, cfg.Store)
		assert.Equal(t, "from-env", cfg.JWTSecret)
		assert.Equal(t, "9090", cfg.Port)
	})

	t.Run("env file", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		t.Setenv("PORT", "")
		t.Setenv("JWT_SECRET_KEY", "")

		path := filepath.Join(t.TempDir(), "rewards.yaml")
		require.NoError(t, os.WriteFile(path, []byte("jwt:\n  secret_key: from-file\nserver:\n  port: \"7070\"\n"), 0o600))

		require.NoError(t, Init(path))
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.JWTSecret)
		assert.Equal(t, "7070", cfg.Port)
	})

	t.Run("dotenv file", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		for _, env := range []string{"JWT_SECRET_KEY", "LEDGER_STORE", "PORT"} {
			t.Setenv(env, "")
			os.Unsetenv(env)
		}
		t.Setenv("PORT", "6060")

		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET_KEY=from-dotenv\nLEDGER_STORE=memory\nPORT=5050\n"), 0o600))

		require.NoError(t, Init(path))
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", cfg.JWTSecret)
		assert.Equal(t, StoreMemory, cfg.Store)
		assert.Equal(t, "6060", cfg.Port, "environment wins over the file")
	})

	t.Run("missing file", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		err := Init(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
