package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, TransportNone, cfg.Notify.Transport)
	assert.Equal(t, "recipe.revised", cfg.Notify.Subject)
	assert.Equal(t, "recipetrail", cfg.Metrics.Namespace)
	assert.Equal(t, 3, cfg.Notify.PublishAttempts)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipetrail.yaml")
	content := `
database:
  driver: postgres
  dsn: postgres://localhost/recipes
  max_open_conns: 8
notify:
  transport: redis
  publish_attempts: 5
  retry_delay: 200ms
  redis:
    addr: redis:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Run("文件覆盖默认值", func(t *testing.T) {
		cfg, err := load(path, noEnv)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 8, cfg.Database.MaxOpenConns)
		assert.Equal(t, TransportRedis, cfg.Notify.Transport)
		assert.Equal(t, "redis:6379", cfg.Notify.Redis.Addr)
		assert.Equal(t, 5, cfg.Notify.PublishAttempts)
		assert.Equal(t, 200*time.Millisecond, cfg.Notify.RetryDelay)
		// 未出现在文件中的字段保留默认值
		assert.Equal(t, "recipetrail:events", cfg.Notify.Redis.Stream)
	})

	t.Run("环境变量优先于文件", func(t *testing.T) {
		env := map[string]string{
			"RECIPETRAIL_DB_DSN":            "postgres://db/other",
			"RECIPETRAIL_NOTIFY_TRANSPORT":  "nats",
			"RECIPETRAIL_NATS_URL":          "nats://nats:4222",
			"RECIPETRAIL_DB_MAX_OPEN_CONNS": "3",
		}
		lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

		cfg, err := load(path, lookup)
		require.NoError(t, err)
		assert.Equal(t, "postgres://db/other", cfg.Database.DSN)
		assert.Equal(t, TransportNATS, cfg.Notify.Transport)
		assert.Equal(t, "nats://nats:4222", cfg.Notify.NATS.URL)
		assert.Equal(t, 3, cfg.Database.MaxOpenConns)
	})
}

func TestLoad_Errors(t *testing.T) {
	t.Run("未知字段", func(t *testing.T) {
		cfg := Default()
		err := Decode([]byte("databse:\n  driver: sqlite\n"), cfg)
		assert.Error(t, err)
	})

	t.Run("不支持的传输", func(t *testing.T) {
		lookup := func(k string) (string, bool) {
			if k == "RECIPETRAIL_NOTIFY_TRANSPORT" {
				return "kafka", true
			}
			return "", false
		}
		_, err := load("", lookup)
		assert.Error(t, err)
	})

	t.Run("非法整数", func(t *testing.T) {
		lookup := func(k string) (string, bool) {
			if k == "RECIPETRAIL_DB_MAX_OPEN_CONNS" {
				return "many", true
			}
			return "", false
		}
		_, err := load("", lookup)
		assert.Error(t, err)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
		assert.Error(t, err)
	})
}

func TestConfig_DBConfig(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = ":memory:"
	dbc := cfg.DBConfig()
	assert.Equal(t, "sqlite", dbc.Driver)
	assert.Equal(t, ":memory:", dbc.Database)
	assert.Equal(t, 1, dbc.MaxOpenConns)
}
