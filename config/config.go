// Package config 加载 recipetrail 的运行配置。
//
// 加载顺序：默认值 → YAML 文件（可选）→ RECIPETRAIL_* 环境变量。
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	core "recipetrail/data/db"
)

// 通知传输类型
const (
	TransportNone   = "none"
	TransportMemory = "memory"
	TransportRedis  = "redis"
	TransportNATS   = "nats"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "RECIPETRAIL_"

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 秒
}

type LogConfig struct {
	Mode  string `yaml:"mode"`  // production | development
	Level string `yaml:"level"` // debug | info | warn | error
}

type NotifyConfig struct {
	Transport string `yaml:"transport"`
	// Subject 修订通知的消息类型
	Subject string `yaml:"subject"`
	// PublishAttempts 发布失败时的总尝试次数（含首次）
	PublishAttempts int           `yaml:"publish_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	Redis           RedisConfig   `yaml:"redis"`
	NATS            NATSConfig    `yaml:"nats"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

type NATSConfig struct {
	URL    string `yaml:"url"`
	Stream string `yaml:"stream"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default 默认配置：本地 SQLite 文件，不发送通知
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "recipetrail.db",
			MaxOpenConns: 1,
		},
		Log: LogConfig{
			Mode:  "production",
			Level: "info",
		},
		Notify: NotifyConfig{
			Transport:       TransportNone,
			Subject:         "recipe.revised",
			PublishAttempts: 3,
			RetryDelay:      50 * time.Millisecond,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Stream: "recipetrail:events",
				MaxLen: 10000,
			},
			NATS: NATSConfig{
				URL:    "nats://127.0.0.1:4222",
				Stream: "RECIPETRAIL",
			},
		},
		Metrics: MetricsConfig{
			Namespace: "recipetrail",
		},
	}
}

// Load 读取配置。path 为空时跳过文件，只应用默认值与环境变量。
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := Decode(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode 将 YAML 合并到 cfg 上；未知字段视为错误
func Decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_DSN", &cfg.Database.DSN)
	str("LOG_MODE", &cfg.Log.Mode)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("NOTIFY_TRANSPORT", &cfg.Notify.Transport)
	str("REDIS_ADDR", &cfg.Notify.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Notify.Redis.Password)
	str("NATS_URL", &cfg.Notify.NATS.URL)

	if v, ok := lookup(EnvPrefix + "DB_MAX_OPEN_CONNS"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sDB_MAX_OPEN_CONNS 不是整数: %w", EnvPrefix, err)
		}
		cfg.Database.MaxOpenConns = n
	}
	return nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch strings.ToLower(c.Notify.Transport) {
	case "", TransportNone, TransportMemory, TransportRedis, TransportNATS:
	default:
		return fmt.Errorf("不支持的通知传输: %q", c.Notify.Transport)
	}
	if strings.TrimSpace(c.Database.Driver) == "" {
		return fmt.Errorf("database.driver 不能为空")
	}
	if c.Notify.PublishAttempts < 0 || c.Notify.RetryDelay < 0 {
		return fmt.Errorf("notify 重试参数不能为负数")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("连接池大小不能为负数")
	}
	return nil
}

// DBConfig 转换为存储层配置
func (c *Config) DBConfig() core.DBConfig {
	return core.DBConfig{
		Driver:          c.Database.Driver,
		Database:        c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}
