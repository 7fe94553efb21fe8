package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/social"
	"social-graph-service/backend/internal/txn"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	// Storage.Backend: badger | mysql
	Storage struct {
		Backend string `mapstructure:"backend"`
	} `mapstructure:"storage"`
	Badger struct {
		Path       string        `mapstructure:"path"`
		InMemory   bool          `mapstructure:"inmemory"`
		SyncWrites bool          `mapstructure:"syncwrites"`
		GCInterval time.Duration `mapstructure:"gcinterval"`
	} `mapstructure:"badger"`
	Mysql struct {
		DSN     string `mapstructure:"dsn"`
		Migrate bool   `mapstructure:"migrate"`
	} `mapstructure:"mysql"`
	Redis struct {
		Enabled  bool     `mapstructure:"enabled"`
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Enabled        bool          `mapstructure:"enabled"`
		Brokers        []string      `mapstructure:"brokers"`
		Topic          string        `mapstructure:"topic"`
		QueueSize      int           `mapstructure:"queuesize"`
		Workers        int           `mapstructure:"workers"`
		MaxInFlight    int           `mapstructure:"maxinflight"`
		MaxRetry       int           `mapstructure:"maxretry"`
		EnqueueTimeout time.Duration `mapstructure:"enqueuetimeout"`
		AcquireTimeout time.Duration `mapstructure:"acquiretimeout"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	// Consistency 每个功能的一致性模式：strong | eventual | express
	Consistency struct {
		Likes         string `mapstructure:"likes"`
		Pins          string `mapstructure:"pins"`
		Follows       string `mapstructure:"follows"`
		TopicFollows  string `mapstructure:"topicfollows"`
		Reports       string `mapstructure:"reports"`
		Popular       string `mapstructure:"popular"`
		Notifications string `mapstructure:"notifications"`
	} `mapstructure:"consistency"`
	// Tables container -> table -> 覆盖项
	Tables map[string]map[string]TableOverride `mapstructure:"tables"`
}

type TableOverride struct {
	Physical      string `mapstructure:"physical"`
	MaxFeedLength int    `mapstructure:"maxfeedlength"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 3004)
	v.SetDefault("storage.backend", "badger")
	v.SetDefault("badger.path", "./data/social-graph")
	v.SetDefault("badger.inmemory", false)
	v.SetDefault("badger.syncwrites", false)
	v.SetDefault("badger.gcinterval", 5*time.Minute)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "social-graph-tx")
	v.SetDefault("kafka.queuesize", 10000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxinflight", 8)
	v.SetDefault("kafka.maxretry", 3)
	v.SetDefault("kafka.enqueuetimeout", 50*time.Millisecond)
	v.SetDefault("kafka.acquiretimeout", 5*time.Second)
	v.SetDefault("auth.secret", "")
	for _, k := range []string{"likes", "pins", "follows", "topicfollows", "reports", "popular", "notifications"} {
		v.SetDefault("consistency."+k, "strong")
	}
}

// Load 读 SocialGraphConfig.yaml；找不到配置文件时只用默认值和环境变量
//
// 环境变量前缀 SOCIAL，层级用下划线：SOCIAL_STORAGE_BACKEND=mysql
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("SocialGraphConfig")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("SOCIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "badger":
	case "mysql":
		if c.Mysql.DSN == "" {
			return errors.New("config: mysql.dsn is required when storage.backend=mysql")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	if _, err := c.Modes(); err != nil {
		return err
	}
	return nil
}

// Modes 解析 consistency 段
func (c *Config) Modes() (social.Modes, error) {
	var m social.Modes
	for _, f := range []struct {
		name string
		raw  string
		dst  *txn.ConsistencyMode
	}{
		{"likes", c.Consistency.Likes, &m.Likes},
		{"pins", c.Consistency.Pins, &m.Pins},
		{"follows", c.Consistency.Follows, &m.Follows},
		{"topicfollows", c.Consistency.TopicFollows, &m.TopicFollows},
		{"reports", c.Consistency.Reports, &m.Reports},
		{"popular", c.Consistency.Popular, &m.Popular},
		{"notifications", c.Consistency.Notifications, &m.Notifications},
	} {
		mode, err := txn.ParseMode(f.raw)
		if err != nil {
			return m, fmt.Errorf("config: consistency.%s: %w", f.name, err)
		}
		*f.dst = mode
	}
	return m, nil
}

// Registry 默认表集合 + tables 段的覆盖
func (c *Config) Registry() (*schema.Registry, error) {
	defs := schema.DefaultTables()
	known := make(map[string]bool, len(defs))
	for i := range defs {
		known[defs[i].String()] = true
		o, ok := c.Tables[defs[i].Container][defs[i].Name]
		if !ok {
			continue
		}
		if o.Physical != "" {
			defs[i].Physical = o.Physical
		}
		if o.MaxFeedLength != 0 {
			defs[i].MaxFeedLength = o.MaxFeedLength
		}
	}
	for container, tables := range c.Tables {
		for name := range tables {
			if !known[container+"."+name] {
				return nil, fmt.Errorf("config: tables.%s.%s: %w", container, name, schema.ErrUnknownTable)
			}
		}
	}
	return schema.NewRegistry(defs...)
}

// JWTSecret auth.secret 为空时回落到 JWT_SECRET / dev-secret
func (c *Config) JWTSecret(fallback func() []byte) []byte {
	if c.Auth.Secret != "" {
		return []byte(c.Auth.Secret)
	}
	return fallback()
}
