package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config 节点配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	P2P      P2PConfig      `mapstructure:"p2p"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Log      LogConfig      `mapstructure:"log"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite, postgres
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

// RedisConfig 区块缓存一级缓存，Addr 为空时关闭
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled 是否启用 redis
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type P2PConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	KeyDir         string        `mapstructure:"key_dir"`
	Topic          string        `mapstructure:"topic"`
	BootstrapPeers []string      `mapstructure:"bootstrap_peers"`
	EnableMDNS     bool          `mapstructure:"enable_mdns"`
	MDNSService    string        `mapstructure:"mdns_service"`
	PublishRate    float64       `mapstructure:"publish_rate"` // msgs/sec
	PublishBurst   int           `mapstructure:"publish_burst"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	DialRetries    int           `mapstructure:"dial_retries"`
}

// ListenAddr libp2p 监听 multiaddr
func (p P2PConfig) ListenAddr() string { return fmt.Sprintf("/ip4/%s/tcp/%d", p.Host, p.Port) }

type OracleConfig struct {
	DomainScheme      string        `mapstructure:"domain_scheme"`
	DomainTimeout     time.Duration `mapstructure:"domain_timeout"`
	ContentMaxBytes   int64         `mapstructure:"content_max_bytes"`
	BlockAPIURL       string        `mapstructure:"block_api_url"`
	BlockTimeout      time.Duration `mapstructure:"block_timeout"`
	ConcurrentLookups bool          `mapstructure:"concurrent_lookups"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
}

// IngestConfig gossip 消费队列
type IngestConfig struct {
	QueueSize  int           `mapstructure:"queue_size"`
	Workers    int           `mapstructure:"workers"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
	File   string `mapstructure:"file"`
}

type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./did.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("p2p.host", "0.0.0.0")
	v.SetDefault("p2p.port", 4001)
	v.SetDefault("p2p.key_dir", "./keys")
	v.SetDefault("p2p.topic", "news")
	v.SetDefault("p2p.bootstrap_peers", []string{})
	v.SetDefault("p2p.enable_mdns", true)
	v.SetDefault("p2p.mdns_service", "did-instance")
	v.SetDefault("p2p.publish_rate", 100)
	v.SetDefault("p2p.publish_burst", 200)
	v.SetDefault("p2p.dial_timeout", 10*time.Second)
	v.SetDefault("p2p.dial_retries", 3)

	v.SetDefault("oracle.domain_scheme", "http")
	v.SetDefault("oracle.domain_timeout", 10*time.Second)
	v.SetDefault("oracle.content_max_bytes", 5<<20)
	v.SetDefault("oracle.block_api_url", "https://blockchain.info")
	v.SetDefault("oracle.block_timeout", 10*time.Second)
	v.SetDefault("oracle.concurrent_lookups", false)
	v.SetDefault("oracle.breaker_timeout", 30*time.Second)

	v.SetDefault("ingest.queue_size", 10000)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.job_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)

	v.SetDefault("tracing.service_name", "did-node")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load 读取 config.yaml（可选）与 DID_ 前缀环境变量
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom 使用给定的 viper 实例加载，便于测试覆盖
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("DID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// 环境变量给出的逗号分隔列表
	if len(cfg.P2P.BootstrapPeers) == 1 && strings.Contains(cfg.P2P.BootstrapPeers[0], ",") {
		cfg.P2P.BootstrapPeers = strings.Split(cfg.P2P.BootstrapPeers[0], ",")
	}
	cfg.P2P.BootstrapPeers = lo.Uniq(lo.Compact(lo.Map(cfg.P2P.BootstrapPeers, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置；所有外部调用必须有上限超时
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Oracle.DomainTimeout <= 0 {
		return errors.New("oracle.domain_timeout must be positive")
	}
	if c.Oracle.BlockTimeout <= 0 {
		return errors.New("oracle.block_timeout must be positive")
	}
	if c.P2P.DialTimeout <= 0 {
		return errors.New("p2p.dial_timeout must be positive")
	}
	if c.Ingest.JobTimeout <= 0 {
		return errors.New("ingest.job_timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Oracle.ContentMaxBytes <= 0 {
		return errors.New("oracle.content_max_bytes must be positive")
	}
	if c.Oracle.DomainScheme != "http" && c.Oracle.DomainScheme != "https" {
		return fmt.Errorf("oracle.domain_scheme must be http or https, got %q", c.Oracle.DomainScheme)
	}
	if c.P2P.Topic == "" {
		return errors.New("p2p.topic must not be empty")
	}
	return nil
}
