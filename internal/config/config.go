package config

import (
	"errors"
	"log/slog"
	"os"
	"stop-spying-server/internal/consts"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 用于管理应用配置

var (
	// 使用 atomic.Value 存储 *Config，实现无锁读取
	appConfig atomic.Value
	configMu  sync.Mutex // 仅用于写操作互斥
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Session   SessionConfig   `mapstructure:"session"`
	MagicLink MagicLinkConfig `mapstructure:"magic_link"`
	WebAuthn  WebAuthnConfig  `mapstructure:"webauthn"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// TrustedProxies 为空时不信任任何代理，客户端 IP 只取连接的远端地址
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"`     // sqlite, mysql, postgres
	Filename string `mapstructure:"filename"` // for sqlite
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"` // database name
	SSL      bool   `mapstructure:"ssl"`  // enable TLS/SSL
	PoolSize int    `mapstructure:"pool_size"`
}

// SessionConfig 中的 MaxAgeSeconds 同时作用于签名信封、会话记录与 Cookie。
type SessionConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	MaxAgeSeconds int    `mapstructure:"max_age_seconds"`
	CookieName    string `mapstructure:"cookie_name"`
	Secure        bool   `mapstructure:"secure"`
	HTTPOnly      bool   `mapstructure:"http_only"`
	SameSite      string `mapstructure:"same_site"` // lax, strict, none
}

type MagicLinkConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

type WebAuthnConfig struct {
	RPID           string `mapstructure:"rp_id"`
	RPName         string `mapstructure:"rp_name"`
	Origin         string `mapstructure:"origin"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	SSL      bool   `mapstructure:"ssl"`
	StartTLS bool   `mapstructure:"starttls"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Requests      int  `mapstructure:"requests"`
	WindowSeconds int  `mapstructure:"window_seconds"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, human
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

type CleanupConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// Get 获取当前配置的快照（高性能无锁）
func Get() Config {
	val := appConfig.Load()
	if val == nil {
		return Config{}
	}
	c, ok := val.(*Config)
	if !ok {
		return Config{}
	}
	return *c
}

// InitConfig 加载配置；release 模式下会话密钥不安全时直接退出。
func InitConfig(customConfigDir string) {
	v := initViper(customConfigDir)
	loadAndStore(v)
	if err := enforceSecretSafety(Get()); err != nil {
		slog.Error("❌ [安全严重错误] "+err.Error(), "hint", "请设置环境变量 "+consts.EnvPrefix+"_SESSION_SECRET_KEY")
		os.Exit(1)
	}
	slog.Info("✅ 配置加载成功")
}

func initViper(customConfigDir string) *viper.Viper {
	v := viper.New()

	configDir := strings.TrimSpace(customConfigDir)
	if configDir == "" {
		configDir = "config"
	}

	// .env 只补充缺失的环境变量，不覆盖已有值
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("⚠️ 读取 .env 失败", "error", err)
	}

	// 设置配置文件路径
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			slog.Info("⚠️  未找到配置文件，将仅使用环境变量或默认值")
		} else {
			slog.Error("❌ 读取配置文件失败", "error", err)
			os.Exit(1)
		}
	}

	// 配置环境变量覆盖
	// 规则：所有环境变量必须以 STOPSPY_ 开头
	// 例如：yaml 中的 session.secret_key 对应环境变量 STOPSPY_SESSION_SECRET_KEY
	v.SetEnvPrefix(consts.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.filename", "database/stop_spying.db")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "stop_spying")
	v.SetDefault("database.ssl", false)
	v.SetDefault("database.pool_size", 5)
	v.SetDefault("session.secret_key", "")
	v.SetDefault("session.max_age_seconds", 604800)
	v.SetDefault("session.cookie_name", "session")
	v.SetDefault("session.secure", true)
	v.SetDefault("session.http_only", true)
	v.SetDefault("session.same_site", "lax")
	v.SetDefault("magic_link.ttl_seconds", 900)
	v.SetDefault("webauthn.rp_id", "localhost")
	v.SetDefault("webauthn.rp_name", consts.ApplicationName)
	v.SetDefault("webauthn.origin", "http://localhost:8000")
	v.SetDefault("webauthn.timeout_seconds", 60)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.ssl", false)
	v.SetDefault("smtp.starttls", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "stop_spying")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window_seconds", 3600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "stop-spying-server")
	v.SetDefault("cleanup.interval_seconds", 3600)
}

// loadAndStore 解析并原子更新配置
func loadAndStore(v *viper.Viper) {
	// 加写锁，防止并发重载时的竞争
	configMu.Lock()
	defer configMu.Unlock()

	var tempConfig Config
	if err := v.Unmarshal(&tempConfig); err != nil {
		slog.Error("❌ 配置解析失败", "error", err)
		return
	}

	if tempConfig.Server.Mode != "release" && len(tempConfig.Session.SecretKey) < consts.SessionSecretMinBytes {
		slog.Warn("⚠️ [开发模式警告] 会话密钥未设置或过短，将使用默认不安全密钥进行开发")
		tempConfig.Session.SecretKey = consts.DevSessionSecret
	}
	if tempConfig.Server.Mode != "release" && tempConfig.Session.Secure {
		// 开发环境通常没有 HTTPS
		tempConfig.Session.Secure = strings.HasPrefix(tempConfig.WebAuthn.Origin, "https://")
	}

	appConfig.Store(&tempConfig)
	slog.Info("✅ 配置已更新")
}

// enforceSecretSafety 在 release 模式下拦截缺失、过短或默认的会话密钥。
func enforceSecretSafety(cfg Config) error {
	if cfg.Server.Mode != "release" {
		return nil
	}
	secret := cfg.Session.SecretKey
	if secret == "" || secret == consts.DevSessionSecret {
		return errors.New("生产模式(release)下必须设置安全的会话密钥")
	}
	if len(secret) < consts.SessionSecretMinBytes {
		return errors.New("会话密钥长度不能少于 32 字节")
	}
	return nil
}
