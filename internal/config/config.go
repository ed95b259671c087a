// Package config はアプリケーションの設定を読み込む。
//
// 既定値、設定ファイル（任意）、環境変数の順に上書きされる。
// 環境変数は KIZUNA_ プレフィックスを付け、キーの "." を "_" に置き換えた名前で指定する
// （例: session.secret → KIZUNA_SESSION_SECRET）。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix は環境変数のプレフィックス。
const envPrefix = "KIZUNA"

// minSecretBytes はセッション署名鍵の最小バイト数。
const minSecretBytes = 32

// Config はアプリケーション全体の設定。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Tasks    TasksConfig    `mapstructure:"tasks"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port は待ち受けポート。
	Port string `mapstructure:"port"`
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string `mapstructure:"frontend_url"`
	// SecureCookies はHTTPS前提のCookie属性を使うかどうか。
	SecureCookies bool `mapstructure:"secure_cookies"`
}

// DatabaseConfig はSQLiteの設定。
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SessionConfig はセッションの設定。
type SessionConfig struct {
	// Secret はセッショントークンの署名鍵。32バイト以上。
	Secret string `mapstructure:"secret"`
	// TTL はセッションの有効期間。
	TTL time.Duration `mapstructure:"ttl"`
	// Store はセッションの保存先。"sqlite" または "redis"。
	Store string `mapstructure:"store"`
}

// RedisConfig はRedisの接続設定。Session.Storeが"redis"の場合のみ使う。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RelayConfig はパスワードリレーの設定。
// どちらも空の場合は起動時に鍵を生成する。
type RelayConfig struct {
	// PrivateKey はPEM形式の秘密鍵。
	PrivateKey string `mapstructure:"private_key"`
	// PrivateKeyPath はPEM形式の秘密鍵ファイルのパス。
	PrivateKeyPath string `mapstructure:"private_key_path"`
}

// TasksConfig はタスク計算APIの設定。
type TasksConfig struct {
	// BaseURL は上流APIのベースURL。
	BaseURL string `mapstructure:"base_url"`
	// ServiceSecret はサービス間JWTの署名鍵。
	ServiceSecret string `mapstructure:"service_secret"`
}

// LogConfig はログの設定。
type LogConfig struct {
	// Level はログレベル（debug, info, warn, error）。
	Level string `mapstructure:"level"`
	// Development は開発用の人間向け出力にするかどうか。
	Development bool `mapstructure:"development"`
}

// Load は設定を読み込む。pathが空の場合は環境変数 KIZUNA_CONFIG を参照し、
// それも空なら設定ファイルを読まない。
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("database.path", "kizuna.db")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.store", "sqlite")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("relay.private_key", "")
	v.SetDefault("relay.private_key_path", "")
	v.SetDefault("tasks.base_url", "http://localhost:8090")
	v.SetDefault("tasks.service_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("設定の変換に失敗: %w", err)
	}
	return c, nil
}

// Validate はサーバーの起動に必要な設定が揃っているかを検証する。
func (c Config) Validate() error {
	var errs []error
	if len(c.Session.Secret) < minSecretBytes {
		errs = append(errs, fmt.Errorf("session.secret は%dバイト以上が必要です", minSecretBytes))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl は正の値が必要です"))
	}
	switch c.Session.Store {
	case "sqlite":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("session.store が redis の場合は redis.addr が必要です"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.store が不正です: %q", c.Session.Store))
	}
	if c.Tasks.ServiceSecret == "" {
		errs = append(errs, errors.New("tasks.service_secret が必要です"))
	}
	if c.Relay.PrivateKey != "" && c.Relay.PrivateKeyPath != "" {
		errs = append(errs, errors.New("relay.private_key と relay.private_key_path は同時に指定できません"))
	}
	return errors.Join(errs...)
}
