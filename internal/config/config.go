// Package config はusersサービスのプロセス設定を読み込む。
//
// 設定は起動時に一度だけ環境変数（および任意の .env ファイル）から読み込み、
// 以降は読み取り専用として扱う。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nao1215/userapi/pkg/logging"
)

// 環境変数名。
const (
	envPort              = "PORT"
	envDatabasePath      = "DATABASE_PATH"
	envLogLevel          = "LOG_LEVEL"
	envLogFormat         = "LOG_FORMAT"
	envLogOutput         = "LOG_OUTPUT"
	envCORSOrigins       = "CORS_ORIGINS"
	envBcryptCost        = "BCRYPT_COST"
	envUseHardcodedToken = "USE_HARDCODED_TOKEN"
	envHardcodedToken    = "HARDCODED_TOKEN"
	envJWTSecret         = "JWT_SECRET"
)

var (
	// ErrImplicitBypass はJWT_SECRETが未設定で、バイパスモードが明示されていない場合のエラー。
	// この状態では署名検証が暗黙に無効化されるため起動を拒否する。
	ErrImplicitBypass = errors.New("JWT_SECRET is not set and USE_HARDCODED_TOKEN is not \"true\": refusing to enable bypass mode implicitly")
	// ErrEmptyBypassToken はバイパスモードでHARDCODED_TOKENが空の場合のエラー。
	ErrEmptyBypassToken = errors.New("bypass mode is enabled but HARDCODED_TOKEN is empty")
)

// Auth はトークン検証の設定。
type Auth struct {
	// UseHardcodedToken はUSE_HARDCODED_TOKENの生の値。
	UseHardcodedToken string
	// HardcodedToken はバイパスモードで受け付ける固定トークン。
	HardcodedToken string
	// JWTSecret はJWT署名検証の共有鍵。
	JWTSecret string
}

// BypassEnabled はバイパスモードが有効かどうかを返す。
// USE_HARDCODED_TOKENが"true"、またはJWT_SECRETが未設定の場合に有効になる。
func (a Auth) BypassEnabled() bool {
	return a.UseHardcodedToken == "true" || a.JWTSecret == ""
}

// Validate はバイパスモードが明示的に選択されていることを検証する。
func (a Auth) Validate() error {
	if a.JWTSecret == "" && a.UseHardcodedToken != "true" {
		return ErrImplicitBypass
	}
	if a.BypassEnabled() && a.HardcodedToken == "" {
		return ErrEmptyBypassToken
	}
	return nil
}

// Config はusersサービス全体の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DatabasePath はSQLiteのDSN。
	DatabasePath string
	// CORSOrigins は許可するオリジン。"*" はすべてのオリジンを許可する。
	CORSOrigins []string
	// BcryptCost はパスワードハッシュのコスト。
	BcryptCost int
	// Log はロガーの設定。
	Log logging.Config
	// Auth はトークン検証の設定。
	Auth Auth
}

// Validate は設定全体を検証する。
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31 (got: %d)", c.BcryptCost))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// options はLoadのオプション。
type options struct {
	envFile string
}

// Option はLoadの動作を変更する。
type Option func(*options)

// WithEnvFile は読み込む .env ファイルのパスを指定する。
func WithEnvFile(path string) Option {
	return func(o *options) { o.envFile = path }
}

// Load は環境変数から設定を読み込む。
// .env ファイルが存在する場合は先に読み込むが、既存の環境変数は上書きしない。
func Load(opts ...Option) (Config, error) {
	o := options{envFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	if o.envFile != "" {
		if _, err := os.Stat(o.envFile); err == nil {
			if err := godotenv.Load(o.envFile); err != nil {
				return Config{}, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
			}
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(envPort, "3000")
	v.SetDefault(envDatabasePath, "/data/users.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	v.SetDefault(envLogLevel, "info")
	v.SetDefault(envLogFormat, logging.FormatJSON)
	v.SetDefault(envLogOutput, "stdout")
	v.SetDefault(envCORSOrigins, "*")
	v.SetDefault(envBcryptCost, 10)

	cfg := Config{
		Port:         v.GetString(envPort),
		DatabasePath: v.GetString(envDatabasePath),
		CORSOrigins:  splitList(v.GetString(envCORSOrigins)),
		BcryptCost:   v.GetInt(envBcryptCost),
		Log: logging.Config{
			Level:   v.GetString(envLogLevel),
			Format:  v.GetString(envLogFormat),
			Output:  v.GetString(envLogOutput),
			Service: "users",
		},
		Auth: Auth{
			UseHardcodedToken: v.GetString(envUseHardcodedToken),
			HardcodedToken:    v.GetString(envHardcodedToken),
			JWTSecret:         v.GetString(envJWTSecret),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("設定の検証に失敗: %w", err)
	}
	return cfg, nil
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
