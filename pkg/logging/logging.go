package logging

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FormatJSON は1行1JSONの出力形式。
	FormatJSON = "json"
	// FormatConsole は人間向けの整形出力形式。
	FormatConsole = "console"
)

// Config はロガーの設定。
type Config struct {
	// Level はログレベル（trace, debug, info, warn, error）。
	Level string
	// Format は出力形式（json, console）。
	Format string
	// Output は出力先（stdout, stderr, またはファイルパス）。
	Output string
	// Service はすべてのログに付与するサービス名。
	Service string
}

// applyDefaults は未設定の項目にデフォルト値を設定する。
func (c *Config) applyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// Validate はロガー設定を検証する。
func (c Config) Validate() error {
	c.applyDefaults()
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("不正なログレベル %q: %w", c.Level, err)
	}
	if !slices.Contains([]string{FormatJSON, FormatConsole}, strings.ToLower(c.Format)) {
		return fmt.Errorf("不正なログ形式 %q（json または console）", c.Format)
	}
	return nil
}

// New は設定からロガーを生成する。
// 返り値のクローズ関数は出力先がファイルの場合にファイルを閉じる。
func New(cfg Config) (zerolog.Logger, func() error, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), nil, err
	}

	out, closer, err := openOutput(cfg.Output)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	level, _ := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	logger := newLogger(out, cfg.Format).Level(level)
	if cfg.Service != "" {
		logger = logger.With().Str("service", cfg.Service).Logger()
	}
	return logger, closer, nil
}

// newLogger は出力形式に応じたzerolog.Loggerを生成する。
func newLogger(w io.Writer, format string) zerolog.Logger {
	if strings.ToLower(format) == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// openOutput は出力先を開く。標準出力・標準エラーは閉じない。
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr":
		return os.Stderr, noop, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("ログファイルのオープンに失敗: %w", err)
	}
	return f, f.Close, nil
}
