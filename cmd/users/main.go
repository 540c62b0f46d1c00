// ユーザー登録サービスのエントリポイント。
// Bearerトークンによる認証ゲートの背後で POST /users/register を提供する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nao1215/userapi/internal/config"
	"github.com/nao1215/userapi/internal/users"
	"github.com/nao1215/userapi/pkg/logging"
)

func main() {
	os.Exit(run())
}

// run はサービスを起動し、終了コードを返す。
func run() int {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "users").Logger()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error().Err(err).Msg("設定の読み込みに失敗")
		return 1
	}

	logger, closeLogger, err := logging.New(cfg.Log)
	if err != nil {
		bootLogger.Error().Err(err).Msg("ロガーの初期化に失敗")
		return 1
	}
	defer func() { _ = closeLogger() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := users.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("ユーザー登録サーバーの初期化に失敗")
		return 1
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Error().Err(err).Msg("データベース接続のクローズに失敗")
		}
	}()

	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("ユーザー登録サービスの実行に失敗")
		return 1
	}
	logger.Info().Msg("ユーザー登録サービスを停止しました")
	return 0
}
