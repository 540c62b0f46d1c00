package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/userapi/internal/config"
	"github.com/nao1215/userapi/pkg/middleware"
	"github.com/nao1215/userapi/pkg/migration"
)

const (
	// maxBodyBytes はリクエストボディの上限。
	maxBodyBytes = 1 << 20
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 10 * time.Second
)

// Server はユーザー登録サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// gate はルートごとのアクセス判定を行う。
	gate *middleware.Gate
	// service はユーザー登録のユースケース。
	service *Service
	// logger は構造化ロガー。
	logger zerolog.Logger
}

// NewServer は新しいユーザー登録サーバーを生成する。
// SQLiteデータベースを開き、マイグレーションを適用する。
func NewServer(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if _, err := migration.Run(ctx, sqlDB, migrationsFS, migrationsDir, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	if cfg.Auth.BypassEnabled() {
		logger.Warn().Msg("固定トークンによるバイパスモードで起動します。署名検証は行われません")
	}

	return newServer(cfg, sqlDB, logger), nil
}

// newServer は初期化済みのDBからサーバーを組み立てる。
func newServer(cfg config.Config, db *sql.DB, logger zerolog.Logger) *Server {
	verifier := middleware.NewVerifier(middleware.VerifierConfig{
		Bypass:      cfg.Auth.BypassEnabled(),
		BypassToken: cfg.Auth.HardcodedToken,
		Secret:      cfg.Auth.JWTSecret,
	}, logger)

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	s := &Server{
		router:  router,
		port:    cfg.Port,
		db:      db,
		gate:    middleware.NewGate(verifier, logger),
		service: NewService(NewSQLiteStore(db), NewBcryptHasher(cfg.BcryptCost), logger),
		logger:  logger,
	}
	s.setupRoutes()

	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msgf("Application is running on: http://localhost:%s", s.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("シャットダウンを開始")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return <-errCh
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ユーザー（認証必須）
	users := s.gate.Group(&s.router.RouterGroup, "/users", middleware.AccessProtected)
	users.POST("/register", middleware.AccessInherit, s.handleRegister())

	// ヘルスチェック（認証不要）
	root := s.gate.Group(&s.router.RouterGroup, "", middleware.AccessPublic)
	root.GET("/health", middleware.AccessInherit, s.handleHealth())
}

// handleRegister はユーザー登録ハンドラーを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

		req, err := decodeRegisterRequest(c.Request.Body)
		if err != nil {
			s.writeError(c, err)
			return
		}

		s.logger.Info().
			Str("email", req.Email).
			Str("requested_by", middleware.GetUserID(c)).
			Msg("登録リクエストを受信")

		user, err := s.service.Register(c.Request.Context(), req)
		if err != nil {
			s.writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, registerResponse{
			Success: true,
			Message: messageRegistered,
			User:    toUserResponse(user),
		})
	}
}

// handleHealth はヘルスチェックハンドラーを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			s.logger.Error().Err(err).Msg("データベースに接続できない")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "users"})
	}
}

// writeError はエラーの種類に応じたステータスコードでレスポンスを返す。
// 内部エラーの詳細はクライアントに返さない。
func (s *Server) writeError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: messageValidation, Fields: verr.Violations})
	case errors.Is(err, ErrBodyTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: messageBodyTooLarge})
	case errors.Is(err, ErrDuplicateEmail):
		c.JSON(http.StatusConflict, errorResponse{Error: messageDuplicateEmail})
	default:
		if !errors.Is(err, ErrInternal) {
			s.logger.Error().Err(err).Msg("想定外のエラー")
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Error: messageInternal})
	}
}
