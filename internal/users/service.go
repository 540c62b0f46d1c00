package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service はユーザー登録のユースケースを実行する。
type Service struct {
	store  Store
	hasher Hasher
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService は新しいServiceを生成する。
func NewService(store Store, hasher Hasher, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		logger: logger.With().Str("component", "users_service").Logger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Register は入力を検証してユーザーを登録する。
//
// 返すエラーは *ValidationError、ErrDuplicateEmail、ErrInternal のいずれか。
// 入力検証に失敗した場合はStoreを呼び出さない。
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if violations := req.Validate(); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	_, err := s.store.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return nil, ErrDuplicateEmail
	case !errors.Is(err, ErrNotFound):
		s.logger.Error().Err(err).Str("email", req.Email).Msg("登録に失敗: メールアドレスの確認")
		return nil, ErrInternal
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Str("email", req.Email).Msg("登録に失敗: パスワードのハッシュ化")
		return nil, ErrInternal
	}

	user := &User{
		ID:           s.newID(),
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		s.logger.Error().Err(err).Str("email", req.Email).Msg("登録に失敗: ユーザーの保存")
		return nil, ErrInternal
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("ユーザーを登録")
	return user, nil
}
