package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store はユーザーの永続化を行う。
type Store interface {
	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はErrNotFoundを返す。
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create はユーザーを保存する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, u *User) error
}

// SQLiteStore はSQLiteを使ったStoreの実装。
// メールアドレスの一意性はUNIQUEインデックスで保証する。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore は新しいSQLiteStoreを生成する。
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// FindByEmail はメールアドレスでユーザーを検索する。
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u         User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, full_name, email, password, created_at FROM users WHERE email = ?", email,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗: %w", err)
	}

	u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("登録日時のパースに失敗: %w", err)
	}
	return &u, nil
}

// Create はユーザーを保存する。
func (s *SQLiteStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, full_name, email, password, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.FullName, u.Email, u.PasswordHash, u.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return nil
}

// isUniqueViolation はSQLiteのUNIQUE制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
