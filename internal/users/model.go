package users

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrDuplicateEmail は同じメールアドレスのユーザーが既に存在することを示す。
	ErrDuplicateEmail = errors.New("user with this email already exists")
	// ErrNotFound はユーザーが見つからないことを示す。
	ErrNotFound = errors.New("user not found")
	// ErrValidation は入力値が制約を満たさないことを示す。
	ErrValidation = errors.New("validation failed")
	// ErrBodyTooLarge はリクエストボディが上限を超えたことを示す。
	ErrBodyTooLarge = errors.New("request body too large")
	// ErrInternal は登録処理中の想定外の失敗を示す。詳細はログにのみ出力する。
	ErrInternal = errors.New("failed to register user")
)

// クライアントに返すメッセージ。
const (
	messageRegistered     = "User registered successfully"
	messageDuplicateEmail = "User with this email already exists"
	messageValidation     = "Validation failed"
	messageInternal       = "Failed to register user"
	messageBodyTooLarge   = "Request body is too large"
)

// User は保存されるユーザー。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// FullName は氏名。
	FullName string
	// Email はメールアドレス。
	Email string
	// PasswordHash はbcryptでハッシュ化したパスワード。
	PasswordHash string `json:"-"`
	// CreatedAt は登録日時（UTC）。
	CreatedAt time.Time
}

// RegisterRequest はユーザー登録リクエストのJSON構造。
type RegisterRequest struct {
	// FullName は氏名。
	FullName string `json:"fullName" validate:"required"`
	// Email はメールアドレス。
	Email string `json:"email" validate:"required,email"`
	// Password は平文のパスワード。
	Password string `json:"password" validate:"required,min=8"`
}

// FieldViolation は1つのフィールドの制約違反。
type FieldViolation struct {
	// Field はJSONのフィールド名。
	Field string `json:"field"`
	// Message は違反内容。
	Message string `json:"message"`
}

// ValidationError は入力検証の失敗。errors.Is(err, ErrValidation) で判定できる。
type ValidationError struct {
	Violations []FieldViolation
}

// Error は違反内容を連結して返す。
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

// Unwrap はErrValidationを返す。
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// userResponse はユーザーのJSONレスポンス構造。パスワードは含まない。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// FullName は氏名。
	FullName string `json:"fullName"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// CreatedAt は登録日時。
	CreatedAt time.Time `json:"createdAt"`
}

// registerResponse はユーザー登録成功時のJSONレスポンス構造。
type registerResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// errorResponse はエラー時のJSONレスポンス構造。
type errorResponse struct {
	Error  string           `json:"error"`
	Fields []FieldViolation `json:"fields,omitempty"`
}

// toUserResponse はUserをレスポンス構造に変換する。
func toUserResponse(u *User) userResponse {
	return userResponse{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
