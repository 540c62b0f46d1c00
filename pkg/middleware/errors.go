package middleware

import "errors"

var (
	// ErrMissingCredential はリクエストからトークンを抽出できなかったことを示す。
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential はトークンが検証に失敗したことを示す。
	ErrInvalidCredential = errors.New("invalid credential")
)

// クライアントに返すメッセージ。
const (
	messageMissingToken    = "JWT token is missing"
	messageInvalidBypass   = "Invalid hardcoded token"
	messageInvalidJWT      = "Invalid JWT token"
	messageInvalidIdentity = "Invalid credential"
	messageInternalError   = "Internal server error"
)

// CredentialError はゲートの拒否理由。
// Kindは ErrMissingCredential または ErrInvalidCredential、Messageはクライアントに返す文言。
type CredentialError struct {
	Kind    error
	Message string
}

// Error はクライアントに返す文言を返す。
func (e *CredentialError) Error() string {
	return e.Message
}

// Unwrap はerrors.Isで種別を判定できるようにする。
func (e *CredentialError) Unwrap() error {
	return e.Kind
}

var (
	errMissingToken    = &CredentialError{Kind: ErrMissingCredential, Message: messageMissingToken}
	errInvalidBypass   = &CredentialError{Kind: ErrInvalidCredential, Message: messageInvalidBypass}
	errInvalidJWT      = &CredentialError{Kind: ErrInvalidCredential, Message: messageInvalidJWT}
	errInvalidIdentity = &CredentialError{Kind: ErrInvalidCredential, Message: messageInvalidIdentity}
)
