package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Source はIdentityを生成した検証方式。
type Source string

const (
	// SourceBypass は固定トークンとの一致で生成されたIdentity。
	SourceBypass Source = "bypass"
	// SourceJWT は署名検証済みJWTから生成されたIdentity。
	SourceJWT Source = "jwt"
)

// Identity は認証済みの呼び出し元を表す。
// Subjectは常に空ではない。ClaimsはSourceがSourceJWTの場合のみ信頼できる。
type Identity struct {
	// Subject は呼び出し元の一意識別子。
	Subject string `json:"sub"`
	// Email は呼び出し元のメールアドレス。無い場合は空文字列。
	Email string `json:"email,omitempty"`
	// Source は検証方式。
	Source Source `json:"type"`
	// Claims はJWTペイロードの全フィールド。
	Claims map[string]any `json:"claims,omitempty"`
}

// Verified は署名検証済みのIdentityかどうかを返す。
func (id *Identity) Verified() bool {
	return id != nil && id.Source == SourceJWT
}

// Claim はJWTペイロードの値を返す。署名検証済みでない場合は見つからない扱いにする。
func (id *Identity) Claim(name string) (any, bool) {
	if !id.Verified() {
		return nil, false
	}
	v, ok := id.Claims[name]
	return v, ok
}

// identityKey はIdentityを格納するコンテキストキー。
type identityKey struct{}

// contextKeyUserID はGinコンテキストにユーザーIDを格納するキー。
const contextKeyUserID = "user_id"

// SetIdentity はIdentityをコンテキストに格納する。
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext はコンテキストからIdentityを取得する。
// 公開エンドポイントなどで未設定の場合はnilを返す。
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// Gateが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	if id := IdentityFromContext(c.Request.Context()); id != nil {
		return id.Subject
	}
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
