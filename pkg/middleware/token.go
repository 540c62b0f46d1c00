package middleware

import (
	"context"
	"crypto/subtle"
	"maps"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// bypassSubject と bypassEmail は固定トークン一致時に付与する擬似ユーザー。
const (
	bypassSubject = "test-user"
	bypassEmail   = "test@example.com"
)

// ExtractBearerToken はAuthorizationヘッダーの値からBearerトークンを取り出す。
// "Bearer <token>" の2要素形式でない場合は ok=false を返す。
func ExtractBearerToken(header string) (token string, ok bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Verifier はトークンを検証してIdentityを生成する。
// 失敗時は *CredentialError（ErrInvalidCredential）を返す。
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// VerifierConfig はVerifierの選択に使う設定。
type VerifierConfig struct {
	// Bypass がtrueの場合は固定トークンとの比較のみを行う。
	Bypass bool
	// BypassToken は受け付ける固定トークン。
	BypassToken string
	// Secret はJWTのHMAC署名鍵。
	Secret string
}

// NewVerifier は設定に応じてVerifierを一つ選ぶ。
// プロセス内のすべてのトークンは同じVerifierで検証される。
func NewVerifier(cfg VerifierConfig, logger zerolog.Logger) Verifier {
	if cfg.Bypass {
		return NewBypassVerifier(cfg.BypassToken)
	}
	return NewJWTVerifier(cfg.Secret, logger)
}

// BypassVerifier は固定トークンとの完全一致で検証する。
type BypassVerifier struct {
	token []byte
}

// NewBypassVerifier は新しいBypassVerifierを生成する。
func NewBypassVerifier(token string) *BypassVerifier {
	return &BypassVerifier{token: []byte(token)}
}

// Verify はトークンが固定トークンと一致する場合に擬似ユーザーのIdentityを返す。
func (v *BypassVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if len(v.token) == 0 || subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
		return nil, errInvalidBypass
	}
	return &Identity{
		Subject: bypassSubject,
		Email:   bypassEmail,
		Source:  SourceBypass,
	}, nil
}

// hmacMethods は受け付ける署名アルゴリズム。
var hmacMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// subjectClaims はSubjectとして採用するクレーム名（優先順）。
var subjectClaims = []string{"sub", "user_id", "id"}

// JWTVerifier はHMAC署名付きJWTを検証する。
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
	logger zerolog.Logger
}

// NewJWTVerifier は新しいJWTVerifierを生成する。
func NewJWTVerifier(secret string, logger zerolog.Logger) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods(hmacMethods)),
		logger: logger.With().Str("component", "jwt_verifier").Logger(),
	}
}

// Verify は署名・構造・有効期限を検証し、ペイロード全体を持つIdentityを返す。
// 失敗の詳細はデバッグログにのみ出力する。
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	parsed, err := v.parser.Parse(token, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		v.logger.Debug().Err(err).Msg("JWTの検証に失敗")
		return nil, errInvalidJWT
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		v.logger.Debug().Msg("JWTのクレーム形式が不正")
		return nil, errInvalidJWT
	}

	subject := subjectFrom(claims)
	if subject == "" {
		v.logger.Debug().Msg("JWTにsubjectが含まれていない")
		return nil, errInvalidJWT
	}
	email, _ := claims["email"].(string)

	return &Identity{
		Subject: subject,
		Email:   email,
		Source:  SourceJWT,
		Claims:  maps.Clone(map[string]any(claims)),
	}, nil
}

// subjectFrom はクレームからSubjectを決定する。
func subjectFrom(claims jwt.MapClaims) string {
	for _, name := range subjectClaims {
		switch v := claims[name].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
