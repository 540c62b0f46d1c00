package middleware

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Decision はゲートの判定結果。
type Decision int

const (
	// DecisionPublic は公開エンドポイントのため認証なしで許可したことを示す。
	DecisionPublic Decision = iota
	// DecisionAuthenticated はトークンの検証に成功したことを示す。
	DecisionAuthenticated
	// DecisionRejected はリクエストを拒否したことを示す。
	DecisionRejected
)

// String は判定結果の名前を返す。
func (d Decision) String() string {
	switch d {
	case DecisionPublic:
		return "public"
	case DecisionAuthenticated:
		return "authenticated"
	case DecisionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result はDecideの結果。
type Result struct {
	Decision Decision
	// Identity はDecisionAuthenticatedの場合のみ設定される。
	Identity *Identity
	// Err はDecisionRejectedの場合のみ設定される *CredentialError。
	Err error
}

// Access はルートに付与するアクセスポリシー。
type Access uint8

const (
	// AccessInherit は外側のグループのポリシーに従う。
	AccessInherit Access = iota
	// AccessPublic は認証を要求しない。
	AccessPublic
	// AccessProtected はBearerトークンを要求する。
	AccessProtected
)

// ResolveAccess は内側（より具体的）から順に並べたポリシーのうち、
// 最初にAccessInheritでないものを採用して公開かどうかを返す。
// すべてAccessInheritの場合は保護対象とする。
func ResolveAccess(levels ...Access) bool {
	for _, a := range levels {
		switch a {
		case AccessPublic:
			return true
		case AccessProtected:
			return false
		}
	}
	return false
}

// Gate はリクエストごとにアクセス可否を判定する。
// 判定は呼び出し間で状態を持たない。routesはルート登録時にのみ書き込まれる。
type Gate struct {
	verifier Verifier
	logger   zerolog.Logger
	routes   map[string]bool
}

// NewGate は新しいGateを生成する。
func NewGate(verifier Verifier, logger zerolog.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		logger:   logger.With().Str("component", "gate").Logger(),
		routes:   make(map[string]bool),
	}
}

// Decide は公開判定、トークン抽出、トークン検証の順にアクセス可否を決める。
func (g *Gate) Decide(ctx context.Context, public bool, authorization string) Result {
	if public {
		return Result{Decision: DecisionPublic}
	}

	token, ok := ExtractBearerToken(authorization)
	if !ok {
		return Result{Decision: DecisionRejected, Err: errMissingToken}
	}

	id, err := g.verifier.Verify(ctx, token)
	if err != nil {
		var credErr *CredentialError
		if !errors.As(err, &credErr) {
			g.logger.Error().Err(err).Msg("想定外の検証エラー")
			credErr = errInvalidIdentity
		}
		return Result{Decision: DecisionRejected, Err: credErr}
	}
	if id == nil || id.Subject == "" {
		g.logger.Error().Msg("検証結果のIdentityにsubjectが無い")
		return Result{Decision: DecisionRejected, Err: errInvalidIdentity}
	}

	return Result{Decision: DecisionAuthenticated, Identity: id}
}

// Guard はDecideを実行するGinミドルウェアを返す。
// 拒否時は401を返してハンドラーを実行しない。成功時はIdentityをリクエストコンテキストに格納する。
func (g *Gate) Guard(public bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := g.Decide(c.Request.Context(), public, c.GetHeader("Authorization"))

		switch res.Decision {
		case DecisionRejected:
			g.logger.Warn().
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Err(res.Err).
				Msg("認証に失敗")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": res.Err.Error()})
			return
		case DecisionAuthenticated:
			c.Request = c.Request.WithContext(SetIdentity(c.Request.Context(), res.Identity))
			c.Set(contextKeyUserID, res.Identity.Subject)
		}
		c.Next()
	}
}

// Routes はルート登録時に解決したポリシー表（"METHOD /path" → 公開かどうか）のコピーを返す。
func (g *Gate) Routes() map[string]bool {
	return maps.Clone(g.routes)
}

// RouteGroup はアクセスポリシー付きのルートグループ。
type RouteGroup struct {
	group  *gin.RouterGroup
	gate   *Gate
	access Access
}

// Group はparent配下にポリシー付きのルートグループを作成する。
func (g *Gate) Group(parent *gin.RouterGroup, relativePath string, access Access) *RouteGroup {
	return &RouteGroup{
		group:  parent.Group(relativePath),
		gate:   g,
		access: access,
	}
}

// Handle はルートを登録する。accessがAccessInheritの場合はグループのポリシーに従う。
// ポリシーはここで一度だけ解決され、リクエスト時には参照しない。
func (r *RouteGroup) Handle(method, relativePath string, access Access, handlers ...gin.HandlerFunc) {
	public := ResolveAccess(access, r.access)
	r.gate.routes[method+" "+path.Join(r.group.BasePath(), relativePath)] = public

	chain := make([]gin.HandlerFunc, 0, len(handlers)+1)
	chain = append(chain, r.gate.Guard(public))
	chain = append(chain, handlers...)
	r.group.Handle(method, relativePath, chain...)
}

// GET はGETルートを登録する。
func (r *RouteGroup) GET(relativePath string, access Access, handlers ...gin.HandlerFunc) {
	r.Handle(http.MethodGet, relativePath, access, handlers...)
}

// POST はPOSTルートを登録する。
func (r *RouteGroup) POST(relativePath string, access Access, handlers ...gin.HandlerFunc) {
	r.Handle(http.MethodPost, relativePath, access, handlers...)
}
