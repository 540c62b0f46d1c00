package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testBypassToken はテスト用の固定トークン。
const testBypassToken = "hardcoded-test-token"

// stubVerifier は任意の結果を返すVerifier。
type stubVerifier struct {
	id    *Identity
	err   error
	calls int
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (*Identity, error) {
	s.calls++
	return s.id, s.err
}

// TestResolveAccess はResolveAccessを検証する。
func TestResolveAccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		levels []Access
		want   bool
	}{
		{name: "ルートの公開指定がグループの保護指定より優先されること", levels: []Access{AccessPublic, AccessProtected}, want: true},
		{name: "ルートの保護指定がグループの公開指定より優先されること", levels: []Access{AccessProtected, AccessPublic}, want: false},
		{name: "ルートが継承ならグループの公開指定に従うこと", levels: []Access{AccessInherit, AccessPublic}, want: true},
		{name: "ルートが継承ならグループの保護指定に従うこと", levels: []Access{AccessInherit, AccessProtected}, want: false},
		{name: "すべて継承なら保護されること", levels: []Access{AccessInherit, AccessInherit}, want: false},
		{name: "指定が無ければ保護されること", levels: nil, want: false},
		{name: "入れ子のグループでは最も内側の指定に従うこと", levels: []Access{AccessInherit, AccessInherit, AccessPublic, AccessProtected}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ResolveAccess(tt.levels...); got != tt.want {
				t.Errorf("ResolveAccess(%v) = %v, want %v", tt.levels, got, tt.want)
			}
		})
	}
}

// TestGateDecide はGate.Decideの判定を検証する。
func TestGateDecide(t *testing.T) {
	t.Parallel()

	t.Run("公開エンドポイントはヘッダーに関係なく許可されること", func(t *testing.T) {
		t.Parallel()

		stub := &stubVerifier{err: errInvalidJWT}
		gate := NewGate(stub, zerolog.Nop())
		for _, header := range []string{"", "Bearer wrong", "garbage"} {
			res := gate.Decide(context.Background(), true, header)
			if res.Decision != DecisionPublic {
				t.Errorf("header %q: Decision = %v, want %v", header, res.Decision, DecisionPublic)
			}
			if res.Identity != nil {
				t.Errorf("header %q: 公開エンドポイントではIdentityを付与すべきではない", header)
			}
		}
		if stub.calls != 0 {
			t.Errorf("Verifierの呼び出し回数 = %d, want 0", stub.calls)
		}
	})

	t.Run("トークンが無い場合はErrMissingCredentialで拒否されること", func(t *testing.T) {
		t.Parallel()

		stub := &stubVerifier{}
		gate := NewGate(stub, zerolog.Nop())
		for _, header := range []string{"", "Token abc", "Bearer"} {
			res := gate.Decide(context.Background(), false, header)
			if res.Decision != DecisionRejected {
				t.Errorf("header %q: Decision = %v, want %v", header, res.Decision, DecisionRejected)
			}
			if !errors.Is(res.Err, ErrMissingCredential) {
				t.Errorf("header %q: Err = %v, want %v", header, res.Err, ErrMissingCredential)
			}
		}
		if stub.calls != 0 {
			t.Errorf("Verifierの呼び出し回数 = %d, want 0", stub.calls)
		}
	})

	t.Run("検証成功でIdentityが返ること", func(t *testing.T) {
		t.Parallel()

		want := &Identity{Subject: "u-1", Source: SourceJWT}
		gate := NewGate(&stubVerifier{id: want}, zerolog.Nop())
		res := gate.Decide(context.Background(), false, "Bearer abc")
		if res.Decision != DecisionAuthenticated {
			t.Fatalf("Decision = %v, want %v", res.Decision, DecisionAuthenticated)
		}
		if res.Identity != want {
			t.Errorf("Identity = %+v, want %+v", res.Identity, want)
		}
	})

	t.Run("検証失敗はErrInvalidCredentialで拒否されること", func(t *testing.T) {
		t.Parallel()

		gate := NewGate(&stubVerifier{err: errInvalidBypass}, zerolog.Nop())
		res := gate.Decide(context.Background(), false, "Bearer abc")
		if res.Decision != DecisionRejected || !errors.Is(res.Err, ErrInvalidCredential) {
			t.Errorf("Result = %+v, want rejected with %v", res, ErrInvalidCredential)
		}
		if res.Err.Error() != "Invalid hardcoded token" {
			t.Errorf("メッセージ = %q, want %q", res.Err.Error(), "Invalid hardcoded token")
		}
	})

	t.Run("想定外のエラーも詳細を隠してErrInvalidCredentialになること", func(t *testing.T) {
		t.Parallel()

		gate := NewGate(&stubVerifier{err: errors.New("connection refused")}, zerolog.Nop())
		res := gate.Decide(context.Background(), false, "Bearer abc")
		if !errors.Is(res.Err, ErrInvalidCredential) {
			t.Errorf("Err = %v, want %v", res.Err, ErrInvalidCredential)
		}
		if strings.Contains(res.Err.Error(), "connection refused") {
			t.Errorf("内部エラーの詳細が漏れている: %q", res.Err.Error())
		}
	})

	t.Run("subjectが空のIdentityは拒否されること", func(t *testing.T) {
		t.Parallel()

		gate := NewGate(&stubVerifier{id: &Identity{Source: SourceJWT}}, zerolog.Nop())
		res := gate.Decide(context.Background(), false, "Bearer abc")
		if res.Decision != DecisionRejected || !errors.Is(res.Err, ErrInvalidCredential) {
			t.Errorf("Result = %+v, want rejected with %v", res, ErrInvalidCredential)
		}
	})
}

// newGateRouter はゲート付きのテスト用ルーターを生成する。
// /users 配下は保護、/users/public は公開、/open 配下は公開で /open/secret のみ保護。
func newGateRouter(gate *Gate, captured **Identity) *gin.Engine {
	router := gin.New()
	handler := func(c *gin.Context) {
		if captured != nil {
			*captured = IdentityFromContext(c.Request.Context())
		}
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	}

	users := gate.Group(&router.RouterGroup, "/users", AccessProtected)
	users.POST("/register", AccessInherit, handler)
	users.GET("/public", AccessPublic, handler)

	open := gate.Group(&router.RouterGroup, "/open", AccessPublic)
	open.GET("/info", AccessInherit, handler)
	open.GET("/secret", AccessProtected, handler)

	return router
}

// doRequest はテスト用リクエストを実行する。
func doRequest(router http.Handler, method, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// errorMessage はレスポンスボディのerrorフィールドを返す。
func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v", err)
	}
	return body["error"]
}

// TestGateGuardBypassMode はバイパスモードでのGinミドルウェアの動作を検証する。
func TestGateGuardBypassMode(t *testing.T) {
	t.Parallel()

	newRouter := func(captured **Identity) *gin.Engine {
		verifier := NewVerifier(VerifierConfig{Bypass: true, BypassToken: testBypassToken}, zerolog.Nop())
		return newGateRouter(NewGate(verifier, zerolog.Nop()), captured)
	}

	t.Run("固定トークンで許可されIdentityが付与されること", func(t *testing.T) {
		t.Parallel()

		var got *Identity
		w := doRequest(newRouter(&got), http.MethodPost, "/users/register", "Bearer "+testBypassToken)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got == nil || got.Subject != "test-user" || got.Source != SourceBypass {
			t.Errorf("Identity = %+v, want subject=test-user source=bypass", got)
		}
		if !strings.Contains(w.Body.String(), `"user_id":"test-user"`) {
			t.Errorf("GetUserIDがtest-userを返すべき: %s", w.Body.String())
		}
	})

	t.Run("異なるトークンは401で拒否されること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(newRouter(nil), http.MethodPost, "/users/register", "Bearer other-token")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := errorMessage(t, w); got != "Invalid hardcoded token" {
			t.Errorf("error = %q, want %q", got, "Invalid hardcoded token")
		}
	})

	t.Run("Authorizationヘッダーが無い場合は401で拒否されること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(newRouter(nil), http.MethodPost, "/users/register", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := errorMessage(t, w); got != "JWT token is missing" {
			t.Errorf("error = %q, want %q", got, "JWT token is missing")
		}
	})
}

// TestGateGuardJWTMode は署名検証モードでのGinミドルウェアの動作を検証する。
func TestGateGuardJWTMode(t *testing.T) {
	t.Parallel()

	newRouter := func(captured **Identity) *gin.Engine {
		verifier := NewVerifier(VerifierConfig{Secret: testSecret}, zerolog.Nop())
		return newGateRouter(NewGate(verifier, zerolog.Nop()), captured)
	}

	t.Run("有効なトークンで許可されペイロードが付与されること", func(t *testing.T) {
		t.Parallel()

		var got *Identity
		token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims())
		w := doRequest(newRouter(&got), http.MethodPost, "/users/register", "Bearer "+token)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got == nil || got.Subject != "user-123" || !got.Verified() {
			t.Fatalf("Identity = %+v, want verified user-123", got)
		}
		if got.Claims["role"] != "member" {
			t.Errorf("Claims[role] = %v, want %q", got.Claims["role"], "member")
		}
	})

	t.Run("固定トークンは署名検証モードでは拒否されること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(newRouter(nil), http.MethodPost, "/users/register", "Bearer "+testBypassToken)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := errorMessage(t, w); got != "Invalid JWT token" {
			t.Errorf("error = %q, want %q", got, "Invalid JWT token")
		}
	})

	t.Run("拒否された場合はハンドラーが実行されないこと", func(t *testing.T) {
		t.Parallel()

		var got *Identity
		sentinel := &Identity{Subject: "untouched"}
		got = sentinel
		doRequest(newRouter(&got), http.MethodPost, "/users/register", "Bearer invalid")
		if got != sentinel {
			t.Error("拒否されたリクエストでハンドラーが実行された")
		}
	})
}

// TestGatePolicyOverride はルート単位とグループ単位のポリシーの優先順位を検証する。
func TestGatePolicyOverride(t *testing.T) {
	t.Parallel()

	newRouter := func() (*Gate, *gin.Engine) {
		gate := NewGate(NewBypassVerifier(testBypassToken), zerolog.Nop())
		return gate, newGateRouter(gate, nil)
	}

	t.Run("保護グループ内の公開ルートは認証なしで許可されること", func(t *testing.T) {
		t.Parallel()

		_, router := newRouter()
		for _, header := range []string{"", "Bearer wrong", "nonsense"} {
			w := doRequest(router, http.MethodGet, "/users/public", header)
			if w.Code != http.StatusOK {
				t.Errorf("header %q: ステータスコード = %d, want %d", header, w.Code, http.StatusOK)
			}
		}
	})

	t.Run("公開グループ内の継承ルートは認証なしで許可されること", func(t *testing.T) {
		t.Parallel()

		_, router := newRouter()
		w := doRequest(router, http.MethodGet, "/open/info", "")
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("公開グループ内の保護ルートは認証が必要なこと", func(t *testing.T) {
		t.Parallel()

		_, router := newRouter()
		if w := doRequest(router, http.MethodGet, "/open/secret", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if w := doRequest(router, http.MethodGet, "/open/secret", "Bearer "+testBypassToken); w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("ポリシー表に登録時の解決結果が記録されること", func(t *testing.T) {
		t.Parallel()

		gate, _ := newRouter()
		want := map[string]bool{
			"POST /users/register": false,
			"GET /users/public":    true,
			"GET /open/info":       true,
			"GET /open/secret":     false,
		}
		got := gate.Routes()
		if len(got) != len(want) {
			t.Fatalf("Routes() = %v, want %v", got, want)
		}
		for route, public := range want {
			if got[route] != public {
				t.Errorf("Routes()[%q] = %v, want %v", route, got[route], public)
			}
		}
	})
}

// TestGateGuardLogging は拒否時のログにトークンが含まれないことを検証する。
func TestGateGuardLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gate := NewGate(NewBypassVerifier(testBypassToken), zerolog.New(&buf))
	router := newGateRouter(gate, nil)

	doRequest(router, http.MethodPost, "/users/register", "Bearer secret-guess-123")

	if !strings.Contains(buf.String(), "Invalid hardcoded token") {
		t.Errorf("ログに拒否理由が含まれるべき: %s", buf.String())
	}
	if strings.Contains(buf.String(), "secret-guess-123") {
		t.Errorf("ログにトークンが含まれるべきではない: %s", buf.String())
	}
}

// TestDecisionString はDecision.Stringを検証する。
func TestDecisionString(t *testing.T) {
	t.Parallel()

	for d, want := range map[Decision]string{
		DecisionPublic:        "public",
		DecisionAuthenticated: "authenticated",
		DecisionRejected:      "rejected",
		Decision(99):          "unknown",
	} {
		if got := d.String(); got != want {
			t.Errorf("Decision(%d).String() = %q, want %q", d, got, want)
		}
	}
}
