package web

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/auth"
	"github.com/nao1215/kizuna/internal/profile"
	"github.com/nao1215/kizuna/internal/relay"
	"github.com/nao1215/kizuna/internal/route"
	"github.com/nao1215/kizuna/internal/session"
	"github.com/nao1215/kizuna/internal/store"
	"github.com/nao1215/kizuna/internal/tasks"
	"github.com/nao1215/kizuna/pkg/httpclient"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	keyOnce sync.Once
	keys    *relay.KeyPair
	keyErr  error
)

// testKeys はテスト全体で共有するRSA鍵ペアを返す。
func testKeys(t *testing.T) *relay.KeyPair {
	t.Helper()

	keyOnce.Do(func() { keys, keyErr = relay.GenerateKeyPair(2048) })
	if keyErr != nil {
		t.Fatalf("鍵ペアの生成に失敗: %v", keyErr)
	}
	return keys
}

// newTestServer はインメモリDBを使うテスト用サーバーを生成する。
func newTestServer(t *testing.T, tasksURL string) *Server {
	t.Helper()

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.Migrate(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("マイグレーションに失敗: %v", err)
	}
	queries := store.New(db)

	codec, err := session.NewCodec("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewCodec()でエラーが発生: %v", err)
	}
	manager := session.NewManager(codec, session.NewSQLStore(queries), 0)

	hasher, err := auth.NewHasher(auth.HashParams{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewHasher()でエラーが発生: %v", err)
	}
	svc, err := auth.NewService(queries, manager, hasher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService()でエラーが発生: %v", err)
	}

	policy := route.MustDefault()
	logger := zap.NewNop()
	return NewServer("0", Dependencies{
		Policy:      policy,
		Sessions:    manager,
		Keys:        testKeys(t),
		Auth:        auth.NewHandler(svc, policy, session.CookieWriter{}, logger),
		Profile:     profile.NewHandler(queries, logger),
		Tasks:       tasks.NewProxy(httpclient.New(tasksURL), "service-secret", logger),
		FrontendURL: "http://localhost:3000",
		Logger:      logger,
	})
}

// client はCookieを引き継いでリクエストを送るテスト用クライアント。
type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, s *Server) *client {
	return &client{t: t, handler: s.Handler(), cookies: map[string]*http.Cookie{}}
}

// do はリクエストを送信し、レスポンスのCookieを保存する。
func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("ボディのシリアライズに失敗: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return w
}

// expectRedirect はレスポンスが指定先への307であることを検証する。
func expectRedirect(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("ステータスコード = %d, want %d (body = %s)", w.Code, http.StatusTemporaryRedirect, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

// encryptPassword は公開鍵エンドポイントの鍵でパスワードを暗号化する。
func encryptPassword(t *testing.T, c *client, password string) string {
	t.Helper()

	w := c.do(http.MethodGet, "/api/auth/public-key", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("公開鍵の取得に失敗: %d", w.Code)
	}
	var res struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	block, _ := pem.Decode([]byte(res.PublicKey))
	if block == nil {
		t.Fatal("公開鍵のPEMを解析できない")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		t.Fatalf("公開鍵の解析に失敗: %v", err)
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub.(*rsa.PublicKey), []byte(password), nil)
	if err != nil {
		t.Fatalf("暗号化に失敗: %v", err)
	}
	return base64.StdEncoding.EncodeToString(ct)
}

// TestHealth はヘルスチェックを検証する。
func TestHealth(t *testing.T) {
	t.Parallel()

	w := newClient(t, newTestServer(t, "http://127.0.0.1:1")).do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestUserJourney はサインアップからオンボーディング完了までの遷移を検証する。
func TestUserJourney(t *testing.T) {
	t.Parallel()

	c := newClient(t, newTestServer(t, "http://127.0.0.1:1"))

	// 未ログインで保護ページへアクセスするとログインへ
	w := c.do(http.MethodGet, "/conversations/abc?x=1", nil)
	expectRedirect(t, w, "/login?"+url.Values{route.CallbackParam: {"/conversations/abc?x=1"}}.Encode())

	// ログインページは解決済みのcallbackUrlを返す
	w = c.do(http.MethodGet, "/login?callbackUrl=%2Fconversations%2Fabc%3Fx%3D1", nil)
	var page map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page["callbackUrl"] != "/conversations/abc?x=1" {
		t.Errorf("callbackUrl = %v", page["callbackUrl"])
	}

	// 暗号化したパスワードでサインアップ
	w = c.do(http.MethodPost, "/api/auth/sign-up/email", map[string]string{
		"email":    "eve@example.com",
		"password": encryptPassword(t, c, "encrypted-pass"),
		"name":     "イヴ",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("サインアップのステータスコード = %d, body = %s", w.Code, w.Body.String())
	}

	// ログイン済みでログインページへアクセスするとホームへ
	expectRedirect(t, c.do(http.MethodGet, "/login", nil), "/conversations")

	// オンボーディング未完了なので保護ページからオンボーディングへ
	expectRedirect(t, c.do(http.MethodGet, "/conversations", nil), "/onboarding")
	expectRedirect(t, c.do(http.MethodGet, "/assistant", nil), "/onboarding")
	if w := c.do(http.MethodGet, "/onboarding", nil); w.Code != http.StatusOK {
		t.Fatalf("オンボーディングのステータスコード = %d", w.Code)
	}

	// オンボーディング完了
	w = c.do(http.MethodPost, "/api/onboarding/complete", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("オンボーディング完了のステータスコード = %d, body = %s", w.Code, w.Body.String())
	}

	// 完了後はオンボーディングからホームへ、保護ページは表示できる
	expectRedirect(t, c.do(http.MethodGet, "/onboarding", nil), "/conversations")
	w = c.do(http.MethodGet, "/conversations/abc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("会話ページのステータスコード = %d", w.Code)
	}
	page = map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page["page"] != "conversation" || page["id"] != "abc" {
		t.Errorf("ページ = %v", page)
	}

	// サインアウト後は暗号化パスワードでも平文パスワードでもサインインできる
	if w := c.do(http.MethodPost, "/api/auth/sign-out", nil); w.Code != http.StatusOK {
		t.Fatalf("サインアウトのステータスコード = %d", w.Code)
	}
	expectRedirect(t, c.do(http.MethodGet, "/", nil), "/conversations")
	w = c.do(http.MethodGet, "/conversations", nil)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("サインアウト後のステータスコード = %d", w.Code)
	}

	for _, password := range []string{encryptPassword(t, c, "encrypted-pass"), "encrypted-pass"} {
		w = c.do(http.MethodPost, "/api/auth/sign-in/email", map[string]string{
			"email": "eve@example.com", "password": password, "callbackURL": "/signup",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("サインインのステータスコード = %d, body = %s", w.Code, w.Body.String())
		}
		var res struct {
			Redirect string `json:"redirect"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &res)
		if res.Redirect != "/onboarding" {
			t.Errorf("Redirect = %q, want /onboarding", res.Redirect)
		}
	}
}

// TestStaleCookie は無効なCookieがエッジを通過しても認可ゲートで拒否されることを検証する。
func TestStaleCookie(t *testing.T) {
	t.Parallel()

	c := newClient(t, newTestServer(t, "http://127.0.0.1:1"))
	c.cookies[session.CookieName] = &http.Cookie{Name: session.CookieName, Value: "forged"}

	w := c.do(http.MethodGet, "/conversations", nil)
	expectRedirect(t, w, "/login?callbackUrl=%2Fconversations")

	if w := c.do(http.MethodGet, "/api/me", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("APIのステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestAPINotGatedByEdge はAPIがエッジゲートでリダイレクトされないことを検証する。
func TestAPINotGatedByEdge(t *testing.T) {
	t.Parallel()

	c := newClient(t, newTestServer(t, "http://127.0.0.1:1"))
	for _, path := range []string{"/api/me", "/api/auth/get-session"} {
		w := c.do(http.MethodGet, path, nil)
		if w.Code == http.StatusTemporaryRedirect {
			t.Errorf("%s: リダイレクトされてはならない", path)
		}
	}
}

// TestTasksProxy はタスクAPIへの中継がサーバーに組み込まれていることを検証する。
func TestTasksProxy(t *testing.T) {
	t.Parallel()

	var gotUser string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-ID")
		_, _ = w.Write([]byte(`{"id":"job-1"}`))
	}))
	defer upstream.Close()

	c := newClient(t, newTestServer(t, upstream.URL))
	w := c.do(http.MethodPost, "/api/auth/sign-up/email", map[string]string{
		"email": "frank@example.com", "password": "password123", "name": "フランク",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("サインアップのステータスコード = %d", w.Code)
	}
	var res struct {
		User auth.UserResponse `json:"user"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &res)

	w = c.do(http.MethodPost, "/api/tasks/partner-reply", map[string]string{"message": "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("中継のステータスコード = %d, body = %s", w.Code, w.Body.String())
	}
	if gotUser != res.User.ID {
		t.Errorf("X-User-ID = %q, want %q", gotUser, res.User.ID)
	}
}
