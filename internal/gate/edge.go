package gate

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/route"
)

// Action はゲートの判定結果の種類を表す。
type Action int

const (
	// Allow はリクエストをそのまま通す。
	Allow Action = iota
	// RedirectLogin はcallbackUrl付きでログインページへリダイレクトする。
	RedirectLogin
	// RedirectHome は保護領域のホームへリダイレクトする。
	RedirectHome
	// RedirectOnboarding はオンボーディングフローへリダイレクトする。
	RedirectOnboarding
)

// String はActionの文字列表現を返す。
func (a Action) String() string {
	switch a {
	case RedirectLogin:
		return "redirect-login"
	case RedirectHome:
		return "redirect-home"
	case RedirectOnboarding:
		return "redirect-onboarding"
	default:
		return "allow"
	}
}

// Decision はゲートの判定結果。
type Decision struct {
	// Action は判定の種類。
	Action Action
	// Location はリダイレクト先。Allowの場合は空。
	Location string
}

// CookieProbe はセッションCookieの有無だけを判定する。
// 存在はセッションの有効性を意味しない。
type CookieProbe interface {
	HasSessionCookie(r *http.Request) bool
}

// Edge はCookieの有無による楽観的なゲート。
type Edge struct {
	policy *route.Policy
	probe  CookieProbe
	logger *zap.Logger
}

// NewEdge はEdgeを生成する。
func NewEdge(policy *route.Policy, probe CookieProbe, logger *zap.Logger) *Edge {
	return &Edge{policy: policy, probe: probe, logger: logger}
}

// Decide はパスとCookieの有無からリダイレクトの要否を判定する。
// target はログイン後に戻る先（パスと、あればクエリ）。
func (e *Edge) Decide(path, target string, hasCookie bool) Decision {
	category := e.policy.Classify(path)
	switch {
	case category == route.Public && hasCookie:
		// ログイン済みユーザーにログイン画面を見せない
		return Decision{Action: RedirectHome, Location: e.policy.HomePath()}
	case category == route.Public || category == route.API:
		return Decision{Action: Allow}
	case category == route.Protected && !hasCookie:
		return Decision{Action: RedirectLogin, Location: e.policy.LoginURL(target)}
	default:
		return Decision{Action: Allow}
	}
}

// Middleware はEdgeの判定を行うGinミドルウェアを返す。
// 静的アセットは判定の対象外とする。
func (e *Edge) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if route.Excluded(path) {
			c.Next()
			return
		}

		d := e.Decide(path, requestTarget(c.Request), e.probe.HasSessionCookie(c.Request))
		if d.Action == Allow {
			c.Next()
			return
		}

		e.logger.Debug("エッジゲートでリダイレクトします",
			zap.String("path", path),
			zap.Stringer("action", d.Action),
			zap.String("location", d.Location),
		)
		c.Redirect(http.StatusTemporaryRedirect, d.Location)
		c.Abort()
	}
}

// requestTarget はコールバックとして使う元のリクエスト先を返す。
func requestTarget(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}
