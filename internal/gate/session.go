package gate

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/route"
	"github.com/nao1215/kizuna/internal/session"
)

// contextKeySession はGinコンテキストに解決済みセッションを格納するキー。
const contextKeySession = "session"

// SessionGate はストアでセッションを解決する認可のゲート。
// session.Attach が事前に適用されている必要がある。
type SessionGate struct {
	policy *route.Policy
	logger *zap.Logger
}

// NewSessionGate はSessionGateを生成する。
func NewSessionGate(policy *route.Policy, logger *zap.Logger) *SessionGate {
	return &SessionGate{policy: policy, logger: logger}
}

// Decide は解決済みセッションとパスから遷移先を判定する。sessはnilを許容する。
func (g *SessionGate) Decide(path, target string, sess *session.Session) Decision {
	switch {
	case sess == nil:
		return Decision{Action: RedirectLogin, Location: g.policy.LoginURL(target)}
	case !sess.HasCompletedOnboarding && !g.policy.IsOnboarding(path):
		return Decision{Action: RedirectOnboarding, Location: g.policy.OnboardingPath()}
	case sess.HasCompletedOnboarding && g.policy.IsOnboarding(path):
		return Decision{Action: RedirectHome, Location: g.policy.HomePath()}
	default:
		return Decision{Action: Allow}
	}
}

// Pages は保護領域のページに適用するGinミドルウェアを返す。
// セッションが無ければログインへ、オンボーディングの状態に応じてリダイレクトする。
func (g *SessionGate) Pages() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := g.resolve(c)
		d := g.Decide(c.Request.URL.Path, requestTarget(c.Request), sess)
		if d.Action != Allow {
			c.Redirect(http.StatusTemporaryRedirect, d.Location)
			c.Abort()
			return
		}
		c.Set(contextKeySession, sess)
		c.Next()
	}
}

// RequireSession はAPI向けのGinミドルウェアを返す。
// セッションが無い場合はリダイレクトせず401を返す。
func (g *SessionGate) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := g.resolve(c)
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証が必要です",
			})
			return
		}
		c.Set(contextKeySession, sess)
		c.Next()
	}
}

// resolve はリクエストのセッションを解決する。
// ストア障害も未認証として扱うが、ログには残す。
func (g *SessionGate) resolve(c *gin.Context) *session.Session {
	sess, err := session.FromContext(c.Request.Context())
	if err == nil {
		return sess
	}
	if !errors.Is(err, session.ErrNoSession) {
		g.logger.Error("セッションの解決に失敗しました",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	return nil
}

// GetSession はゲートを通過したリクエストのセッションを返す。
// Pages または RequireSession が事前に適用されている必要がある。
func GetSession(c *gin.Context) *session.Session {
	v, ok := c.Get(contextKeySession)
	if !ok {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}
