package session

import (
	"context"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
)

// Resolver はトークンからセッションを解決する。*Manager が実装する。
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Session, error)
}

// ErrNotAttached はリクエストにセッションの解決器が設定されていないことを表す。
var ErrNotAttached = errors.New("リクエストにセッションが紐付けられていません")

type contextKey struct{}

// lazySession は1リクエストの間だけセッション解決の結果を保持する。
type lazySession struct {
	once     sync.Once
	resolver Resolver
	token    string
	found    bool
	sess     *Session
	err      error
}

// resolve は初回呼び出し時のみResolverを呼ぶ。
func (l *lazySession) resolve(ctx context.Context) (*Session, error) {
	l.once.Do(func() {
		if !l.found {
			l.err = ErrNoSession
			return
		}
		l.sess, l.err = l.resolver.Resolve(ctx, l.token)
	})
	return l.sess, l.err
}

// WithRequest はリクエストのCookieを元に、遅延解決されるセッションをコンテキストに設定する。
// 解決結果はこのコンテキストに閉じており、リクエストをまたいで共有されない。
func WithRequest(ctx context.Context, resolver Resolver, token string, found bool) context.Context {
	return context.WithValue(ctx, contextKey{}, &lazySession{
		resolver: resolver,
		token:    token,
		found:    found,
	})
}

// FromContext はコンテキストのセッションを解決する。
// 同じコンテキストで複数回呼んでもStoreへの照会は1回だけ行われる。
func FromContext(ctx context.Context) (*Session, error) {
	l, ok := ctx.Value(contextKey{}).(*lazySession)
	if !ok {
		return nil, ErrNotAttached
	}
	return l.resolve(ctx)
}

// Attach はリクエストごとにセッションの遅延解決器を設定するGinミドルウェアを返す。
func Attach(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, found := TokenFromRequest(c.Request)
		ctx := WithRequest(c.Request.Context(), resolver, token, found)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
