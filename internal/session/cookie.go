package session

import (
	"net/http"
	"time"
)

const (
	// CookieName はセッションCookieの名前。
	CookieName = "kizuna.session_token"
	// SecureCookieName はHTTPS環境で使うセッションCookieの名前。
	SecureCookieName = "__Secure-kizuna.session_token"
)

// cookieNames は読み取り時に参照するCookie名。
var cookieNames = []string{SecureCookieName, CookieName}

// TokenFromRequest はリクエストのCookieからセッショントークンを取り出す。
func TokenFromRequest(r *http.Request) (string, bool) {
	for _, name := range cookieNames {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// CookieProbe はCookieの有無だけを判定する。トークンの検証は行わない。
// エッジの楽観的ゲート専用であり、認可の判断に使ってはならない。
type CookieProbe struct{}

// HasSessionCookie はセッションCookieが存在するかを返す。
func (CookieProbe) HasSessionCookie(r *http.Request) bool {
	_, ok := TokenFromRequest(r)
	return ok
}

// CookieWriter はセッションCookieの設定と削除を行う。
type CookieWriter struct {
	// Secure はHTTPS前提のCookie属性を使うかどうか。
	Secure bool
}

// name は使用するCookie名を返す。
func (w CookieWriter) name() string {
	if w.Secure {
		return SecureCookieName
	}
	return CookieName
}

// Set はセッションCookieを設定する。
func (w CookieWriter) Set(rw http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(rw, &http.Cookie{
		Name:     w.name(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear はセッションCookieを削除する。
func (w CookieWriter) Clear(rw http.ResponseWriter) {
	http.SetCookie(rw, &http.Cookie{
		Name:     w.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
