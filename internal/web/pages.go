package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/kizuna/internal/gate"
	"github.com/nao1215/kizuna/internal/route"
)

// pageUser はページに渡すユーザー情報。
type pageUser struct {
	ID                     string `json:"id"`
	Email                  string `json:"email"`
	HasCompletedOnboarding bool   `json:"has_completed_onboarding"`
}

// handleAuthPage はログイン・サインアップページを返すハンドラを返す。
// callbackUrl はサインイン後の遷移先として解決済みの値を返す。
func (s *Server) handleAuthPage(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"page":        name,
			"callbackUrl": s.deps.Policy.ResolveCallback(c.Query(route.CallbackParam)),
		})
	}
}

// handlePage は保護領域のページを返すハンドラを返す。
// 認可ゲートを通過した後にのみ呼ばれる。
func (s *Server) handlePage(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := gate.GetSession(c)
		resp := gin.H{
			"page": name,
			"user": pageUser{
				ID:                     sess.UserID,
				Email:                  sess.Email,
				HasCompletedOnboarding: sess.HasCompletedOnboarding,
			},
		}
		if id := c.Param("id"); id != "" {
			resp["id"] = id
		}
		c.JSON(http.StatusOK, resp)
	}
}
