// Package tasks はAI推論を行うタスク計算APIへのリクエストを中継する。
//
// ブラウザからは /api/tasks 配下で受け付け、セッションのユーザーIDと
// 短命のサービス間JWTを付けて上流の /internal/v1/tasks へ転送する。
package tasks

import (
	"bytes"
	"io"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/gate"
	"github.com/nao1215/kizuna/pkg/httpclient"
	"github.com/nao1215/kizuna/pkg/middleware"
)

const (
	// upstreamPrefix は上流APIのパスプレフィックス。
	upstreamPrefix = "/internal/v1/tasks/"
	// maxRequestBytes は転送するリクエストボディの上限。
	maxRequestBytes = 1 << 20
)

var (
	taskNamePattern = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)
	jobIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

// Proxy はタスク計算APIへの中継を行う。
type Proxy struct {
	client *httpclient.Client
	secret string
	logger *zap.Logger
}

// NewProxy はProxyを生成する。secretはサービス間JWTの署名に使う。
func NewProxy(client *httpclient.Client, secret string, logger *zap.Logger) *Proxy {
	return &Proxy{client: client, secret: secret, logger: logger}
}

// Register はルーターグループにハンドラを登録する。
// グループには gate.SessionGate.RequireSession が適用されている必要がある。
func (p *Proxy) Register(rg *gin.RouterGroup) {
	rg.POST("/:task", p.handleSubmit())
	rg.GET("/:task/:id", p.handleStatus())
}

// handleSubmit はタスクの投入を中継するハンドラを返す。
func (p *Proxy) handleSubmit() gin.HandlerFunc {
	return func(c *gin.Context) {
		task := c.Param("task")
		if !taskNamePattern.MatchString(task) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "タスク名が不正です"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes))
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "リクエストボディが大きすぎます"})
			return
		}
		p.forward(c, http.MethodPost, upstreamPrefix+task, body)
	}
}

// handleStatus はタスクの状態取得を中継するハンドラを返す。
func (p *Proxy) handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		task, id := c.Param("task"), c.Param("id")
		if !taskNamePattern.MatchString(task) || !jobIDPattern.MatchString(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "タスク名またはIDが不正です"})
			return
		}
		p.forward(c, http.MethodGet, upstreamPrefix+task+"/"+id, nil)
	}
}

// forward は上流にリクエストを送り、レスポンスを返す。
// 上流の4xxはそのまま返し、通信失敗と5xxは502に置き換える。
func (p *Proxy) forward(c *gin.Context, method, path string, body []byte) {
	sess := gate.GetSession(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
		return
	}

	token, err := middleware.GenerateJWT(p.secret, sess.UserID)
	if err != nil {
		p.logger.Error("サービス間JWTの生成エラー", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
		return
	}

	ctx := httpclient.WithToken(httpclient.WithUserID(c.Request.Context(), sess.UserID), token)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	resp, err := p.client.Do(ctx, method, path, reader)
	if err != nil {
		p.logger.Error("タスクAPIへの中継エラー", zap.String("path", path), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "タスクAPIに接続できません"})
		return
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		p.logger.Error("タスクAPIがエラーを返しました",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", resp.Body),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "タスクAPIでエラーが発生しました"})
		return
	}

	c.Data(resp.StatusCode, resp.ContentType, resp.Body)
}
