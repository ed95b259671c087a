package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/auth"
	"github.com/nao1215/kizuna/internal/gate"
	"github.com/nao1215/kizuna/internal/profile"
	"github.com/nao1215/kizuna/internal/relay"
	"github.com/nao1215/kizuna/internal/route"
	"github.com/nao1215/kizuna/internal/session"
	"github.com/nao1215/kizuna/internal/tasks"
	"github.com/nao1215/kizuna/pkg/middleware"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Dependencies はServerが利用するコンポーネント。
type Dependencies struct {
	// Policy は両ゲートが共有するルート分類。
	Policy *route.Policy
	// Sessions はリクエストごとのセッション解決に使う。
	Sessions session.Resolver
	// Keys はパスワードリレーの鍵ペア。
	Keys *relay.KeyPair
	// Auth は /api/auth 配下のハンドラ。
	Auth *auth.Handler
	// Profile はプロフィールとオンボーディングのハンドラ。
	Profile *profile.Handler
	// Tasks はタスク計算APIへの中継。
	Tasks *tasks.Proxy
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string
	// Logger はアクセスログとエラーの出力先。
	Logger *zap.Logger
}

// Server はkizunaのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// deps はルーティングに使うコンポーネント。
	deps Dependencies
	// edge はCookieの有無によるエッジゲート。
	edge *gate.Edge
	// gate はセッションを解決する認可ゲート。
	gate *gate.SessionGate
	logger *zap.Logger
}

// NewServer は新しいサーバーを生成する。
func NewServer(port string, deps Dependencies) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS([]string{deps.FrontendURL}))

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		edge:   gate.NewEdge(deps.Policy, session.CookieProbe{}, deps.Logger),
		gate:   gate.NewSessionGate(deps.Policy, deps.Logger),
		logger: deps.Logger,
	}
	s.setupRoutes()
	return s
}

// Handler はルーターをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバーを起動します", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.Use(s.edge.Middleware())
	s.router.Use(session.Attach(s.deps.Sessions))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "kizuna"})
	})

	// 認証API（パスワードリレーを通してから認証ハンドラへ）
	authGroup := s.router.Group("/api/auth")
	authGroup.GET("/public-key", relay.PublicKeyHandler(s.deps.Keys))
	authGroup.Use(relay.New(s.deps.Keys, s.logger).Middleware())
	s.deps.Auth.Register(authGroup)

	// 認証必須のAPI
	api := s.router.Group("/api", s.gate.RequireSession())
	s.deps.Profile.Register(api)
	s.deps.Tasks.Register(api.Group("/tasks"))

	// 公開ページ
	s.router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, s.deps.Policy.HomePath())
	})
	s.router.GET("/login", s.handleAuthPage("login"))
	s.router.GET("/signup", s.handleAuthPage("signup"))

	// 保護領域のページ
	pages := s.router.Group("/", s.gate.Pages())
	{
		pages.GET("/conversations", s.handlePage("conversations"))
		pages.GET("/conversations/:id", s.handlePage("conversation"))
		pages.GET("/onboarding", s.handlePage("onboarding"))
		pages.GET("/assistant", s.handlePage("assistant"))
	}
}
