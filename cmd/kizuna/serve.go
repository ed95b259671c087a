package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/auth"
	"github.com/nao1215/kizuna/internal/config"
	"github.com/nao1215/kizuna/internal/profile"
	"github.com/nao1215/kizuna/internal/relay"
	"github.com/nao1215/kizuna/internal/route"
	"github.com/nao1215/kizuna/internal/session"
	"github.com/nao1215/kizuna/internal/store"
	"github.com/nao1215/kizuna/internal/tasks"
	"github.com/nao1215/kizuna/internal/web"
	"github.com/nao1215/kizuna/pkg/httpclient"
)

// newServeCmd はHTTPサーバーを起動するコマンドを生成する。
func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTPサーバーを起動する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("設定が不正です: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := openDB(ctx, a)
			if err != nil {
				return err
			}
			defer db.Close()

			server, cleanup, err := buildServer(ctx, a.cfg, db, a.logger)
			if err != nil {
				return err
			}
			defer cleanup()

			return server.Run(ctx)
		},
	}
}

// openDB はデータベースを開いてマイグレーションを適用する。
func openDB(ctx context.Context, a *app) (*sql.DB, error) {
	db, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db, a.logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildServer は設定に従ってコンポーネントを組み立てる。
// 返されるcleanupはサーバー停止後に呼び出す。
func buildServer(ctx context.Context, cfg config.Config, db *sql.DB, logger *zap.Logger) (*web.Server, func(), error) {
	queries := store.New(db)
	cleanup := func() {}

	sessionStore, closeStore, err := newSessionStore(ctx, cfg, queries, logger)
	if err != nil {
		return nil, cleanup, err
	}
	cleanup = closeStore

	codec, err := session.NewCodec(cfg.Session.Secret)
	if err != nil {
		return nil, cleanup, err
	}
	manager := session.NewManager(codec, sessionStore, cfg.Session.TTL)

	keys, err := loadRelayKeys(cfg.Relay, logger)
	if err != nil {
		return nil, cleanup, err
	}

	hasher, err := auth.NewHasher(auth.DefaultHashParams())
	if err != nil {
		return nil, cleanup, err
	}
	svc, err := auth.NewService(queries, manager, hasher, logger)
	if err != nil {
		return nil, cleanup, err
	}

	policy := route.MustDefault()
	cookies := session.CookieWriter{Secure: cfg.Server.SecureCookies}

	server := web.NewServer(cfg.Server.Port, web.Dependencies{
		Policy:      policy,
		Sessions:    manager,
		Keys:        keys,
		Auth:        auth.NewHandler(svc, policy, cookies, logger),
		Profile:     profile.NewHandler(queries, logger),
		Tasks:       tasks.NewProxy(httpclient.New(cfg.Tasks.BaseURL), cfg.Tasks.ServiceSecret, logger),
		FrontendURL: cfg.Server.FrontendURL,
		Logger:      logger,
	})
	return server, cleanup, nil
}

// newSessionStore は設定に応じたセッションストアを生成する。
func newSessionStore(ctx context.Context, cfg config.Config, queries *store.Queries, logger *zap.Logger) (session.Store, func(), error) {
	if cfg.Session.Store != "redis" {
		logger.Info("セッションをSQLiteに保存します")
		return session.NewSQLStore(queries), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, func() {}, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	logger.Info("セッションをRedisに保存します", zap.String("addr", cfg.Redis.Addr))
	return session.NewRedisStore(client, queries, ""), func() { _ = client.Close() }, nil
}

// loadRelayKeys はパスワードリレーの鍵を読み込む。
// 設定が無い場合は鍵を生成するが、再起動のたびに公開鍵が変わる。
func loadRelayKeys(cfg config.RelayConfig, logger *zap.Logger) (*relay.KeyPair, error) {
	switch {
	case cfg.PrivateKeyPath != "":
		return relay.LoadPrivateKeyFile(cfg.PrivateKeyPath)
	case cfg.PrivateKey != "":
		return relay.ParsePrivateKey([]byte(cfg.PrivateKey))
	default:
		logger.Warn("relay.private_key が未設定のため一時的な鍵を生成します。再起動すると公開鍵が変わります")
		return relay.GenerateKeyPair(2048)
	}
}
