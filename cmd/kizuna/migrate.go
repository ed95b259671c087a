package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/store"
)

// newMigrateCmd はマイグレーションを適用するコマンドを生成する。
func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "データベースのマイグレーションを適用する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context(), a)
			if err != nil {
				return err
			}
			defer db.Close()

			a.logger.Info("マイグレーションが完了しました", zap.String("path", a.cfg.Database.Path))
			return nil
		},
	}
}

// newPruneCmd は期限切れのセッションを削除するコマンドを生成する。
// Redisに保存したセッションはTTLで消えるため、SQLiteのみが対象。
func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "期限切れのセッションを削除する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context(), a)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := store.New(db).DeleteExpiredSessions(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			a.logger.Info("期限切れのセッションを削除しました", zap.Int64("count", n))
			cmd.Printf("%d件のセッションを削除しました\n", n)
			return nil
		},
	}
}
