// kizunaのエントリポイント。
// 認証・セッション・オンボーディングと、タスク計算APIへの中継を行うWebサーバーを提供する。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/config"
	"github.com/nao1215/kizuna/pkg/logging"
)

// app はサブコマンド間で共有する設定とロガー。
type app struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

// newRootCmd はルートコマンドを生成する。
func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "kizuna",
		Short:         "kizuna - 関係コーチングのWebバックエンド",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "設定ファイルのパス（未指定時は KIZUNA_CONFIG）")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newPruneCmd(a),
		newKeygenCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}
