package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/relay"
)

// newKeygenCmd はパスワードリレー用の鍵ペアを生成するコマンドを生成する。
func newKeygenCmd(a *app) *cobra.Command {
	var (
		out  string
		bits int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "パスワードリレー用のRSA秘密鍵を生成する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := relay.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			pemBytes, err := keys.PrivateKeyPEM()
			if err != nil {
				return err
			}

			if out == "" {
				_, err := cmd.OutOrStdout().Write(pemBytes)
				return err
			}
			if err := os.WriteFile(out, pemBytes, 0o600); err != nil {
				return fmt.Errorf("秘密鍵の書き込みに失敗: %w", err)
			}
			a.logger.Info("秘密鍵を書き込みました", zap.String("path", out), zap.Int("bits", bits))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "出力先のファイル（未指定時は標準出力）")
	cmd.Flags().IntVar(&bits, "bits", 2048, "鍵長（2048以上）")
	return cmd
}
