// Package route はページルートの分類ポリシーを提供する。
//
// 公開・API・保護領域の3分類とコールバックURLの検証を一箇所にまとめ、
// エッジの楽観的ゲートと認証ゲートの両方がこのポリシーを参照する。
package route
