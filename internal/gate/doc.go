// Package gate はページへのアクセスを制御する2段階のゲートを提供する。
//
// Edge はCookieの有無だけを見て即座にリダイレクトを判断する楽観的なゲートで、
// ストアへの問い合わせを行わない。SessionGate はストアでセッションを解決し、
// オンボーディング状態に応じて遷移先を決める認可の境界である。Edge を通過した
// リクエストであっても SessionGate は必ず再検証する。
//
// どちらも route.Policy を共有し、ルート分類が食い違わないようにしている。
package gate
