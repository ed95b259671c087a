// Package relay はサインイン・サインアップ時のパスワード暗号化を扱う。
//
// クライアントは GET /api/auth/public-key で取得した公開鍵でパスワードを
// RSA-OAEP(SHA-256) 暗号化して送信する。Relay ミドルウェアは認証ハンドラの
// 手前でこれを復号する。復号できない値は平文として扱い、Relay の失敗で
// 認証処理を止めることはない。
package relay
