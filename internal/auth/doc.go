// Package auth はメールアドレスとパスワードによるアカウント認証を提供する。
//
// パスワードはargon2idでハッシュ化してPHC形式で保存する。サインインに成功すると
// session.Manager でセッションを発行し、トークンをHttpOnly Cookieとして返す。
// /api/auth 配下のハンドラはリレーミドルウェアの後段に置かれるため、
// 受け取るパスワードは常に平文である。
package auth
