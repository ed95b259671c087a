// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// リモートのタスク計算API（/internal/v1/tasks/*）を呼び出す際に使用する。
// リクエスト元ユーザーのIDとサービス間JWTをコンテキストから伝播する。
package httpclient
