// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、zapによるアクセスログ、Cookie認証を前提としたCORS設定、
// タスク計算APIへ送るサービス間JWTの発行を含む。
package middleware
