// Package store はSQLiteによる永続化層を提供する。
//
// ユーザー・セッション・監査イベントの3種類のテーブルを扱う。
// スキーマは migrations/ 配下のSQLファイルで管理し、起動時に適用する。
package store
