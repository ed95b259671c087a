// Package web はHTTPサーバーを組み立てる。
//
// ミドルウェアは Recovery → RequestLogger → CORS → エッジゲート → セッション紐付け の順に適用し、
// 保護領域のページには認可ゲートを、/api 配下の認証必須エンドポイントには
// RequireSession を適用する。画面の描画はフロントエンドが担うため、
// ページのルートは画面の種類と必要な情報をJSONで返す。
package web
