// Package session はセッションの発行・解決・破棄を提供する。
//
// セッションCookieには署名済みJWT（セッションIDとユーザーIDを含む）を格納し、
// 実体はSQLiteまたはRedisのStoreに保存する。Cookieの有無だけを見る
// CookieProbe と、Storeまで照会する Manager.Resolve は意図的に別の型にしている。
// 前者はUXのための楽観的な判定にのみ使い、認可の判断には使わない。
package session
