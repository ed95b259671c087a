package session

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession は有効なセッションが存在しないことを表す。
// Cookieが無い・署名が不正・期限切れ・Storeに存在しない、のいずれも含む。
var ErrNoSession = errors.New("有効なセッションがありません")

// ErrNotFound はStoreにセッションが存在しないことを表す。
var ErrNotFound = errors.New("セッションが見つかりません")

// Session は解決済みのセッションを表す。
type Session struct {
	// ID はセッションの一意識別子。
	ID string `json:"id"`
	// UserID はセッションの所有者。
	UserID string `json:"user_id"`
	// Email は所有者のメールアドレス。
	Email string `json:"email"`
	// HasCompletedOnboarding は所有者のオンボーディング完了フラグ。
	HasCompletedOnboarding bool `json:"has_completed_onboarding"`
	// ExpiresAt は有効期限。
	ExpiresAt time.Time `json:"expires_at"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// Record はStoreに保存するセッションの内容。
type Record struct {
	// ID はセッションの一意識別子。
	ID string `json:"id"`
	// UserID はセッションの所有者。
	UserID string `json:"user_id"`
	// IPAddress は作成時のIPアドレス。
	IPAddress string `json:"ip_address"`
	// UserAgent は作成時のUser-Agent。
	UserAgent string `json:"user_agent"`
	// ExpiresAt は有効期限。
	ExpiresAt time.Time `json:"expires_at"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// Store はセッションの永続化を表す。
type Store interface {
	// Create はセッションを保存する。
	Create(ctx context.Context, rec Record) error
	// Get はセッションを所有者の情報と合わせて取得する。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, id string) (*Session, error)
	// Delete はセッションを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error
}
