package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL はセッションの既定の有効期間。
const DefaultTTL = 7 * 24 * time.Hour

// Manager はセッションの発行・解決・破棄を行う。
// Resolveは必ずStoreを照会するため、認可の判断に使える唯一の経路となる。
type Manager struct {
	codec *Codec
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager はManagerを生成する。ttlが0以下の場合はDefaultTTLを使う。
func NewManager(codec *Codec, store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{codec: codec, store: store, ttl: ttl, now: time.Now}
}

// Issued は発行したセッションとCookieに設定するトークン。
type Issued struct {
	// Token はCookieに設定する署名済みトークン。
	Token string
	// Record はStoreに保存した内容。
	Record Record
}

// Issue は新しいセッションを発行してStoreに保存する。
func (m *Manager) Issue(ctx context.Context, userID, ipAddress, userAgent string) (*Issued, error) {
	now := m.now().UTC()
	rec := Record{
		ID:        uuid.New().String(),
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	token, err := m.codec.Encode(rec.ID, rec.UserID, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return &Issued{Token: token, Record: rec}, nil
}

// Resolve はトークンを検証し、Storeからセッションを取得する。
// 未認証の場合はErrNoSessionを返す。Store自体の障害はそのままエラーとして返す。
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	claims, err := m.codec.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	sess, err := m.store.Get(ctx, claims.SessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの解決に失敗: %w", err)
	}

	if sess.UserID != claims.UserID {
		return nil, ErrNoSession
	}
	if !m.now().Before(sess.ExpiresAt) {
		_ = m.store.Delete(ctx, sess.ID)
		return nil, ErrNoSession
	}
	return sess, nil
}

// Revoke はトークンが指すセッションを破棄する。
// 無効なトークンの場合は何もしない。
func (m *Manager) Revoke(ctx context.Context, token string) (string, error) {
	claims, err := m.codec.Decode(token)
	if err != nil {
		return "", nil
	}
	if err := m.store.Delete(ctx, claims.SessionID); err != nil {
		return "", fmt.Errorf("セッションの破棄に失敗: %w", err)
	}
	return claims.SessionID, nil
}
