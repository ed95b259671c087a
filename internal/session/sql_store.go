package session

import (
	"context"
	"errors"

	"github.com/nao1215/kizuna/internal/store"
)

// SQLStore はSQLiteのsessionsテーブルを使うStore。
type SQLStore struct {
	queries *store.Queries
}

// NewSQLStore はSQLStoreを生成する。
func NewSQLStore(queries *store.Queries) *SQLStore {
	return &SQLStore{queries: queries}
}

// Create はセッションを保存する。
func (s *SQLStore) Create(ctx context.Context, rec Record) error {
	return s.queries.CreateSession(ctx, store.CreateSessionParams{
		ID:        rec.ID,
		UserID:    rec.UserID,
		IPAddress: rec.IPAddress,
		UserAgent: rec.UserAgent,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	})
}

// Get はセッションを取得する。オンボーディング完了フラグはusersテーブルから結合する。
func (s *SQLStore) Get(ctx context.Context, id string) (*Session, error) {
	row, err := s.queries.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:                     row.ID,
		UserID:                 row.UserID,
		Email:                  row.Email,
		HasCompletedOnboarding: row.HasCompletedOnboarding,
		ExpiresAt:              row.ExpiresAt,
		CreatedAt:              row.CreatedAt,
	}, nil
}

// Delete はセッションを削除する。
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return s.queries.DeleteSession(ctx, id)
}
