package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/kizuna/internal/store"
)

// UserLookup はユーザー情報の取得を表す。*store.Queries が実装する。
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
}

// RedisStore はRedisにセッションを保存するStore。
// オンボーディング完了フラグは古くならないよう毎回UserLookupから読む。
type RedisStore struct {
	client *redis.Client
	users  UserLookup
	prefix string
}

// NewRedisStore はRedisStoreを生成する。prefixが空の場合は "kizuna" を使う。
func NewRedisStore(client *redis.Client, users UserLookup, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "kizuna"
	}
	return &RedisStore{client: client, users: users, prefix: prefix}
}

// key はセッションのRedisキーを返す。
func (s *RedisStore) key(id string) string {
	return s.prefix + ":session:" + id
}

// Create はセッションを有効期限付きで保存する。
func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return errors.New("有効期限が過去のセッションは保存できません")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("セッションのシリアライズに失敗: %w", err)
	}

	if err := s.client.Set(ctx, s.key(rec.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return nil
}

// Get はセッションを取得する。
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("セッション取得に失敗: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("セッションのデシリアライズに失敗: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, rec.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:                     rec.ID,
		UserID:                 rec.UserID,
		Email:                  user.Email,
		HasCompletedOnboarding: user.HasCompletedOnboarding,
		ExpiresAt:              rec.ExpiresAt,
		CreatedAt:              rec.CreatedAt,
	}, nil
}

// Delete はセッションを削除する。
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("セッション削除に失敗: %w", err)
	}
	return nil
}
