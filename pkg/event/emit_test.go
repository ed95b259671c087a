package event

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// memoryAppender はテスト用のAppender。
type memoryAppender struct {
	events []*Event
	err    error
}

func (m *memoryAppender) AppendEvent(_ context.Context, ev *Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

// TestEmit はEmit関数を検証する。
func TestEmit(t *testing.T) {
	t.Parallel()

	t.Run("生成したイベントが追記されること", func(t *testing.T) {
		t.Parallel()

		a := &memoryAppender{}
		Emit(context.Background(), a, zap.NewNop(), "user-1", AggregateTypeUser, TypeUserSignedUp, UserSignedUpData{Email: "a@example.com"})

		if len(a.events) != 1 {
			t.Fatalf("イベント件数 = %d, want 1", len(a.events))
		}
		data, err := DecodeData[UserSignedUpData](a.events[0])
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if data.Email != "a@example.com" {
			t.Errorf("Email = %q, want %q", data.Email, "a@example.com")
		}
	})

	t.Run("追記の失敗はエラーログに記録されるだけであること", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zapcore.ErrorLevel)
		a := &memoryAppender{err: errors.New("disk full")}
		Emit(context.Background(), a, zap.New(core), "user-1", AggregateTypeUser, TypeUserSignedOut, UserSignedOutData{SessionID: "s"})

		if logs.Len() != 1 {
			t.Errorf("エラーログ件数 = %d, want 1", logs.Len())
		}
	})

	t.Run("シリアライズできないデータはエラーログに記録されること", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zapcore.ErrorLevel)
		a := &memoryAppender{}
		Emit(context.Background(), a, zap.New(core), "user-1", AggregateTypeUser, TypeProfileUpdated, make(chan int))

		if len(a.events) != 0 {
			t.Error("イベントが追記されてはならない")
		}
		if logs.Len() != 1 {
			t.Errorf("エラーログ件数 = %d, want 1", logs.Len())
		}
	})
}
