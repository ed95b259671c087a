package event

import (
	"context"

	"go.uber.org/zap"
)

// Appender はイベントを永続化する。
type Appender interface {
	AppendEvent(ctx context.Context, ev *Event) error
}

// Emit はイベントを生成してAppenderに追記する。
// 監査イベントの記録に失敗しても呼び出し元の処理は失敗させず、ログに残すだけとする。
func Emit(ctx context.Context, appender Appender, logger *zap.Logger, aggregateID string, aggregateType AggregateType, eventType Type, data any) {
	ev, err := New(aggregateID, aggregateType, eventType, data)
	if err != nil {
		logger.Error("イベント生成エラー", zap.String("event_type", string(eventType)), zap.Error(err))
		return
	}
	if err := appender.AppendEvent(ctx, ev); err != nil {
		logger.Error("イベント記録エラー",
			zap.String("event_type", string(eventType)),
			zap.String("aggregate_id", aggregateID),
			zap.Error(err),
		)
	}
}
