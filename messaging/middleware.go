package messaging

import (
	"context"
	"time"

	"recipetrail/logging"
)

// 元数据键
const (
	KeyCorrelationID = "correlation_id"
	KeySource        = "source"
)

type correlationKey struct{}

// ContextWithCorrelationID 在上下文中携带关联 ID
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom 读取上下文中的关联 ID
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// CorrelationMiddleware 补齐 correlation_id：优先沿用上下文，否则使用消息 ID
type CorrelationMiddleware struct{}

func (CorrelationMiddleware) Name() string { return "Correlation" }

func (CorrelationMiddleware) Handle(ctx context.Context, message *Message, next PublishFunc) error {
	if message.Metadata[KeyCorrelationID] == "" {
		id := CorrelationIDFrom(ctx)
		if id == "" {
			id = message.ID
		}
		message.SetMetadata(KeyCorrelationID, id)
	}
	return next(ctx, message)
}

// SourceMiddleware 标记消息来源
type SourceMiddleware struct{ Source string }

func (m SourceMiddleware) Name() string { return "Source" }

func (m SourceMiddleware) Handle(ctx context.Context, message *Message, next PublishFunc) error {
	if m.Source != "" {
		message.SetMetadata(KeySource, m.Source)
	}
	return next(ctx, message)
}

// LoggingMiddleware 记录发布耗时与结果
type LoggingMiddleware struct{ Logger logging.Logger }

func (m LoggingMiddleware) Name() string { return "Logging" }

func (m LoggingMiddleware) Handle(ctx context.Context, message *Message, next PublishFunc) error {
	logger := logging.ComponentLogger(m.Logger, "messaging")
	start := time.Now()
	err := next(ctx, message)
	fields := []logging.Field{
		logging.String("message_id", message.ID),
		logging.String("message_type", message.Type),
		logging.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		logger.Warn(ctx, "消息发布失败", append(fields, logging.Error(err))...)
		return err
	}
	logger.Debug(ctx, "消息已发布", fields...)
	return nil
}
