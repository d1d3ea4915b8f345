package revision

import (
	"context"
	"strconv"
	"time"

	"recipetrail/messaging"
	"recipetrail/patterns/retry"
)

// MessageTypeRecipeRevised 配方修订通知的消息类型
const MessageTypeRecipeRevised = "recipe.revised"

// Revision 已提交编辑的摘要，作为通知载荷
type Revision struct {
	RecipeID         int64     `json:"recipe_id"`
	ActorID          int64     `json:"actor_id"`
	ProductionID     *int64    `json:"production_id,omitempty"`
	VersionID        *int64    `json:"version_id,omitempty"`
	VersionNumber    int       `json:"version_number,omitempty"`
	AuditRecordCount int       `json:"audit_record_count"`
	Fields           []string  `json:"fields"`
	RevisedAt        time.Time `json:"revised_at"`
}

// Notifier 提交后的修订通知
type Notifier interface {
	Notify(ctx context.Context, rev Revision) error
}

// MessageNotifier 将修订摘要发布为 recipe.revised 消息，以配方 ID 作为消息键
type MessageNotifier struct {
	publisher   messaging.Publisher
	messageType string
	retry       retry.Config
}

// NotifierOption MessageNotifier 配置项
type NotifierOption func(*MessageNotifier)

// WithPublishRetry 发布失败时按 cfg 重试；重试发送的是同一条消息（相同消息 ID）
func WithPublishRetry(cfg retry.Config) NotifierOption {
	return func(n *MessageNotifier) { n.retry = cfg }
}

// WithMessageType 覆盖通知的消息类型；空串保持默认
func WithMessageType(messageType string) NotifierOption {
	return func(n *MessageNotifier) {
		if messageType != "" {
			n.messageType = messageType
		}
	}
}

// NewMessageNotifier 默认只尝试一次
func NewMessageNotifier(publisher messaging.Publisher, opts ...NotifierOption) *MessageNotifier {
	n := &MessageNotifier{
		publisher:   publisher,
		messageType: MessageTypeRecipeRevised,
		retry:       retry.Config{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *MessageNotifier) Notify(ctx context.Context, rev Revision) error {
	msg, err := messaging.NewMessage(n.messageType, strconv.FormatInt(rev.RecipeID, 10), rev)
	if err != nil {
		return err
	}
	msg.SetMetadata("actor_id", strconv.FormatInt(rev.ActorID, 10))
	return retry.Do(ctx, func(ctx context.Context) error {
		return n.publisher.Publish(ctx, msg)
	}, n.retry)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Revision) error { return nil }
