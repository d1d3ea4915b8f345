package messaging

import "context"

// WildcardType 订阅全部消息类型
const WildcardType = "*"

// Publisher 发布端抽象
type Publisher interface {
	Publish(ctx context.Context, message *Message) error
}

// Transport 消息传输接口
type Transport interface {
	Publisher
	Subscribe(messageType string, handler Handler) error
	Start(ctx context.Context) error
	Close() error
	Stats() TransportStats
}

// TransportStats 传输层统计信息
type TransportStats struct {
	Running      bool     `json:"running"`
	Published    int64    `json:"published"`
	HandlerCount int      `json:"handler_count"`
	MessageTypes []string `json:"message_types"`
}
