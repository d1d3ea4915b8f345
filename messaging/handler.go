package messaging

import "context"

// Handler 消息处理器
type Handler interface {
	Handle(ctx context.Context, message *Message) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, message *Message) error

func (f HandlerFunc) Handle(ctx context.Context, message *Message) error {
	return f(ctx, message)
}
