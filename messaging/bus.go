package messaging

import (
	"context"
	"fmt"
	"sync"
)

// PublishFunc 中间件链的执行单元
type PublishFunc func(ctx context.Context, message *Message) error

// IMiddleware 发布中间件
type IMiddleware interface {
	Handle(ctx context.Context, message *Message, next PublishFunc) error
	Name() string
}

// Bus 在 Publisher 前挂载中间件链
type Bus struct {
	publisher   Publisher
	middlewares []IMiddleware
	mutex       sync.RWMutex
}

func NewBus(publisher Publisher) *Bus {
	return &Bus{publisher: publisher}
}

// Use 注册中间件，按注册顺序执行
func (bus *Bus) Use(middleware IMiddleware) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	bus.middlewares = append(bus.middlewares, middleware)
}

// Publish 执行中间件后交给底层 Publisher
func (bus *Bus) Publish(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("nil message")
	}
	bus.mutex.RLock()
	middlewares := bus.middlewares
	bus.mutex.RUnlock()

	next := PublishFunc(bus.publisher.Publish)
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		current := next
		next = func(ctx context.Context, msg *Message) error {
			return mw.Handle(ctx, msg, current)
		}
	}
	return next(ctx, message)
}
