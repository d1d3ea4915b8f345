// Package memory 提供进程内的同步消息传输，适用于单机部署与测试。
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"recipetrail/logging"
	"recipetrail/messaging"
)

// Transport 在 Publish 的调用 goroutine 内同步分发到全部处理器，
// 并保留最近发布的消息供查询。
type Transport struct {
	handlers  map[string][]messaging.Handler
	history   []*messaging.Message
	capacity  int
	published int64
	running   bool
	logger    logging.Logger
	mutex     sync.RWMutex
}

// NewTransport capacity 为保留的历史消息条数（<=0 时默认 256）
func NewTransport(capacity int, logger logging.Logger) *Transport {
	if capacity <= 0 {
		capacity = 256
	}
	return &Transport{
		handlers: make(map[string][]messaging.Handler),
		capacity: capacity,
		logger:   logging.ComponentLogger(logger, "transport.memory"),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.running {
		return fmt.Errorf("memory transport already running")
	}
	t.running = true
	return nil
}

func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.running = false
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.Handler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s", messageType)
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	return nil
}

// Publish 同步分发；处理器错误合并后返回，但消息仍计为已发布
func (t *Transport) Publish(ctx context.Context, message *messaging.Message) error {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return fmt.Errorf("memory transport is not running")
	}
	t.published++
	t.history = append(t.history, message)
	if len(t.history) > t.capacity {
		t.history = t.history[len(t.history)-t.capacity:]
	}
	exact := t.handlers[message.Type]
	wildcard := t.handlers[messaging.WildcardType]
	handlers := make([]messaging.Handler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	t.mutex.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, message); err != nil {
			t.logger.Warn(ctx, "message handler failed",
				logging.String("message_type", message.Type),
				logging.String("message_id", message.ID),
				logging.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Messages 返回保留的历史消息副本，按发布顺序
func (t *Transport) Messages() []*messaging.Message {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	out := make([]*messaging.Message, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	count := 0
	types := make([]string, 0, len(t.handlers))
	for mt, hs := range t.handlers {
		count += len(hs)
		types = append(types, mt)
	}
	sort.Strings(types)
	return messaging.TransportStats{
		Running:      t.running,
		Published:    t.published,
		HandlerCount: count,
		MessageTypes: types,
	}
}
