// Package natsjetstream 基于 NATS JetStream 的消息传输。
package natsjetstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"recipetrail/logging"
	"recipetrail/messaging"
)

// jetStream 依赖的 JetStreamContext 方法子集
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	DurablePrefix string
	AckWait       time.Duration
	MaxAge        time.Duration // 流内消息保留时长，0 表示不限
	Conn          *nats.Conn
	JetStream     jetStream // 测试注入；非空时忽略 URL/Conn
	Logger        logging.Logger
}

type Transport struct {
	cfg       Config
	logger    logging.Logger
	conn      *nats.Conn
	js        jetStream
	ownsConn  bool
	published atomic.Int64

	handlers map[string][]messaging.Handler
	subs     map[string]*nats.Subscription

	mu      sync.RWMutex
	running bool
}

func NewTransport(cfg Config) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "RECIPETRAIL"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "recipetrail."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "recipetrail-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	return &Transport{
		cfg:      cfg,
		logger:   logging.ComponentLogger(cfg.Logger, "transport.nats"),
		handlers: make(map[string][]messaging.Handler),
		subs:     make(map[string]*nats.Subscription),
	}
}

// Publish 发布到 <prefix><type>；消息 ID 作为 JetStream 去重 ID
func (t *Transport) Publish(ctx context.Context, message *messaging.Message) error {
	t.mu.RLock()
	js, running := t.js, t.running
	t.mu.RUnlock()
	if !running || js == nil {
		return errors.New("nats transport not running")
	}
	data, err := messaging.Marshal(message)
	if err != nil {
		return err
	}
	subject := t.subjectName(message.Type)
	if _, err := js.Publish(subject, data, nats.MsgId(message.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	t.published.Add(1)
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		return t.subscribeLocked(messageType)
	}
	return nil
}

// Start 建立连接并确保流存在
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("nats transport already running")
	}
	if err := t.ensureConnection(); err != nil {
		return err
	}
	if err := t.ensureStream(); err != nil {
		return err
	}
	for mt := range t.handlers {
		if err := t.subscribeLocked(mt); err != nil {
			return err
		}
	}
	t.running = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	for mt, sub := range t.subs {
		_ = sub.Drain()
		delete(t.subs, mt)
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	t.js = nil
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	types := make([]string, 0, len(t.handlers))
	for mt, hs := range t.handlers {
		count += len(hs)
		types = append(types, mt)
	}
	sort.Strings(types)
	return messaging.TransportStats{
		Running:      t.running,
		Published:    t.published.Load(),
		HandlerCount: count,
		MessageTypes: types,
	}
}

func (t *Transport) ensureConnection() error {
	if t.cfg.JetStream != nil {
		t.js = t.cfg.JetStream
		return nil
	}
	if t.cfg.Conn != nil {
		t.conn = t.cfg.Conn
	} else {
		url := t.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url, nats.Name("recipetrail"))
		if err != nil {
			return err
		}
		t.conn = conn
		t.ownsConn = true
	}
	js, err := t.conn.JetStream()
	if err != nil {
		return err
	}
	t.js = js
	return nil
}

func (t *Transport) ensureStream() error {
	_, err := t.js.StreamInfo(t.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	// 通知可被多个消费者各自消费，使用 limits 保留策略
	sc := &nats.StreamConfig{
		Name:      t.cfg.Stream,
		Subjects:  []string{t.cfg.SubjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    t.cfg.MaxAge,
	}
	_, err = t.js.AddStream(sc)
	return err
}

func (t *Transport) subscribeLocked(messageType string) error {
	if _, exists := t.subs[messageType]; exists {
		return nil
	}
	subject := t.subjectName(messageType)
	durable := t.cfg.DurablePrefix + strings.NewReplacer(".", "-", "*", "all", ">", "all").Replace(messageType)
	sub, err := t.js.QueueSubscribe(subject, durable, t.handleMessage,
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(t.cfg.AckWait))
	if err != nil {
		return err
	}
	t.subs[messageType] = sub
	return nil
}

func (t *Transport) handleMessage(msg *nats.Msg) {
	ctx := context.Background()
	decoded, err := messaging.Unmarshal(msg.Data)
	if err != nil {
		t.logger.Warn(ctx, "decode nats message failed", logging.String("subject", msg.Subject), logging.Error(err))
		_ = msg.Term()
		return
	}
	t.dispatch(ctx, decoded)
	if err := msg.Ack(); err != nil {
		t.logger.Warn(ctx, "nats ack failed", logging.Error(err))
	}
}

func (t *Transport) dispatch(ctx context.Context, message *messaging.Message) {
	t.mu.RLock()
	exact := t.handlers[message.Type]
	wildcard := t.handlers[messaging.WildcardType]
	handlers := make([]messaging.Handler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	t.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, message); err != nil {
			t.logger.Warn(ctx, "message handler failed", logging.String("message_id", message.ID), logging.Error(err))
		}
	}
}

// subjectName 通配订阅映射为前缀下的全部主题
func (t *Transport) subjectName(messageType string) string {
	if messageType == messaging.WildcardType {
		return t.cfg.SubjectPrefix + ">"
	}
	return t.cfg.SubjectPrefix + messageType
}
