// Package redisstreams 基于 Redis Streams 的消息传输。
//
// 每种消息类型写入独立的 stream（前缀 + 类型），消费端使用消费组。
package redisstreams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"recipetrail/logging"
	"recipetrail/messaging"
)

// client 依赖的 go-redis 命令子集（便于测试替换）
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	Close() error
}

type Config struct {
	Client       client // 为空时按 Addr 创建并由传输负责关闭
	Addr         string
	Password     string
	DB           int
	StreamPrefix string
	MaxLen       int64 // 近似裁剪长度，0 表示不裁剪
	GroupName    string
	ConsumerName string
	BlockTimeout time.Duration
	ReadCount    int64
	Logger       logging.Logger
}

type Transport struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger
	published atomic.Int64

	handlers map[string][]messaging.Handler
	readers  map[string]bool

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewTransport(cfg Config) (*Transport, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "recipetrail:"
	}
	if cfg.GroupName == "" {
		cfg.GroupName = "recipetrail"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "consumer-" + uuid.NewString()
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}

	cl, own := cfg.Client, false
	if cl == nil {
		if cfg.Addr == "" {
			return nil, errors.New("redis address not configured")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		own = true
	}

	return &Transport{
		cfg:       cfg,
		client:    cl,
		ownClient: own,
		logger:    logging.ComponentLogger(cfg.Logger, "transport.redisstreams"),
		handlers:  make(map[string][]messaging.Handler),
		readers:   make(map[string]bool),
	}, nil
}

// Publish XADD 一条消息；发布不要求 Start
func (t *Transport) Publish(ctx context.Context, message *messaging.Message) error {
	values, err := encodeMessage(message)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: t.streamName(message.Type), Values: values}
	if t.cfg.MaxLen > 0 {
		args.MaxLen = t.cfg.MaxLen
		args.Approx = true
	}
	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	t.published.Add(1)
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.Handler) error {
	if messageType == messaging.WildcardType {
		return errors.New("redis streams transport does not support wildcard subscriptions")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		t.startReaderLocked(messageType)
	}
	return nil
}

// Start 为每个已订阅类型启动消费循环
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("redis streams transport already running")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	for mt := range t.handlers {
		t.startReaderLocked(mt)
	}
	t.running = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.running = false
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	if t.ownClient {
		return t.client.Close()
	}
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

func (t *Transport) startReaderLocked(messageType string) {
	if t.readers[messageType] {
		return
	}
	t.readers[messageType] = true
	t.wg.Add(1)
	go t.readLoop(t.ctx, messageType)
}

func (t *Transport) readLoop(ctx context.Context, messageType string) {
	defer t.wg.Done()
	stream := t.streamName(messageType)
	if err := t.ensureGroup(ctx, stream); err != nil {
		t.logger.Warn(ctx, "创建消费组失败", logging.String("stream", stream), logging.Error(err))
	}
	args := &redis.XReadGroupArgs{
		Group:    t.cfg.GroupName,
		Consumer: t.cfg.ConsumerName,
		Streams:  []string{stream, ">"},
		Count:    t.cfg.ReadCount,
		Block:    t.cfg.BlockTimeout,
	}
	backoff := 100 * time.Millisecond
	for ctx.Err() == nil {
		res, err := t.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			t.logger.Warn(ctx, "xreadgroup failed", logging.Duration("backoff", backoff), logging.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff = min(backoff*2, 5*time.Second)
			continue
		}
		backoff = 100 * time.Millisecond
		for _, sr := range res {
			for _, entry := range sr.Messages {
				t.handleEntry(ctx, sr.Stream, entry)
			}
		}
	}
}

func (t *Transport) handleEntry(ctx context.Context, stream string, entry redis.XMessage) {
	msg, err := decodeMessage(entry)
	if err != nil {
		t.logger.Warn(ctx, "解码 stream 条目失败", logging.String("entry_id", entry.ID), logging.Error(err))
	} else {
		t.mu.RLock()
		handlers := append([]messaging.Handler(nil), t.handlers[msg.Type]...)
		t.mu.RUnlock()
		for _, h := range handlers {
			if herr := h.Handle(ctx, msg); herr != nil {
				t.logger.Warn(ctx, "message handler failed", logging.String("message_id", msg.ID), logging.Error(herr))
			}
		}
	}
	if ackErr := t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err(); ackErr != nil {
		t.logger.Warn(ctx, "xack failed", logging.Error(ackErr))
	}
}

func (t *Transport) ensureGroup(ctx context.Context, stream string) error {
	err := t.client.XGroupCreateMkStream(ctx, stream, t.cfg.GroupName, "0").Err()
	if err == nil || strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP") {
		return nil
	}
	return err
}

func (t *Transport) streamName(messageType string) string {
	return t.cfg.StreamPrefix + messageType
}

func encodeMessage(msg *messaging.Message) (map[string]any, error) {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, err
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	payload := string(msg.Payload)
	if payload == "" {
		payload = "null"
	}
	return map[string]any{
		"id":        msg.ID,
		"type":      msg.Type,
		"key":       msg.Key,
		"timestamp": ts.UnixNano(),
		"payload":   payload,
		"metadata":  string(metadata),
	}, nil
}

// decodeMessage 从 stream 条目还原消息；Redis 返回的字段值均为字符串
func decodeMessage(entry redis.XMessage) (*messaging.Message, error) {
	str := func(k string) string {
		switch v := entry.Values[k].(type) {
		case string:
			return v
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}

	payload := str("payload")
	if payload != "" && !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("entry %s: payload is not valid JSON", entry.ID)
	}
	metadata := make(map[string]string)
	if raw := str("metadata"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
		}
	}

	ts := time.Now().UTC()
	if ns, err := strconv.ParseInt(str("timestamp"), 10, 64); err == nil {
		ts = time.Unix(0, ns).UTC()
	}

	id := str("id")
	if id == "" {
		id = entry.ID
	}
	return &messaging.Message{
		ID:        id,
		Type:      str("type"),
		Key:       str("key"),
		Timestamp: ts,
		Payload:   json.RawMessage(payload),
		Metadata:  metadata,
	}, nil
}
