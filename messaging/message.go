// Package messaging 提供修订通知的消息抽象与传输接口。
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message 通知消息。Payload 在创建时编码一次，各传输直接发送原始 JSON。
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Key       string            `json:"key,omitempty"` // 分区/排序键，通常是实体 ID
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage 创建消息并编码 payload
func NewMessage(messageType, key string, payload any) (*Message, error) {
	if messageType == "" {
		return nil, fmt.Errorf("message type is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", messageType, err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      messageType,
		Key:       key,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
		Metadata:  make(map[string]string),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// DecodePayload 将 payload 解码到 v
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", m.ID)
	}
	return json.Unmarshal(m.Payload, v)
}

// Marshal 编码消息信封（时间戳以纳秒整数表示）
func Marshal(m *Message) ([]byte, error) {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(envelope{
		ID:        m.ID,
		Type:      m.Type,
		Key:       m.Key,
		Timestamp: ts.UnixNano(),
		Payload:   payload,
		Metadata:  m.Metadata,
	})
}

// Unmarshal 解码 Marshal 产生的信封
func Unmarshal(data []byte) (*Message, error) {
	var wire envelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Metadata == nil {
		wire.Metadata = make(map[string]string)
	}
	return &Message{
		ID:        wire.ID,
		Type:      wire.Type,
		Key:       wire.Key,
		Timestamp: time.Unix(0, wire.Timestamp).UTC(),
		Payload:   wire.Payload,
		Metadata:  wire.Metadata,
	}, nil
}

type envelope struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Key       string            `json:"key,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
