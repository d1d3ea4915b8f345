package natsjetstream

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipetrail/logging"
	"recipetrail/messaging"
)

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	streams    map[string]*nats.StreamConfig
	published  []published
	publishErr error
}

func newFakeJetStream() *fakeJetStream {
	return &fakeJetStream{streams: make(map[string]*nats.StreamConfig)}
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, published{subject: subj, data: data})
	return &nats.PubAck{Stream: "RECIPETRAIL", Sequence: uint64(len(f.published))}, nil
}

func (f *fakeJetStream) StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	cfg, ok := f.streams[stream]
	if !ok {
		return nil, nats.ErrStreamNotFound
	}
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.streams[cfg.Name] = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJetStream) QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, errors.New("subscriptions are not supported by the fake")
}

func TestTransport_PublishEnsuresStream(t *testing.T) {
	ctx := context.Background()
	js := newFakeJetStream()
	tpt := NewTransport(Config{JetStream: js, Logger: logging.NewNoopLogger()})

	msg, err := messaging.NewMessage("recipe.revised", "3", map[string]int{"recipe_id": 3})
	require.NoError(t, err)

	t.Run("未启动时拒绝发布", func(t *testing.T) {
		assert.Error(t, tpt.Publish(ctx, msg))
	})

	require.NoError(t, tpt.Start(ctx))
	defer tpt.Close()

	stream, ok := js.streams["RECIPETRAIL"]
	require.True(t, ok, "stream should be created on start")
	assert.Equal(t, []string{"recipetrail.>"}, stream.Subjects)
	assert.Equal(t, nats.LimitsPolicy, stream.Retention)

	require.NoError(t, tpt.Publish(ctx, msg))
	require.Len(t, js.published, 1)
	assert.Equal(t, "recipetrail.recipe.revised", js.published[0].subject)

	decoded, err := messaging.Unmarshal(js.published[0].data)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, "3", decoded.Key)
	assert.Equal(t, int64(1), tpt.Stats().Published)

	t.Run("发布失败带主题返回", func(t *testing.T) {
		js.publishErr = errors.New("no responders")
		err := tpt.Publish(ctx, msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recipetrail.recipe.revised")
	})
}

func TestTransport_StartTwice(t *testing.T) {
	ctx := context.Background()
	js := newFakeJetStream()
	js.streams["RECIPETRAIL"] = &nats.StreamConfig{Name: "RECIPETRAIL"}
	tpt := NewTransport(Config{JetStream: js, Logger: logging.NewNoopLogger()})

	require.NoError(t, tpt.Start(ctx))
	assert.Error(t, tpt.Start(ctx))
	require.NoError(t, tpt.Close())
	assert.False(t, tpt.Stats().Running)
}

func TestTransport_DispatchWildcard(t *testing.T) {
	tpt := NewTransport(Config{Logger: logging.NewNoopLogger()})
	var seen []string
	record := messaging.HandlerFunc(func(ctx context.Context, m *messaging.Message) error {
		seen = append(seen, m.Type)
		return nil
	})
	require.NoError(t, tpt.Subscribe("recipe.revised", record))
	require.NoError(t, tpt.Subscribe(messaging.WildcardType, record))

	tpt.dispatch(context.Background(), &messaging.Message{ID: "m1", Type: "recipe.revised"})
	assert.Equal(t, []string{"recipe.revised", "recipe.revised"}, seen)
	assert.Equal(t, "recipetrail.>", tpt.subjectName(messaging.WildcardType))
}
