package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"aqua-backend/internal/models"
)

const commandTopic = "smart-aqua/commands/feed"

type recordingSender struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (s *recordingSender) Publish(_ context.Context, topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, published{topic: topic, payload: payload})
	return nil
}

func newTestPublisher(t *testing.T, sender Sender) *Publisher {
	t.Helper()
	p := NewPublisher(sender, commandTopic, zaptest.NewLogger(t))
	p.now = func() time.Time {
		return time.Date(2026, 3, 1, 8, 30, 0, 0, time.FixedZone("CET", 3600))
	}
	return p
}

func TestFeedPublishesLiteralPayload(t *testing.T) {
	sender := &recordingSender{}
	p := newTestPublisher(t, sender)

	require.NoError(t, p.Feed(context.Background()))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, commandTopic, sender.sent[0].topic)
	assert.Equal(t, []byte("FEED"), sender.sent[0].payload)
}

func TestSendCommandEnvelope(t *testing.T) {
	sender := &recordingSender{}
	p := newTestPublisher(t, sender)

	require.NoError(t, p.SendCommand(context.Background(), "light", "on"))
	require.NoError(t, p.SendCommand(context.Background(), "pump", nil))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, commandTopic, sender.sent[0].topic)
	assert.JSONEq(t, `{"command":"light","value":"on","timestamp":"2026-03-01T07:30:00Z"}`, string(sender.sent[0].payload))
	assert.JSONEq(t, `{"command":"pump","timestamp":"2026-03-01T07:30:00Z"}`, string(sender.sent[1].payload))

	var cmd models.Command
	require.NoError(t, json.Unmarshal(sender.sent[0].payload, &cmd))
	assert.Equal(t, "light", cmd.Command)
}

func TestSendCommandRequiresName(t *testing.T) {
	sender := &recordingSender{}
	p := newTestPublisher(t, sender)

	require.Error(t, p.SendCommand(context.Background(), "", 1))
	assert.Empty(t, sender.sent)
}

func TestSendCommandRejectsUnencodableValue(t *testing.T) {
	sender := &recordingSender{}
	p := newTestPublisher(t, sender)

	require.Error(t, p.SendCommand(context.Background(), "light", make(chan int)))
	assert.Empty(t, sender.sent)
}

func TestPublisherKeepsNotConnectedMatchable(t *testing.T) {
	p := newTestPublisher(t, &recordingSender{err: ErrNotConnected})

	err := p.Feed(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Contains(t, err.Error(), "feed command")

	err = p.SendCommand(context.Background(), "light", "on")
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Contains(t, err.Error(), "light")
}

func TestPublisherOverDisconnectedAdapter(t *testing.T) {
	a, _ := newTestAdapter(t)
	p := newTestPublisher(t, a)

	assert.True(t, errors.Is(p.Feed(context.Background()), ErrNotConnected))
}

func TestPublisherOverConnectedAdapter(t *testing.T) {
	a, f := newTestAdapter(t)
	client := connected(t, a, f)
	p := newTestPublisher(t, a)

	require.NoError(t, p.Feed(context.Background()))

	_, _, pubs := client.snapshot()
	require.Len(t, pubs, 1)
	assert.Equal(t, commandTopic, pubs[0].topic)
	assert.Equal(t, []byte("FEED"), pubs[0].payload)
}
