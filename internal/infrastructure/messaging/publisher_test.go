package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestPublisher_Map(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "invoice.events", zap.NewNop())
	fixed := time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.Map(context.Background(), "pkg-1", invoice.VendorDigi))
	require.Len(t, ch.sent, 1)

	sent := ch.sent[0]
	assert.Equal(t, "invoice.events", sent.exchange)
	assert.Equal(t, "invoice.mapping.requested.digi", sent.key)
	assert.Equal(t, "application/json", sent.msg.ContentType)
	assert.Equal(t, amqp.Persistent, sent.msg.DeliveryMode)
	assert.Equal(t, "pkg-1", sent.msg.CorrelationId)

	var event MappingRequested
	require.NoError(t, json.Unmarshal(sent.msg.Body, &event))
	assert.Equal(t, "pkg-1", event.PersistedID)
	assert.Equal(t, invoice.VendorDigi, event.Vendor)
	assert.Equal(t, EventMappingRequested, event.Type)
	assert.Equal(t, sent.msg.MessageId, event.ID)
	assert.True(t, fixed.Equal(event.RequestedAt))
}

func TestPublisher_MapError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := NewPublisher(ch, "invoice.events", zap.NewNop())

	err := p.Map(context.Background(), "pkg-1", invoice.VendorMaxis)
	assert.ErrorContains(t, err, "channel closed")
}

func TestDial_RequiresSettings(t *testing.T) {
	_, err := Dial(Config{}, zap.NewNop())
	assert.Error(t, err)
}
