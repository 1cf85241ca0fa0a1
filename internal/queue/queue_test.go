package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeAttendanceMarked, Body: []byte("rec-1")}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, TypeAttendanceMarked, msg.Type)
		assert.Equal(t, "rec-1", string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestInMemory_PublishRespectsCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, Message{Type: "x"}))

	cancel()
	err := q.Publish(ctx, Message{Type: "y"}) // buffer full, ctx done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: TypeAttendanceMarked, Body: []byte("some|body|with|pipes")}
	got := deserialize(serialize(msg))
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.Body, got.Body)

	// untyped payloads survive as bare bodies
	got = deserialize("no-separator")
	assert.Empty(t, got.Type)
	assert.Equal(t, "no-separator", string(got.Body))
}
