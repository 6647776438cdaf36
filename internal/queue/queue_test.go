package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	msg := MarkMessage{SessionID: "sess-1", SchoolID: "sch-1", RecordID: "rec-1", MarkedAt: time.Now().UTC()}
	require.NoError(t, q.Publish(ctx, msg))

	out, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case got := <-out:
		assert.Equal(t, msg.SessionID, got.SessionID)
		assert.Equal(t, msg.RecordID, got.RecordID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemoryPublishHonorsCancellation(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, MarkMessage{SessionID: "sess-1"}))
	cancel()
	err := q.Publish(ctx, MarkMessage{SessionID: "sess-2"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarkMessageWireFormat(t *testing.T) {
	msg := MarkMessage{SessionID: "sess-1", SchoolID: "sch-1", RecordID: "rec-1"}
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	var got MarkMessage
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, msg, got)
}
