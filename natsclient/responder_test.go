package natsclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ackretry/errors"
)

func requestPayload(t *testing.T, id string, attempt uint32) []byte {
	t.Helper()
	data, err := json.Marshal(UnsubscribeRequest{
		RequestID: id,
		ClientID:  DefaultClientID,
		Target:    "unsubscribe/test",
		Attempt:   attempt,
	})
	require.NoError(t, err)
	return data
}

func TestNewResponder_Validation(t *testing.T) {
	_, err := NewResponder("nats://localhost:4222", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = NewResponder("nats://localhost:4222", "unsubscribe/test", WithDropFirst(-1))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestResponder_Respond(t *testing.T) {
	r, err := NewResponder("nats://localhost:4222", "unsubscribe/test")
	require.NoError(t, err)

	reply, ok := r.respond(requestPayload(t, "r1", 1))
	require.True(t, ok)

	var a UnsubscribeAck
	require.NoError(t, json.Unmarshal(reply, &a))
	assert.Equal(t, "r1", a.RequestID)
	assert.Equal(t, "unsubscribe/test", a.Target)
	assert.True(t, a.Accepted())

	assert.Equal(t, int64(1), r.Seen())
	assert.Equal(t, int64(1), r.Acknowledged())
}

func TestResponder_DropFirst(t *testing.T) {
	r, err := NewResponder("nats://localhost:4222", "unsubscribe/test", WithDropFirst(2))
	require.NoError(t, err)

	_, ok := r.respond(requestPayload(t, "r1", 1))
	assert.False(t, ok)
	_, ok = r.respond(requestPayload(t, "r2", 2))
	assert.False(t, ok)

	reply, ok := r.respond(requestPayload(t, "r3", 3))
	require.True(t, ok)

	a, err := decodeAck(reply)
	require.NoError(t, err)
	assert.Equal(t, "r3", a.RequestID)

	assert.Equal(t, int64(3), r.Seen())
	assert.Equal(t, int64(1), r.Acknowledged())
}

func TestResponder_MalformedRequest(t *testing.T) {
	r, err := NewResponder("nats://localhost:4222", "unsubscribe/test")
	require.NoError(t, err)

	_, ok := r.respond([]byte(`not json`))
	assert.False(t, ok)
	assert.Equal(t, int64(0), r.Seen())
}

func TestResponder_StopWithoutStart(t *testing.T) {
	r, err := NewResponder("nats://localhost:4222", "unsubscribe/test")
	require.NoError(t, err)
	assert.NoError(t, r.Stop())
}
