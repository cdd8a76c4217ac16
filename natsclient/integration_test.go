//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ackretry/ack"
)

func startClient(t *testing.T, url string, opts ...ClientOption) (*Client, *ack.Tracker) {
	t.Helper()

	client, err := NewClient(append([]ClientOption{WithMaxReconnects(0)}, opts...)...)
	require.NoError(t, err)

	tracker := ack.NewTracker()
	require.NoError(t, client.Start(tracker))
	t.Cleanup(client.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx, url, time.Minute))
	require.NoError(t, tracker.WaitConnected(ctx))

	return client, tracker
}

func TestIntegration_RequestAcknowledged(t *testing.T) {
	server := StartTestServer(t)
	ctx := context.Background()

	responder, err := NewResponder(server.URL, "unsubscribe/test")
	require.NoError(t, err)
	require.NoError(t, responder.Start(ctx))
	defer responder.Stop()

	client, tracker := startClient(t, server.URL)
	assert.True(t, client.IsConnected())
	assert.NotEmpty(t, client.Inbox())

	id, err := client.IssueRequest(ctx, "unsubscribe/test")
	require.NoError(t, err)

	select {
	case <-tracker.Acknowledged():
	case <-time.After(5 * time.Second):
		t.Fatal("acknowledgment not received")
	}

	assert.False(t, tracker.Pending())
	assert.Equal(t, id, tracker.LastRequestID())
	assert.Equal(t, int64(1), responder.Acknowledged())
}

func TestIntegration_DroppedRequestsStayPending(t *testing.T) {
	server := StartTestServer(t)
	ctx := context.Background()

	responder, err := NewResponder(server.URL, "unsubscribe/test", WithDropFirst(1))
	require.NoError(t, err)
	require.NoError(t, responder.Start(ctx))
	defer responder.Stop()

	client, tracker := startClient(t, server.URL)

	_, err = client.IssueRequest(ctx, "unsubscribe/test")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return responder.Seen() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, tracker.Pending())

	second, err := client.IssueRequest(ctx, "unsubscribe/test")
	require.NoError(t, err)

	select {
	case <-tracker.Acknowledged():
	case <-time.After(5 * time.Second):
		t.Fatal("acknowledgment not received")
	}
	assert.Equal(t, second, tracker.LastRequestID())
	assert.Equal(t, uint32(2), client.Requests())
}

func TestIntegration_DisconnectReportsClientClose(t *testing.T) {
	server := StartTestServer(t)

	client, tracker := startClient(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Disconnect(ctx))

	select {
	case <-tracker.Closed():
	case <-time.After(5 * time.Second):
		t.Fatal("closure not reported")
	}

	code, ok := tracker.TerminationCode()
	require.True(t, ok)
	assert.Equal(t, CodeClientClosed, code)
	assert.Equal(t, StatusClosed, client.Status())
}

func TestIntegration_ServerLossReportsConnectionLost(t *testing.T) {
	server := StartTestServer(t)

	_, tracker := startClient(t, server.URL)

	require.NoError(t, server.Terminate(context.Background()))

	select {
	case <-tracker.Closed():
	case <-time.After(15 * time.Second):
		t.Fatal("closure not reported")
	}

	code, ok := tracker.TerminationCode()
	require.True(t, ok)
	assert.Equal(t, CodeConnectionLost, code)
}
