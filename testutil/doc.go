// Package testutil provides test doubles for the retry coordinator.
//
// MockTransport implements the coordinator's transport contract in memory.
// It records every call and lets a test script the broker's behavior:
// whether the handshake succeeds, which request gets acknowledged, when the
// connection closes and with what code. No NATS server is required.
//
//	transport := testutil.NewMockTransport(
//	    testutil.WithHandshake(true),
//	    testutil.WithAckOnRequest(1),
//	)
//	coord, _ := coordinator.New(cfg, transport)
//	result, err := coord.Run(ctx)
//	// transport.RequestCount() == 1
package testutil
