// Package natsclient is the NATS transport for the unsubscribe retry loop.
//
// A Client implements the coordinator's transport contract on top of a plain
// NATS connection:
//
//   - Connect dials in the background. On success it subscribes an inbox for
//     acknowledgments and reports OnHandshakeComplete(true); a dial failure
//     reports OnHandshakeComplete(false).
//   - IssueRequest publishes an UnsubscribeRequest on the target subject with
//     the inbox as reply subject. Every attempt carries a fresh request id.
//   - An UnsubscribeAck with status "ok" arriving on the inbox is reported
//     through OnAcknowledged. Malformed payloads are logged and dropped.
//   - Disconnect drains the connection; OnClosed then reports CodeClientClosed.
//     A connection that is lost for good reports CodeConnectionLost.
//
// NATS invokes its callbacks from its own goroutines. The Client never calls
// the handler from there. It queues typed events that a single dispatcher,
// started by Start, delivers in arrival order, so the handler sees a strict
// sequence: handshake, acknowledgments, closure.
//
// # Subjects
//
// Targets are written as slash separated topics and mapped with TopicToSubject:
//
//	natsclient.TopicToSubject("unsubscribe/test") // "unsubscribe.test"
//
// # Usage
//
//	tracker := ack.NewTracker()
//	client, err := natsclient.NewClient(
//	    natsclient.WithClientID("unsubscribe-test"),
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Start(tracker); err != nil {
//	    return err
//	}
//	defer client.Stop()
//
//	if err := client.Connect(ctx, "nats://localhost:4222", time.Minute); err != nil {
//	    return err
//	}
//	if err := tracker.WaitConnected(ctx); err != nil {
//	    return err
//	}
//	id, err := client.IssueRequest(ctx, "unsubscribe/test")
//
// # Responder
//
// Responder is the other side of the exchange. It subscribes to the target
// subject and acknowledges each request, optionally dropping the first N to
// exercise the retry path:
//
//	r, _ := natsclient.NewResponder(url, "unsubscribe/test", natsclient.WithDropFirst(2))
//	_ = r.Start(ctx)
//	defer r.Stop()
package natsclient
