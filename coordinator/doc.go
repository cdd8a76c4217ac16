// Package coordinator retries an unsubscribe request until the broker
// acknowledges it, the retry budget is spent or the transport closes.
//
// A run connects through a Transport, waits for the handshake, then loops:
// compute the next jittered backoff, sleep it, issue one request. The
// transport reports handshake, acknowledgment and closure to an ack.Tracker
// from its own goroutine; the loop reads the tracker at the top of every
// iteration.
//
//	c, err := coordinator.New(coordinator.Config{
//	    Endpoint:    "nats://localhost:4222",
//	    Keepalive:   time.Minute,
//	    Target:      "unsubscribe/test",
//	    BaseDelayMs: 1000,
//	    MaxDelayMs:  3000,
//	    MaxAttempts: 999,
//	}, client, coordinator.WithWake(wake))
//	if err != nil {
//	    return err
//	}
//	result, err := c.Run(ctx)
//	os.Exit(result.ExitCode)
//
// # Outcomes
//
// Run returns an error only for fatal conditions (transport start, handshake
// failure or timeout). Everything else is an Outcome in the Result:
//
//	acknowledged      exit with the transport's closure code
//	transport_closed  exit with the transport's closure code
//	exhausted         ExitRetriesExhausted
//	cancelled         ExitCancelled
//	failed            ExitFatal
//
// Once the budget is spent no further request is sent; the last one gets
// Config.AckGrace to be acknowledged.
//
// # Wake
//
// A value on the wake channel ends the current backoff sleep early. The
// iteration then issues its request as usual, so a wake never costs an extra
// attempt. Values queued while no sleep is running are discarded when the
// next sleep begins.
//
// A closure reported during a sleep ends it at once. The run finishes as
// transport_closed without sending another request.
package coordinator
