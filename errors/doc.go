// Package errors provides standardized error handling for ackretry.
//
// # Taxonomy
//
// The retry core distinguishes four conditions:
//
//   - ErrInvalidParameters: backoff bounds are malformed. Fatal at initialization.
//   - ErrHandshakeFailed: the transport could not establish a session. Fatal, no retries.
//   - ErrRetriesExhausted: the request was never acknowledged within the budget.
//     The coordinator folds it into its result and the CLI reports it as the
//     cause of exit status 3; shutdown stays orderly.
//   - ErrTransportClosed / TransportClosedError: the transport closed the session.
//     Its code becomes the terminal status.
//
// # Error Classification
//
// Errors are classified as Transient, Invalid or Fatal. Only fatal errors unwind
// to the top level of the binary:
//
//	if err := coord.Run(ctx); err != nil {
//	    if errors.IsFatal(err) {
//	        os.Exit(coordinator.ExitFatal)
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Client", "IssueRequest", "publish")
//	errors.WrapInvalid(err, "Config", "Validate", "check bounds")
//	errors.WrapFatal(err, "Coordinator", "Run", "await handshake")
//
// Sentinels survive wrapping, so errors.Is keeps working through the chain.
package errors
