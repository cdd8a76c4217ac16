package coordinator

// State is the coordinator's position in its lifecycle
type State int32

// Coordinator states
const (
	StateAwaitingConnection State = iota
	StateReady
	StateIssuingRequest
	StateWaiting
	StateDone
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateAwaitingConnection:
		return "awaiting_connection"
	case StateReady:
		return "ready"
	case StateIssuingRequest:
		return "issuing_request"
	case StateWaiting:
		return "waiting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome is how a run ended
type Outcome int

// Run outcomes
const (
	OutcomeAcknowledged Outcome = iota
	OutcomeExhausted
	OutcomeTransportClosed
	OutcomeCancelled
	OutcomeFailed
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeAcknowledged:
		return "acknowledged"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeTransportClosed:
		return "transport_closed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Process exit codes. Acknowledged and transport-closed runs exit with the
// transport's closure code instead.
const (
	ExitFatal            = 1
	ExitRetriesExhausted = 3
	ExitCancelled        = 130
)

// Result summarizes a completed run
type Result struct {
	Outcome       Outcome
	Attempts      uint32 // backoff delays handed out
	Requests      uint32 // requests the transport accepted
	RequestErrors uint32 // requests the transport refused
	LastRequestID string
	ExitCode      int
}
