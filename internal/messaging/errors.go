package messaging

import "errors"

var (
	// ErrIneligibleRecipient marks a directed send to a channel the recipient
	// does not subscribe to. The message is dropped.
	ErrIneligibleRecipient = errors.New("recipient not subscribed to channel")
	// ErrChannelUnavailable marks a transient acceptance failure handed to the
	// retry coordinator.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrRetryExhausted marks a message permanently dropped from a channel.
	ErrRetryExhausted = errors.New("retry limit exhausted")
	ErrUnknownVariant = errors.New("unknown channel variant")
)

// Outcome describes what happened to a single accept. Routers report it but
// never turn it into an error for the caller.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeRetrying
	OutcomeExhausted
	OutcomeIneligible
	// OutcomeCancelled is a redelivery that failed after its retry was
	// cancelled. Nothing is parked or recorded.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRetrying:
		return "retrying"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeIneligible:
		return "ineligible"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Err maps o onto the error taxonomy. Accepted, duplicate and cancelled
// yield nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeRetrying:
		return ErrChannelUnavailable
	case OutcomeExhausted:
		return ErrRetryExhausted
	case OutcomeIneligible:
		return ErrIneligibleRecipient
	default:
		return nil
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
