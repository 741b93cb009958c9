package dispatch

import (
	"errors"

	"github.com/anglebert-dev/print-relay/internal/envelope"
	"github.com/anglebert-dev/print-relay/internal/registry"
	"github.com/anglebert-dev/print-relay/internal/sidestore"
	"github.com/anglebert-dev/print-relay/internal/transport"
)

// Outcome is the tri-state result of handling one delivery. The broker
// manager maps it to exactly one ack or nack call.
type Outcome int

const (
	// OutcomeAck acknowledges the delivery as handled.
	OutcomeAck Outcome = iota
	// OutcomeNackRequeue returns the delivery to the queue for redelivery.
	OutcomeNackRequeue
	// OutcomeNackDrop rejects the delivery without requeue; the broker's
	// dead-letter routing takes it from there.
	OutcomeNackDrop
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeNackRequeue:
		return "nack_requeue"
	case OutcomeNackDrop:
		return "nack_drop"
	default:
		return "unknown"
	}
}

// TenantMismatchError reports a decoded job that belongs to a different
// business than this instance serves. Requeueing it into the same queue
// could never help, so it is dropped.
type TenantMismatchError struct {
	Got  string
	Want string
}

func (e *TenantMismatchError) Error() string {
	return "dispatch: job for business " + e.Got + " received by instance for " + e.Want
}

// classify resolves a dispatch-path error into the ack/nack decision.
// This is the single place the error taxonomy is inspected; every variant
// is matched explicitly and anything unrecognized is treated as transient
// so no job is ever silently lost.
func classify(err error) (outcome Outcome, retryable bool) {
	var (
		malformed *envelope.MalformedError
		mismatch  *TenantMismatchError
		writeErr  *sidestore.WriteError
		sendErr   *transport.Error
	)

	switch {
	case errors.As(err, &malformed):
		return OutcomeNackDrop, false
	case errors.As(err, &mismatch):
		return OutcomeNackDrop, false
	case errors.Is(err, registry.ErrUnknownPrinter):
		return OutcomeNackDrop, false
	case errors.Is(err, registry.ErrUnsupportedType):
		return OutcomeNackDrop, false
	case errors.As(err, &writeErr):
		return OutcomeNackDrop, false
	case errors.As(err, &sendErr):
		return OutcomeNackRequeue, true
	default:
		return OutcomeNackRequeue, true
	}
}
