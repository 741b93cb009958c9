// Package dispatch orchestrates the handling of one queue delivery:
// decode, tenant check, duplicate guard, transport, and the resulting
// ack/nack decision. Errors never escape Handle; every path resolves to an
// Outcome and one notification record.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/anglebert-dev/print-relay/internal/audit"
	"github.com/anglebert-dev/print-relay/internal/envelope"
	"github.com/anglebert-dev/print-relay/internal/metrics"
	"github.com/anglebert-dev/print-relay/internal/notify"
	"github.com/anglebert-dev/print-relay/internal/registry"
	"github.com/anglebert-dev/print-relay/internal/sidestore"
	"github.com/anglebert-dev/print-relay/internal/transport"
)

// Sender transmits a document to a printer.
type Sender interface {
	Send(printer registry.Printer, document []byte, fileName string) error
}

// Guard is the duplicate-detection side store.
type Guard interface {
	Record(base, ext string, data []byte) (sidestore.Result, error)
}

// Coordinator processes deliveries for one business. It holds no mutable
// state of its own; the one-in-flight invariant comes from the broker's
// prefetch credit of one.
type Coordinator struct {
	businessID string
	queueName  string
	reg        *registry.Registry
	guard      Guard
	sender     Sender
	notifier   *notify.Notifier
	auditLog   *audit.Log
	log        zerolog.Logger
}

// NewCoordinator creates a Coordinator. auditLog may be nil to disable
// audit recording.
func NewCoordinator(
	businessID string,
	queueName string,
	reg *registry.Registry,
	guard Guard,
	sender Sender,
	notifier *notify.Notifier,
	auditLog *audit.Log,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		businessID: businessID,
		queueName:  queueName,
		reg:        reg,
		guard:      guard,
		sender:     sender,
		notifier:   notifier,
		auditLog:   auditLog,
		log:        log,
	}
}

// Handle processes a single delivery end to end and returns the broker
// decision. Exactly one notification record is emitted per call.
func (c *Coordinator) Handle(ctx context.Context, d envelope.Delivery) Outcome {
	start := time.Now()
	outcome := c.handle(ctx, d, start)

	metrics.DeliveriesTotal.WithLabelValues(outcome.String()).Inc()
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())

	return outcome
}

func (c *Coordinator) handle(ctx context.Context, d envelope.Delivery, start time.Time) Outcome {
	job, err := envelope.Decode(d)
	if err != nil {
		return c.fail(ctx, d, nil, err, start)
	}

	// A binary-shape delivery may omit the business id; the tenant-scoped
	// queue vouches for those. A present mismatching id never belongs here.
	if job.BusinessID != "" && job.BusinessID != c.businessID {
		return c.fail(ctx, d, job, &TenantMismatchError{Got: job.BusinessID, Want: c.businessID}, start)
	}

	printer, err := c.reg.Resolve(job.PrinterID)
	if err != nil {
		return c.fail(ctx, d, job, err, start)
	}

	base, ext := sidestore.BaseIdentity(printer.ID, job.FileName())
	res, err := c.guard.Record(base, ext, job.Payload)
	if err != nil {
		return c.fail(ctx, d, job, err, start)
	}

	if res.Duplicate {
		c.log.Info().
			Str("message_id", d.MessageID).
			Str("printer_id", printer.ID).
			Str("artifact", res.Path).
			Msg("job already handled, skipping print")
		metrics.DuplicateSkipsTotal.Inc()

		c.notifier.PrintSuccess(printer.ID, job.FileName(), res.Path, true)
		c.record(ctx, d, job, audit.Entry{Outcome: OutcomeAck.String(), Duplicate: true}, start)
		return OutcomeAck
	}

	sendStart := time.Now()
	err = c.sender.Send(printer, job.Payload, job.FileName())
	metrics.PrintSendDuration.Observe(time.Since(sendStart).Seconds())

	if err != nil {
		metrics.PrintSendsTotal.WithLabelValues(sendResult(err)).Inc()
		return c.fail(ctx, d, job, err, start)
	}
	metrics.PrintSendsTotal.WithLabelValues("success").Inc()

	c.log.Info().
		Str("message_id", d.MessageID).
		Str("printer_id", printer.ID).
		Str("file_name", job.FileName()).
		Dur("send_duration", time.Since(sendStart)).
		Msg("print job completed")

	c.notifier.PrintSuccess(printer.ID, job.FileName(), res.Path, false)
	c.record(ctx, d, job, audit.Entry{Outcome: OutcomeAck.String()}, start)
	return OutcomeAck
}

// fail resolves err into an outcome, emits the failure notification, and
// records the audit entry. job may be nil when decoding itself failed.
func (c *Coordinator) fail(ctx context.Context, d envelope.Delivery, job *envelope.Job, err error, start time.Time) Outcome {
	outcome, retryable := classify(err)

	if job == nil {
		c.notifier.QueueError(err, c.queueName, d.MessageID, retryable)
	} else {
		c.notifier.PrintFailure(err, job.PrinterID, job.FileName(), retryable)
	}

	c.log.Error().
		Err(err).
		Str("message_id", d.MessageID).
		Str("outcome", outcome.String()).
		Bool("retryable", retryable).
		Msg("print job failed")

	c.record(ctx, d, job, audit.Entry{
		Outcome:   outcome.String(),
		Retryable: retryable,
		LastError: err.Error(),
	}, start)
	return outcome
}

// record fills the delivery-scoped audit fields and writes the entry.
func (c *Coordinator) record(ctx context.Context, d envelope.Delivery, job *envelope.Job, e audit.Entry, start time.Time) {
	e.MessageID = d.MessageID
	e.BusinessID = c.businessID
	e.DurationMs = time.Since(start).Milliseconds()
	if job != nil {
		e.PrinterID = job.PrinterID
		e.FileName = job.FileName()
	}
	c.auditLog.Record(ctx, e)
}

// sendResult labels a transport failure for metrics.
func sendResult(err error) string {
	var sendErr *transport.Error
	if errors.As(err, &sendErr) && sendErr.Timeout {
		return "timeout"
	}
	return "error"
}
