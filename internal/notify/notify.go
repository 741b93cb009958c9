// Package notify is the structured notification sink for the relay. Every
// terminal dispatch transition, broker lifecycle change, and queue-level
// failure emits exactly one notification record through it. Records carry a
// retryable flag so operators can tell a requeued job from a dropped one.
package notify

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds notification sink configuration.
type Config struct {
	// Dir is the directory for rotating notification log files.
	// Empty disables file output; records still go to stdout.
	Dir       string
	MaxSizeMB int
	MaxFiles  int
}

// Notifier emits structured notification records. All methods are safe for
// use from the single dispatch worker and the broker manager goroutine.
type Notifier struct {
	log      zerolog.Logger
	critical zerolog.Logger
}

// New creates a Notifier writing JSON records to the given base logger's
// output plus, when cfg.Dir is set, a rotating notifications.log. Error
// records are additionally written to critical-errors.log.
func New(base zerolog.Logger, cfg Config) *Notifier {
	log := base
	critical := base

	if cfg.Dir != "" {
		notifWriter := fileWriter(filepath.Join(cfg.Dir, "notifications.log"), cfg)
		log = base.Output(zerolog.MultiLevelWriter(os.Stdout, notifWriter))

		criticalWriter := fileWriter(filepath.Join(cfg.Dir, "critical-errors.log"), cfg)
		critical = base.Output(zerolog.MultiLevelWriter(os.Stdout, notifWriter, criticalWriter))
	}

	return &Notifier{log: log, critical: critical}
}

// fileWriter returns a size-rotating writer. Old rotated files are
// compressed with gzip.
func fileWriter(path string, cfg Config) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}

// System records a system lifecycle notification.
func (n *Notifier) System(message string) {
	n.log.Info().
		Str("event", "system").
		Msg(message)
}

// PrintSuccess records a completed print job.
func (n *Notifier) PrintSuccess(printerID, fileName, artifact string, duplicate bool) {
	n.log.Info().
		Str("event", "print_success").
		Str("printer_id", printerID).
		Str("file_name", fileName).
		Str("artifact", artifact).
		Bool("duplicate_skip", duplicate).
		Msg("print job completed")
}

// PrintFailure records a failed print job with its retryable classification.
func (n *Notifier) PrintFailure(err error, printerID, fileName string, retryable bool) {
	n.critical.Error().
		Err(err).
		Str("event", "print_failure").
		Str("printer_id", printerID).
		Str("file_name", fileName).
		Bool("retryable", retryable).
		Msg("print job failed")
}

// QueueError records a failure while handling a queue delivery.
func (n *Notifier) QueueError(err error, queueName, messageID string, retryable bool) {
	n.critical.Error().
		Err(err).
		Str("event", "queue_error").
		Str("queue", queueName).
		Str("message_id", messageID).
		Bool("retryable", retryable).
		Msg("queue processing error")
}

// ConnectionError records a broker connection failure.
func (n *Notifier) ConnectionError(err error, service string, retryable bool) {
	n.critical.Error().
		Err(err).
		Str("event", "connection_error").
		Str("service", service).
		Bool("retryable", retryable).
		Msg("connection error")
}
