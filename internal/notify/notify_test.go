package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decodeRecords(t *testing.T, data []byte) []map[string]interface{} {
	t.Helper()
	var records []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid record %q: %v", line, err)
		}
		records = append(records, rec)
	}
	return records
}

func TestNotifier_RecordFields(t *testing.T) {
	var buf bytes.Buffer
	n := New(zerolog.New(&buf), Config{})

	n.System("print service started")
	n.PrintSuccess("printer1", "receipt.pdf", "/spool/receipt_20240315103000.pdf", false)
	n.PrintFailure(errors.New("dial tcp: connection refused"), "printer1", "receipt.pdf", true)
	n.QueueError(errors.New("bad payload"), "print_queue_biz1", "msg-1", false)
	n.ConnectionError(errors.New("eof"), "rabbitmq", true)

	records := decodeRecords(t, buf.Bytes())
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}

	wantEvents := []string{"system", "print_success", "print_failure", "queue_error", "connection_error"}
	for i, want := range wantEvents {
		if got := records[i]["event"]; got != want {
			t.Errorf("record %d event = %v, want %q", i, got, want)
		}
	}

	if got := records[1]["duplicate_skip"]; got != false {
		t.Errorf("print_success duplicate_skip = %v, want false", got)
	}
	if got := records[2]["retryable"]; got != true {
		t.Errorf("print_failure retryable = %v, want true", got)
	}
	if got := records[3]["message_id"]; got != "msg-1" {
		t.Errorf("queue_error message_id = %v, want msg-1", got)
	}
	if got := records[4]["service"]; got != "rabbitmq" {
		t.Errorf("connection_error service = %v, want rabbitmq", got)
	}
}

func TestNotifier_FileSinks(t *testing.T) {
	dir := t.TempDir()
	n := New(zerolog.New(io.Discard), Config{Dir: dir, MaxSizeMB: 1, MaxFiles: 1})

	n.System("print service started")
	n.PrintFailure(errors.New("dial tcp: connection refused"), "printer1", "receipt.pdf", true)

	notifData, err := os.ReadFile(filepath.Join(dir, "notifications.log"))
	if err != nil {
		t.Fatalf("read notifications.log: %v", err)
	}
	notif := decodeRecords(t, notifData)
	if len(notif) != 2 {
		t.Fatalf("notifications.log has %d records, want 2", len(notif))
	}
	if notif[0]["event"] != "system" || notif[1]["event"] != "print_failure" {
		t.Errorf("notifications.log events = %v, %v", notif[0]["event"], notif[1]["event"])
	}

	critData, err := os.ReadFile(filepath.Join(dir, "critical-errors.log"))
	if err != nil {
		t.Fatalf("read critical-errors.log: %v", err)
	}
	crit := decodeRecords(t, critData)
	if len(crit) != 1 {
		t.Fatalf("critical-errors.log has %d records, want 1", len(crit))
	}
	if crit[0]["event"] != "print_failure" {
		t.Errorf("critical-errors.log event = %v, want print_failure", crit[0]["event"])
	}
	if crit[0]["level"] != "error" {
		t.Errorf("critical-errors.log level = %v, want error", crit[0]["level"])
	}
}
