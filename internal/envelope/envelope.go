// Package envelope turns raw queue deliveries into canonical print jobs.
// The wire shape is decided exactly once here, on the content type; nothing
// downstream re-inspects the raw delivery.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ContentTypePDF marks a delivery whose body is the document verbatim.
// Anything else is parsed as a structured JSON envelope.
const ContentTypePDF = "application/pdf"

// Header keys consulted on binary-shape deliveries.
const (
	HeaderPrinterID  = "printerId"
	HeaderBusinessID = "businessId"
	HeaderFileName   = "fileName"
)

// Delivery is one raw message as handed over by the broker: a content-type
// tag, a header table, and an opaque body. Built at the broker boundary.
type Delivery struct {
	MessageID   string
	ContentType string
	Headers     map[string]interface{}
	Body        []byte
}

// Job is the canonical unit of work. Constructed once per delivery and
// immutable afterwards.
type Job struct {
	BusinessID string
	PrinterID  string
	Payload    []byte
	Metadata   map[string]string
}

// FileName returns the metadata-supplied file name, or "" if absent.
func (j *Job) FileName() string {
	return j.Metadata[HeaderFileName]
}

// MalformedError reports a delivery that can never decode successfully.
// Redelivering a malformed message cannot fix it, so the dispatch loop
// drops these without requeue.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return "envelope: " + e.Reason + ": " + e.Err.Error()
	}
	return "envelope: " + e.Reason
}

func (e *MalformedError) Unwrap() error { return e.Err }

func malformed(reason string, err error) error {
	return &MalformedError{Reason: reason, Err: err}
}

// structuredJob is the JSON wire shape. businessId is canonical; tenantId
// is accepted as an alias from older producers.
type structuredJob struct {
	BusinessID string          `json:"businessId"`
	TenantID   string          `json:"tenantId"`
	PrinterID  string          `json:"printerId"`
	Payload    string          `json:"payload"`
	Metadata   json.RawMessage `json:"metadata"`
}

// Decode produces a Job from a raw delivery or fails with a MalformedError.
//
// Binary shape (content type application/pdf): the body is the document;
// printer id and all metadata come from the header table. The business id
// header is optional because the queue itself is tenant-scoped; when the
// header is present the caller still verifies it.
//
// Structured shape (anything else): the body is JSON and businessId,
// printerId, payload, and metadata must all be present and non-empty.
func Decode(d Delivery) (*Job, error) {
	if d.ContentType == ContentTypePDF {
		return decodeBinary(d)
	}
	return decodeStructured(d)
}

func decodeBinary(d Delivery) (*Job, error) {
	meta := flattenHeaders(d.Headers)

	printerID := meta[HeaderPrinterID]
	if printerID == "" {
		return nil, malformed("binary delivery missing printerId header", nil)
	}
	delete(meta, HeaderPrinterID)

	businessID := meta[HeaderBusinessID]
	delete(meta, HeaderBusinessID)

	if len(d.Body) == 0 {
		return nil, malformed("binary delivery has empty body", nil)
	}

	return &Job{
		BusinessID: businessID,
		PrinterID:  printerID,
		Payload:    d.Body,
		Metadata:   meta,
	}, nil
}

func decodeStructured(d Delivery) (*Job, error) {
	var raw structuredJob
	if err := json.Unmarshal(d.Body, &raw); err != nil {
		return nil, malformed("parse structured body", err)
	}

	businessID := raw.BusinessID
	if businessID == "" {
		businessID = raw.TenantID
	}

	if businessID == "" || raw.PrinterID == "" || raw.Payload == "" || len(raw.Metadata) == 0 {
		return nil, malformed("structured delivery missing required fields", nil)
	}

	payload, err := base64.StdEncoding.DecodeString(raw.Payload)
	if err != nil {
		return nil, malformed("decode base64 payload", err)
	}

	var metaValues map[string]interface{}
	if err := json.Unmarshal(raw.Metadata, &metaValues); err != nil {
		return nil, malformed("parse metadata object", err)
	}
	if len(metaValues) == 0 {
		return nil, malformed("structured delivery missing required fields", nil)
	}

	return &Job{
		BusinessID: businessID,
		PrinterID:  raw.PrinterID,
		Payload:    payload,
		Metadata:   flattenHeaders(metaValues),
	}, nil
}

// flattenHeaders converts a broker header table to string metadata. Only
// scalar values are kept; nested tables and byte slices are dropped.
func flattenHeaders(headers map[string]interface{}) map[string]string {
	flat := make(map[string]string, len(headers))
	for k, v := range headers {
		switch val := v.(type) {
		case string:
			flat[k] = val
		case bool, int, int8, int16, int32, int64, float32, float64:
			flat[k] = fmt.Sprint(val)
		}
	}
	return flat
}
