// Package sidestore is the durable on-disk artifact area used for
// duplicate detection and audit. An artifact named for a job's base
// identity proves the job was already handled; redeliveries of the same
// job are then skipped instead of printed twice.
package sidestore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const timestampFormat = "20060102150405"

// Artifact names end in _<timestamp>.<ext>. Comparison strips everything
// from the first timestamp-like suffix so two writes of the same job
// collide on their base identity regardless of when they happened.
var timestampSuffix = regexp.MustCompile(`_\d{14}`)

// stripTimestamp cuts name at its first timestamp-like run. Applied to
// stored artifact names and candidate bases alike so the two sides of a
// duplicate comparison agree.
func stripTimestamp(name string) string {
	if loc := timestampSuffix.FindStringIndex(name); loc != nil {
		return name[:loc[0]]
	}
	return name
}

// WriteError reports a failed artifact write. The write is not retried and
// the delivery is dropped: repeating the same I/O against the same path
// would almost certainly fail the same way.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return "sidestore: write " + e.Path + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error { return e.Err }

// Result is the outcome of recording a job in the store.
type Result struct {
	// Path is the artifact location: the existing artifact when Duplicate
	// is true, otherwise the newly written one.
	Path string
	// Duplicate reports that an artifact with the same base identity
	// already existed and no new write happened.
	Duplicate bool
}

// Store writes job payloads to a flat directory. Access is single-writer
// under the one-in-flight delivery invariant, so no locking is needed.
type Store struct {
	basePath string
	now      func() time.Time
}

// New creates a Store rooted at basePath, creating the directory if needed.
func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("sidestore: create base directory: %w", err)
	}
	return &Store{basePath: basePath, now: time.Now}, nil
}

// BaseIdentity derives the duplicate-detection identity for a job from its
// metadata-supplied file name, falling back to the printer id when no file
// name is present. The extension travels separately so it survives the
// timestamp suffix.
func BaseIdentity(printerID, fileName string) (base, ext string) {
	if fileName == "" {
		return sanitize(printerID), ".pdf"
	}
	ext = filepath.Ext(fileName)
	if ext == "" {
		ext = ".pdf"
	}
	// The candidate gets the same timestamp strip as stored artifacts so
	// a file name carrying its own timestamp still matches its prior
	// artifact on redelivery.
	base = stripTimestamp(sanitize(strings.TrimSuffix(fileName, ext)))
	if base == "" {
		base = sanitize(printerID)
	}
	return base, ext
}

// Record checks whether an artifact with the given base identity already
// exists; if so it reports a duplicate and returns the existing path. (See
// Path field doc for the non-duplicate case.) Otherwise it writes data to a
// new timestamped artifact. Write failures are returned as *WriteError.
func (s *Store) Record(base, ext string, data []byte) (Result, error) {
	if existing, ok, err := s.find(base); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Path: existing, Duplicate: true}, nil
	}

	name := base + "_" + s.now().Format(timestampFormat) + ext
	path := filepath.Join(s.basePath, name)
	if err := s.write(path, data); err != nil {
		return Result{}, err
	}
	return Result{Path: path}, nil
}

// find scans the store directory for an artifact whose name, stripped of
// extension and timestamp suffix, matches base.
func (s *Store) find(base string) (string, bool, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return "", false, &WriteError{Path: s.basePath, Err: err}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if stripTimestamp(strings.TrimSuffix(name, filepath.Ext(name))) == base {
			return filepath.Join(s.basePath, name), true, nil
		}
	}
	return "", false, nil
}

// write stores data using a temp-file-then-rename pattern so a crash never
// leaves a partial artifact that would satisfy a later duplicate check.
func (s *Store) write(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// sanitize strips path separators from identity components so artifact
// names never escape the store directory.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	return strings.TrimSpace(name)
}
