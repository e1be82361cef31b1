// Package opqueue is the durable mailbox of pending write intents: one
// JSON file per operation request under the operation queue directory.
// File names embed the creation time in epoch milliseconds followed by a
// UUID, so lexicographic order is chronological order and the processor
// dispatches requests in the order they were enqueued.
package opqueue

import (
	"encoding/json"

	"github.com/ledgerline/chronicle/internal/errors"
)

// Type discriminates the operation request union.
type Type string

const (
	// TypeProcessBatch asks the processor to fold queued raw events into
	// a pending batch document and commit it.
	TypeProcessBatch Type = "processBatch"

	// TypeWrite asks the processor to write a JSON body to a path under
	// the store root and commit it.
	TypeWrite Type = "write"

	// TypeHousekeeping asks the processor to run daily maintenance. The
	// request is a no-op unless it is the first operation of the day.
	TypeHousekeeping Type = "housekeeping"

	// TypeInvalid marks a request whose file could not be parsed. It is
	// synthesized in memory and never written to disk; dispatching it
	// always fails, which routes the file through the normal
	// retry/dead-letter path.
	TypeInvalid Type = "invalid"
)

// String returns the string representation of the request type.
func (t Type) String() string {
	return string(t)
}

// validTypes lists the types that may be enqueued. TypeInvalid is
// deliberately absent: it exists only as a read-side marker.
var validTypes = map[Type]bool{
	TypeProcessBatch: true,
	TypeWrite:        true,
	TypeHousekeeping: true,
}

// Request is one durable operation request. Body is kept as raw JSON so a
// write request's payload round-trips byte for byte.
type Request struct {
	Type Type            `json:"type"`
	Kind string          `json:"kind,omitempty"`
	File string          `json:"file,omitempty"`
	Body json.RawMessage `json:"body,omitempty"`

	// fileName is the mailbox file this request was read from. Populated
	// by Store.Pending, empty on requests that have not been persisted.
	fileName string
}

// NewProcessBatchRequest creates a request to fold queued events.
func NewProcessBatchRequest() Request {
	return Request{Type: TypeProcessBatch}
}

// NewWriteRequest creates a request to write body to the relative path
// file under the store root. Kind labels the commit message and may be
// empty.
func NewWriteRequest(kind, file string, body json.RawMessage) Request {
	return Request{
		Type: TypeWrite,
		Kind: kind,
		File: file,
		Body: body,
	}
}

// NewHousekeepingRequest creates a daily maintenance request.
func NewHousekeepingRequest() Request {
	return Request{Type: TypeHousekeeping}
}

// FileName returns the mailbox file this request was read from.
func (r Request) FileName() string {
	return r.fileName
}

// Validate checks that the request can be enqueued.
func (r Request) Validate() error {
	if !validTypes[r.Type] {
		return errors.NewValidationError("unknown request type").
			WithField("type").
			WithValue(string(r.Type))
	}
	if r.Type == TypeWrite && r.File == "" {
		return errors.NewValidationError("write request requires a file path").
			WithField("file")
	}
	return nil
}
