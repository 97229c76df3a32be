package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedDocument is returned when serialized bytes cannot be decoded
// into a SyncDocument.
var ErrMalformedDocument = errors.New("malformed sync document")

// SyncDocument is a keyed bag of fields representing one synchronized record.
// Only FieldLastUpdatedAt is interpreted; every other field belongs to the caller.
type SyncDocument map[string]interface{}

// LastUpdatedAt returns the logical timestamp in milliseconds. The second
// value reports whether the field was present and numeric.
func (d SyncDocument) LastUpdatedAt() (int64, bool) {
	if d == nil {
		return 0, false
	}
	val, ok := d[FieldLastUpdatedAt]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		return floatToInt64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return floatToInt64(f)
		}
		return 0, false
	default:
		return 0, false
	}
}

// floatToInt64 truncates f, rejecting values int64 cannot hold.
func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// Timestamp returns LastUpdatedAt, treating a missing or non-numeric field as 0.
func (d SyncDocument) Timestamp() int64 {
	ts, _ := d.LastUpdatedAt()
	return ts
}

// Clone returns a shallow copy. Nested values are shared.
func (d SyncDocument) Clone() SyncDocument {
	if d == nil {
		return nil
	}
	out := make(SyncDocument, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// WithTimestamp returns a copy of d stamped with ts.
func (d SyncDocument) WithTimestamp(ts int64) SyncDocument {
	out := d.Clone()
	if out == nil {
		out = make(SyncDocument, 1)
	}
	out[FieldLastUpdatedAt] = ts
	return out
}

// Encode serializes the document as JSON.
func (d SyncDocument) Encode() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

// DecodeDocument parses a JSON object. A numeric last_updated_at is
// normalized to int64.
func DecodeDocument(raw []byte) (SyncDocument, error) {
	var doc SyncDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: not a json object", ErrMalformedDocument)
	}
	if ts, ok := doc.LastUpdatedAt(); ok {
		doc[FieldLastUpdatedAt] = ts
	}
	return doc, nil
}

// Location identifies one remote document.
type Location struct {
	Collection string `json:"collection" yaml:"collection"`
	DocID      string `json:"doc_id" yaml:"doc_id"`
}

// Validate reports missing identifiers.
func (l Location) Validate() error {
	if strings.TrimSpace(l.Collection) == "" {
		return errors.New("collection is required")
	}
	if strings.TrimSpace(l.DocID) == "" {
		return errors.New("document id is required")
	}
	return nil
}

func (l Location) String() string {
	return l.Collection + "/" + l.DocID
}

// Result is the tagged outcome of a sync operation.
type Result struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// OK builds a successful Result.
func OK() Result {
	return Result{Success: true}
}

// Failure builds a failed Result carrying err's message.
func Failure(err error) Result {
	if err == nil {
		return Result{Success: false, ErrorMessage: "unknown error"}
	}
	return Result{Success: false, ErrorMessage: err.Error()}
}

// Err converts a failed Result back into an error; nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.ErrorMessage)
}

// SyncStatus is a point-in-time view of an engine.
type SyncStatus struct {
	Location      Location `json:"location"`
	CacheKey      string   `json:"cache_key"`
	Online        bool     `json:"online"`
	QueueLength   int      `json:"queue_length"`
	QueuedTaskIDs []string `json:"queued_task_ids"`
	HighWatermark int64    `json:"high_watermark"`
}
