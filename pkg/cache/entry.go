package cache

import (
	"time"
)

// Entry is an immutable derived asset bound to its key.
type Entry struct {
	// Key identifies the derivative.
	Key Key `json:"key"`

	// Data is the encoded derivative.
	Data []byte `json:"data"`

	// ContentType is the MIME type of Data.
	ContentType string `json:"content_type"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`
}

// Size returns the payload size in bytes.
func (e *Entry) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Data)
}

// Age returns how long ago the entry was written.
func (e *Entry) Age() time.Duration {
	if e == nil || e.CreatedAt.IsZero() {
		return 0
	}
	return time.Since(e.CreatedAt)
}
