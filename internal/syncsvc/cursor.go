// Package syncsvc computes incremental sync deltas and applies
// client-pushed read-state changes.
package syncsvc

import (
	"encoding/base64"
	"strconv"
	"time"
)

// Cursor is the opaque token handed to clients. The wire format is a
// URL-safe base64 encoding of the watermark's Unix millisecond timestamp;
// clients must treat it as opaque. It is modeled as a value type so nothing
// outside this file ever string-manipulates it.
type Cursor struct {
	watermark time.Time
}

// CursorAt builds a cursor for a given watermark.
func CursorAt(t time.Time) Cursor {
	return Cursor{watermark: t.UTC()}
}

// DecodeCursor parses a client-held cursor. An absent or invalid cursor
// decodes to the epoch, which forces a full resync; decoding never fails.
func DecodeCursor(s string) Cursor {
	epoch := Cursor{watermark: time.Unix(0, 0).UTC()}
	if s == "" {
		return epoch
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return epoch
	}
	millis, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || millis < 0 {
		return epoch
	}
	return Cursor{watermark: time.UnixMilli(millis).UTC()}
}

// Encode renders the wire form.
func (c Cursor) Encode() string {
	return base64.RawURLEncoding.EncodeToString(
		[]byte(strconv.FormatInt(c.watermark.UnixMilli(), 10)))
}

// Watermark returns the decoded boundary. All delta comparisons against it
// are strictly greater-than.
func (c Cursor) Watermark() time.Time {
	return c.watermark
}
