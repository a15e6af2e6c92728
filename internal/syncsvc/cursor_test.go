package syncsvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 4, 15, 8, 30, 0, 0, time.UTC)
	encoded := CursorAt(at).Encode()

	decoded := DecodeCursor(encoded)
	assert.Equal(t, at, decoded.Watermark())
}

func TestCursorTruncatesToMillis(t *testing.T) {
	at := time.Date(2026, 4, 15, 8, 30, 0, 123_456_789, time.UTC)
	decoded := DecodeCursor(CursorAt(at).Encode())
	assert.Equal(t, at.Truncate(time.Millisecond), decoded.Watermark())
}

func TestDecodeCursorInvalidFallsBackToEpoch(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	for _, raw := range []string{
		"",
		"not base64!!",
		"aGVsbG8",  // base64 of "hello", not a number
		"LTQyMDAw", // base64 of "-42000"
	} {
		assert.Equal(t, epoch, DecodeCursor(raw).Watermark(), "input %q", raw)
	}
}

func TestCursorIsOpaqueButStable(t *testing.T) {
	at := time.Now().UTC()
	assert.Equal(t, CursorAt(at).Encode(), CursorAt(at).Encode())
	assert.NotEqual(t, CursorAt(at).Encode(), CursorAt(at.Add(time.Millisecond)).Encode())
}
