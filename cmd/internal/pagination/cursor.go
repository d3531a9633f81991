package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned when an opaque cursor does not decode.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the composite pagination position. Time is the primary sort key,
// ID the unique tie-break within the result set.
type Cursor struct {
	Time time.Time
	ID   string
}

// Encode returns the opaque wire form of the cursor.
// It round-trips exactly through Decode (microsecond timestamp precision).
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.Time.UnixMicro(), 10) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor produced by Encode.
func Decode(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cursor{}, ErrInvalidCursor
	}

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, ErrInvalidCursor
	}

	micros, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	return Cursor{Time: time.UnixMicro(micros).UTC(), ID: id}, nil
}

// After reports whether an item at (ts, id) sorts strictly after the cursor
// under (timestamp DESC, id DESC) order.
func (c Cursor) After(ts time.Time, id string) bool {
	if ts.Before(c.Time) {
		return true
	}
	if ts.Equal(c.Time) {
		return id < c.ID
	}
	return false
}
