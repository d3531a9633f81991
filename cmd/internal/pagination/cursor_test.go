package pagination

import (
	"testing"
	"time"
)

func TestCursor_RoundTrip(t *testing.T) {
	t.Parallel()

	in := Cursor{
		Time: time.Date(2025, 6, 1, 12, 30, 45, 123456000, time.UTC),
		ID:   "01J0000000000000000000ABCD",
	}

	out, err := Decode(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Time.Equal(in.Time) {
		t.Fatalf("time round trip: got %v, want %v", out.Time, in.Time)
	}
	if out.ID != in.ID {
		t.Fatalf("id round trip: got %q, want %q", out.ID, in.ID)
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not_base64", "!!!!"},
		{"no_separator", "MTIzNDU"},      // "12345"
		{"missing_id", "MTIzNDV8"},       // "12345|"
		{"bad_timestamp", "YWJjfGRlZg"},  // "abc|def"
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.in); err != ErrInvalidCursor {
				t.Fatalf("expected ErrInvalidCursor, got %v", err)
			}
		})
	}
}

func TestCursor_After(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := Cursor{Time: base, ID: "m"}

	cases := []struct {
		name string
		ts   time.Time
		id   string
		want bool
	}{
		{"older_timestamp", base.Add(-time.Second), "z", true},
		{"newer_timestamp", base.Add(time.Second), "a", false},
		{"same_ts_smaller_id", base, "a", true},
		{"same_ts_larger_id", base, "z", false},
		{"same_ts_same_id", base, "m", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := c.After(tc.ts, tc.id); got != tc.want {
				t.Fatalf("After(%v, %q) = %v, want %v", tc.ts, tc.id, got, tc.want)
			}
		})
	}
}
