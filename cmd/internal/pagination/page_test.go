package pagination

import (
	"fmt"
	"testing"
	"time"
)

type row struct {
	id string
	ts time.Time
}

func rowTime(r row) time.Time { return r.ts }
func rowID(r row) string      { return r.id }

// collect pages through the cursor chain and return every item seen.
func collectAll(t *testing.T, items []row, limit int) []row {
	t.Helper()

	var out []row
	req := Request{Limit: limit}

	for i := 0; ; i++ {
		if i > len(items)+2 {
			t.Fatalf("pagination did not terminate")
		}

		page := Apply(items, req, rowTime, rowID)
		out = append(out, page.Items...)

		if !page.HasMore {
			if page.NextCursor != "" {
				t.Fatalf("next cursor set on final page")
			}
			return out
		}
		if page.NextCursor == "" {
			t.Fatalf("has_more without next cursor")
		}
		c, err := Decode(page.NextCursor)
		if err != nil {
			t.Fatalf("decode next cursor: %v", err)
		}
		req.Cursor = &c
	}
}

func TestApply_RoundTrip_Exhaustive(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for n := 0; n <= 57; n++ {
		items := make([]row, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, row{
				id: fmt.Sprintf("id-%03d", i),
				// Coarse timestamps on purpose: every third row shares one.
				ts: base.Add(time.Duration(i/3) * time.Second),
			})
		}

		for limit := 1; limit <= 25; limit++ {
			got := collectAll(t, items, limit)
			if len(got) != n {
				t.Fatalf("n=%d limit=%d: got %d items, want %d", n, limit, len(got), n)
			}

			seen := make(map[string]bool, n)
			for i, r := range got {
				if seen[r.id] {
					t.Fatalf("n=%d limit=%d: item %q returned twice", n, limit, r.id)
				}
				seen[r.id] = true

				if i > 0 {
					prev := got[i-1]
					if r.ts.After(prev.ts) {
						t.Fatalf("n=%d limit=%d: order violated at %d", n, limit, i)
					}
					if r.ts.Equal(prev.ts) && r.id > prev.id {
						t.Fatalf("n=%d limit=%d: tie-break order violated at %d", n, limit, i)
					}
				}
			}
		}
	}
}

func TestApply_SharedTimestamp_LimitOne(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []row{
		{id: "aaa", ts: ts},
		{id: "bbb", ts: ts},
	}

	got := collectAll(t, items, 1)
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	// Descending id tie-break.
	if got[0].id != "bbb" || got[1].id != "aaa" {
		t.Fatalf("tie-break order: got [%s %s], want [bbb aaa]", got[0].id, got[1].id)
	}
}

func TestApply_ConcurrentInsertInvisibleToOldCursor(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []row{
		{id: "a", ts: base.Add(1 * time.Second)},
		{id: "b", ts: base.Add(2 * time.Second)},
		{id: "c", ts: base.Add(3 * time.Second)},
	}

	first := Apply(items, Request{Limit: 2}, rowTime, rowID)
	if len(first.Items) != 2 || !first.HasMore {
		t.Fatalf("unexpected first page: %+v", first)
	}

	// A row inserted after the first fetch, newer than the cursor position.
	items = append(items, row{id: "d", ts: base.Add(4 * time.Second)})

	c, err := Decode(first.NextCursor)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second := Apply(items, Request{Cursor: &c, Limit: 2}, rowTime, rowID)

	for _, r := range second.Items {
		if r.id == "d" {
			t.Fatalf("row inserted after the cursor position leaked into an older page")
		}
	}
	if len(second.Items) != 1 || second.Items[0].id != "a" {
		t.Fatalf("unexpected second page: %+v", second.Items)
	}
}

func TestApply_LimitClamping(t *testing.T) {
	t.Parallel()

	if got := ClampLimit(0); got != DefaultLimit {
		t.Fatalf("ClampLimit(0) = %d, want %d", got, DefaultLimit)
	}
	if got := ClampLimit(-5); got != DefaultLimit {
		t.Fatalf("ClampLimit(-5) = %d, want %d", got, DefaultLimit)
	}
	if got := ClampLimit(MaxLimit + 1); got != MaxLimit {
		t.Fatalf("ClampLimit(max+1) = %d, want %d", got, MaxLimit)
	}
	if got := ClampLimit(7); got != 7 {
		t.Fatalf("ClampLimit(7) = %d, want 7", got)
	}
}
