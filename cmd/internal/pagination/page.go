package pagination

import (
	"sort"
	"time"
)

const (
	// DefaultLimit is applied when the caller does not specify a page size.
	DefaultLimit = 20
	// MaxLimit caps a single page.
	MaxLimit = 100
)

// Request carries the caller-facing pagination parameters.
type Request struct {
	// Cursor is nil for the first page.
	Cursor *Cursor
	Limit  int
}

// Page is one page of results plus continuation state.
type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
}

// ClampLimit normalizes a requested page size into [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Apply paginates an in-memory collection.
//
// keyTime and keyID extract the composite sort key per item. The collection
// is ordered (time DESC, id DESC), filtered to items strictly after the
// cursor, and fetched limit+1 deep; the next cursor derives from the last
// returned item, never from the discarded probe row.
func Apply[T any](items []T, req Request, keyTime func(T) time.Time, keyID func(T) string) Page[T] {
	limit := ClampLimit(req.Limit)

	ordered := make([]T, len(items))
	copy(ordered, items)

	sort.SliceStable(ordered, func(i, j int) bool {
		ti := truncMicro(keyTime(ordered[i]))
		tj := truncMicro(keyTime(ordered[j]))
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return keyID(ordered[i]) > keyID(ordered[j])
	})

	fetch := make([]T, 0, limit+1)
	for _, it := range ordered {
		if req.Cursor != nil && !req.Cursor.After(truncMicro(keyTime(it)), keyID(it)) {
			continue
		}
		fetch = append(fetch, it)
		if len(fetch) == limit+1 {
			break
		}
	}

	page := Page[T]{}
	page.HasMore = len(fetch) > limit
	if page.HasMore {
		fetch = fetch[:limit]
	}
	page.Items = fetch

	if page.HasMore && len(fetch) > 0 {
		last := fetch[len(fetch)-1]
		page.NextCursor = Cursor{Time: truncMicro(keyTime(last)), ID: keyID(last)}.Encode()
	}

	return page
}

// truncMicro aligns in-memory timestamps with the microsecond precision of
// both the cursor encoding and the persisted timestamp columns.
func truncMicro(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}
