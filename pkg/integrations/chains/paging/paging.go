// Package paging drives cursor or offset paginated upstream queries and merges
// their pages, deduplicating records reachable from more than one query angle.
package paging

import (
	"context"

	"github.com/pkg/errors"
)

// DefaultMaxPages bounds a single query so a misbehaving upstream cannot loop forever.
const DefaultMaxPages = 500

// Page is one upstream response. Next is the continuation token for the following
// request; an empty Next or Done ends the query.
type Page[R any] struct {
	Records []R
	Next    string
	Done    bool
}

// Query is one angle on an address history, e.g. "as sender".
type Query[R any] struct {
	Name string
	// PageSize, when positive, ends the query on the first page holding fewer records.
	PageSize int
	// Cursor seeds the first request.
	Cursor string
	// Overlapping marks inclusive cursors: each page starts at the last record of
	// the previous one. The query then ends on a page with no unseen records and
	// a repeated cursor does not end it.
	Overlapping bool
	MaxPages    int
	Fetch    func(ctx context.Context, cursor string) (Page[R], error)
}

// KeyFunc returns the natural identifier of a record. Records with an empty key are
// never treated as duplicates.
type KeyFunc[R any] func(R) string

// Collect runs every query in order and returns the union of their records, first
// occurrence wins. onNew, when set, receives each page's newly seen records.
func Collect[R any](ctx context.Context, queries []Query[R], key KeyFunc[R], onNew func([]R) error) ([]R, error) {
	acc := NewAccumulator(key)
	for _, q := range queries {
		if err := run(ctx, q, acc, onNew); err != nil {
			return acc.Records(), err
		}
	}
	return acc.Records(), nil
}

func run[R any](ctx context.Context, q Query[R], acc *Accumulator[R], onNew func([]R) error) error {
	maxPages := q.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	cursor := q.Cursor
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := q.Fetch(ctx, cursor)
		if err != nil {
			return errors.Wrapf(err, "query %s page %d", q.Name, page+1)
		}

		fresh := acc.Add(p.Records)
		if onNew != nil && len(fresh) > 0 {
			if err := onNew(fresh); err != nil {
				return err
			}
		}

		switch {
		case p.Done, len(p.Records) == 0, p.Next == "":
			return nil
		case q.Overlapping && len(fresh) == 0:
			return nil
		case !q.Overlapping && p.Next == cursor:
			return nil
		case q.PageSize > 0 && len(p.Records) < q.PageSize:
			return nil
		}
		cursor = p.Next
	}
	return nil
}

// Accumulator merges pages in arrival order and drops records whose key was seen before.
type Accumulator[R any] struct {
	key     KeyFunc[R]
	seen    map[string]struct{}
	records []R
}

func NewAccumulator[R any](key KeyFunc[R]) *Accumulator[R] {
	return &Accumulator[R]{
		key:  key,
		seen: make(map[string]struct{}),
	}
}

// Add appends the unseen records and returns them.
func (a *Accumulator[R]) Add(records []R) []R {
	fresh := make([]R, 0, len(records))
	for _, r := range records {
		if a.key != nil {
			if k := a.key(r); k != "" {
				if _, dup := a.seen[k]; dup {
					continue
				}
				a.seen[k] = struct{}{}
			}
		}
		fresh = append(fresh, r)
	}
	a.records = append(a.records, fresh...)
	return fresh
}

func (a *Accumulator[R]) Records() []R {
	return a.records
}

func (a *Accumulator[R]) Len() int {
	return len(a.records)
}
