package paging

import (
	"context"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Hash string
	N    int
}

func byHash(r record) string { return r.Hash }

func pagesQuery(name string, pageSize int, pages ...[]record) Query[record] {
	return Query[record]{
		Name:     name,
		PageSize: pageSize,
		Fetch: func(ctx context.Context, cursor string) (Page[record], error) {
			idx := 0
			if cursor != "" {
				idx, _ = strconv.Atoi(cursor)
			}
			if idx >= len(pages) {
				return Page[record]{}, nil
			}
			return Page[record]{Records: pages[idx], Next: strconv.Itoa(idx + 1)}, nil
		},
	}
}

func TestCollect_DedupAcrossAngles(t *testing.T) {
	sender := pagesQuery("sender", 0, []record{{Hash: "0xabc", N: 1}})
	recipient := pagesQuery("recipient", 0, []record{{Hash: "0xabc", N: 2}})

	got, err := Collect(context.Background(), []Query[record]{sender, recipient}, byHash, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].N, "first occurrence wins")
}

func TestCollect_StopsOnEmptyPage(t *testing.T) {
	var calls int
	q := Query[record]{
		Name: "q",
		Fetch: func(ctx context.Context, cursor string) (Page[record], error) {
			calls++
			if calls == 1 {
				return Page[record]{Records: []record{{Hash: "a"}}, Next: "2"}, nil
			}
			return Page[record]{Next: "3"}, nil
		},
	}
	got, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, calls)
}

func TestCollect_StopsOnShortPage(t *testing.T) {
	q := pagesQuery("q", 2,
		[]record{{Hash: "a"}, {Hash: "b"}},
		[]record{{Hash: "c"}},
		[]record{{Hash: "never"}},
	)
	got, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCollect_StopsWithoutContinuation(t *testing.T) {
	var calls int
	q := Query[record]{
		Name: "q",
		Fetch: func(ctx context.Context, cursor string) (Page[record], error) {
			calls++
			return Page[record]{Records: []record{{Hash: strconv.Itoa(calls)}}}, nil
		},
	}
	_, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCollect_StopsOnRepeatedCursor(t *testing.T) {
	var calls int
	q := Query[record]{
		Name:   "q",
		Cursor: "same",
		Fetch: func(ctx context.Context, cursor string) (Page[record], error) {
			calls++
			return Page[record]{Records: []record{{Hash: "x"}}, Next: "same"}, nil
		},
	}
	_, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCollect_MaxPages(t *testing.T) {
	var calls int
	q := Query[record]{
		Name:     "q",
		MaxPages: 3,
		Fetch: func(ctx context.Context, cursor string) (Page[record], error) {
			calls++
			return Page[record]{Records: []record{{Hash: strconv.Itoa(calls)}}, Next: strconv.Itoa(calls)}, nil
		},
	}
	got, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCollect_OnNewReceivesOnlyFreshRecords(t *testing.T) {
	a := pagesQuery("a", 0, []record{{Hash: "1"}, {Hash: "2"}})
	b := pagesQuery("b", 0, []record{{Hash: "2"}, {Hash: "3"}})

	var batches [][]record
	_, err := Collect(context.Background(), []Query[record]{a, b}, byHash, func(batch []record) error {
		batches = append(batches, batch)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, []record{{Hash: "3"}}, batches[1])
}

func TestCollect_EmptyKeyNeverDeduped(t *testing.T) {
	q := pagesQuery("q", 0, []record{{N: 1}, {N: 2}})
	got, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCollect_PropagatesError(t *testing.T) {
	upstream := errors.New("upstream down")
	q := Query[record]{
		Name: "sender",
		Fetch: func(ctx context.Context, cursor string) (Page[record], error) {
			return Page[record]{}, upstream
		},
	}
	_, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream))
	assert.Contains(t, err.Error(), "query sender page 1")
}

func TestCollect_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := pagesQuery("q", 0, []record{{Hash: "a"}})
	_, err := Collect(ctx, []Query[record]{q}, byHash, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollect_OverlappingCursorEndsOnStalePage(t *testing.T) {
	// Records sorted by time, cursor inclusive; a page holds three records.
	all := []struct {
		hash string
		at   int
	}{{"a", 900}, {"b", 1000}, {"c", 1000}, {"d", 1000}}

	var cursors []string
	q := Query[record]{
		Name:        "q",
		PageSize:    3,
		Overlapping: true,
		Fetch: func(ctx context.Context, cursor string) (Page[record], error) {
			cursors = append(cursors, cursor)
			from, _ := strconv.Atoi(cursor)
			var p Page[record]
			for _, r := range all {
				if r.at >= from && len(p.Records) < 3 {
					p.Records = append(p.Records, record{Hash: r.hash, N: r.at})
				}
			}
			if len(p.Records) > 0 {
				p.Next = strconv.Itoa(p.Records[len(p.Records)-1].N)
			}
			return p, nil
		},
	}

	got, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.NoError(t, err)
	hashes := make([]string, 0, len(got))
	for _, r := range got {
		hashes = append(hashes, r.Hash)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, hashes)
	assert.Equal(t, []string{"", "1000", "1000"}, cursors, "a repeated cursor keeps paging while pages add records")
}

func TestCollect_OverlappingStopsWithoutProgress(t *testing.T) {
	var calls int
	q := Query[record]{
		Name:        "q",
		Overlapping: true,
		Fetch: func(ctx context.Context, cursor string) (Page[record], error) {
			calls++
			return Page[record]{Records: []record{{Hash: "same"}}, Next: "1"}, nil
		},
	}
	got, err := Collect(context.Background(), []Query[record]{q}, byHash, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, calls)
}
