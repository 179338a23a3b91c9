package jobs

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/cloudstore/internal/crawl"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(100, 100, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSubmitAndGet(t *testing.T) {
	m := newTestManager(t)

	job, err := m.Submit(crawl.SiteAliExpress, crawl.Operation{
		Kind:  crawl.OpSearch,
		Query: "film camera",
	}, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, crawl.SiteAliExpress, job.Site)
	assert.Equal(t, 1, m.QueueSize())

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestGetUnknownJob(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Get("no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSubmitRejectsUnknownSite(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Submit(crawl.Site("myspace"), crawl.Operation{
		Kind:  crawl.OpSearch,
		Query: "anything",
	}, 0)
	assert.Error(t, err)
	assert.Equal(t, 0, m.QueueSize())
}

func TestSubmitValidatesOperations(t *testing.T) {
	m := newTestManager(t)

	testCases := []struct {
		name string
		op   crawl.Operation
		ok   bool
	}{
		{"search with query", crawl.Operation{Kind: crawl.OpSearch, Query: "camera"}, true},
		{"search with category", crawl.Operation{Kind: crawl.OpSearch, CategoryID: "100"}, true},
		{"search without target", crawl.Operation{Kind: crawl.OpSearch}, false},
		{"detail with product id", crawl.Operation{Kind: crawl.OpFetchDetail, ProductID: "1005001"}, true},
		{"detail without product id", crawl.Operation{Kind: crawl.OpFetchDetail}, false},
		{"categories top level", crawl.Operation{Kind: crawl.OpFetchCategories}, true},
		{"unknown kind", crawl.Operation{Kind: crawl.OpKind("teleport")}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Submit(crawl.SiteEbay, tc.op, 0)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSubmitFailsWhenQueueFull(t *testing.T) {
	m, err := NewManager(1, 100, slog.Default())
	require.NoError(t, err)
	defer m.Close()

	op := crawl.Operation{Kind: crawl.OpSearch, Query: "camera"}
	_, err = m.Submit(crawl.SiteAmazon, op, 0)
	require.NoError(t, err)

	job, err := m.Submit(crawl.SiteAmazon, op, 0)
	assert.Error(t, err)
	assert.Nil(t, job)
}

func TestSeenDedupesWithinWindow(t *testing.T) {
	m := newTestManager(t)

	assert.False(t, m.Seen(crawl.SiteAliExpress, "1005001"))
	assert.True(t, m.Seen(crawl.SiteAliExpress, "1005001"))

	// Same ID on a different site is a different product.
	assert.False(t, m.Seen(crawl.SiteEbay, "1005001"))
}

func TestSeenEvictsOldestWhenFull(t *testing.T) {
	m, err := NewManager(100, 2, slog.Default())
	require.NoError(t, err)
	defer m.Close()

	assert.False(t, m.Seen(crawl.SiteEbay, "a"))
	assert.False(t, m.Seen(crawl.SiteEbay, "b"))
	assert.False(t, m.Seen(crawl.SiteEbay, "c"))

	// "a" was evicted to make room for "c".
	assert.False(t, m.Seen(crawl.SiteEbay, "a"))
}
