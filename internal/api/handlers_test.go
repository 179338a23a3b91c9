package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/cloudstore/internal/arbitrage"
	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/jobs"
	"github.com/maltedev/cloudstore/internal/models"
)

type fakeProductReader struct {
	products map[string]*models.Product
	history  []models.PricePoint
	recent   []models.Product
}

func (f *fakeProductReader) Get(ctx context.Context, site, externalID string) (*models.Product, error) {
	return f.products[site+":"+externalID], nil
}

func (f *fakeProductReader) PriceHistory(ctx context.Context, site, externalID string, limit int) ([]models.PricePoint, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeProductReader) Recent(ctx context.Context, limit int) ([]models.Product, error) {
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

type fakeOutboxStats struct {
	pending    int64
	deadLetter int64
}

func (f *fakeOutboxStats) GetPendingCount(ctx context.Context) (int64, error) {
	return f.pending, nil
}

func (f *fakeOutboxStats) GetDeadLetterCount(ctx context.Context) (int64, error) {
	return f.deadLetter, nil
}

func newTestServer(t *testing.T, products ProductReader, outbox OutboxStats) (*httptest.Server, *jobs.Manager) {
	t.Helper()

	manager, err := jobs.NewManager(100, 100, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	pool := crawl.NewProxyPool(nil, crawl.NewProxyRecord("10.0.0.1", 8080, "http"))
	banned := crawl.NewProxyRecord("10.0.0.2", 8080, "http")
	pool.Add(banned)
	pool.RecordFailure(banned, crawl.SiteAliExpress, "region_blocked", crawl.FailureOpts{BanFromSite: true})

	pools := map[crawl.Site]*crawl.ProxyPool{crawl.SiteAliExpress: pool}

	handlers := NewHandlers(manager, pools, products, outbox, slog.Default())
	server := httptest.NewServer(NewRouter(handlers, nil))
	t.Cleanup(server.Close)

	return server, manager
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestCreateJob(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp := postJSON(t, server.URL+"/api/v1/jobs", CreateJobRequest{
		Site:  "aliexpress",
		Kind:  "search",
		Query: "film camera",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreateJobResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.JobID)
	assert.Equal(t, "pending", created.Status)
}

func TestCreateJobRejectsBadRequests(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	t.Run("invalid body", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/api/v1/jobs", "application/json", bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing site", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/api/v1/jobs", CreateJobRequest{Kind: "search", Query: "camera"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown site", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/api/v1/jobs", CreateJobRequest{Site: "myspace", Kind: "search", Query: "camera"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("search without target", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/api/v1/jobs", CreateJobRequest{Site: "ebay", Kind: "search"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetJob(t *testing.T) {
	server, manager := newTestServer(t, nil, nil)

	job, err := manager.Submit(crawl.SiteEbay, crawl.Operation{
		Kind:      crawl.OpFetchDetail,
		ProductID: "255123456789",
	}, 0)
	require.NoError(t, err)

	t.Run("existing job", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/jobs/" + job.ID)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got jobs.Job
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, crawl.SiteEbay, got.Site)
	})

	t.Run("unknown job", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/jobs/no-such-job")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestListJobs(t *testing.T) {
	server, manager := newTestServer(t, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := manager.Submit(crawl.SiteAmazon, crawl.Operation{
			Kind:  crawl.OpSearch,
			Query: "camera",
		}, 0)
		require.NoError(t, err)
	}

	resp, err := http.Get(server.URL + "/api/v1/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []jobs.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 3)
}

func TestGetProduct(t *testing.T) {
	reader := &fakeProductReader{products: map[string]*models.Product{
		"aliexpress:1005001": {
			ID:    "1005001",
			Site:  "aliexpress",
			Title: "Vintage Film Camera",
			Price: models.Price{Current: models.Money{Value: 89.99, Currency: "USD"}},
		},
	}}
	server, _ := newTestServer(t, reader, nil)

	t.Run("existing product", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/products/aliexpress/1005001")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.Product
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "Vintage Film Camera", got.Title)
	})

	t.Run("missing product", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/products/aliexpress/0000000")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGetPriceHistory(t *testing.T) {
	reader := &fakeProductReader{history: []models.PricePoint{
		{ProductID: "1005001", Site: "aliexpress", Price: models.Money{Value: 89.99, Currency: "USD"}},
		{ProductID: "1005001", Site: "aliexpress", Price: models.Money{Value: 99.99, Currency: "USD"}},
	}}
	server, _ := newTestServer(t, reader, nil)

	t.Run("default limit", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/products/aliexpress/1005001/history")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var points []models.PricePoint
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&points))
		assert.Len(t, points, 2)
	})

	t.Run("explicit limit", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/products/aliexpress/1005001/history?limit=1")
		require.NoError(t, err)
		defer resp.Body.Close()

		var points []models.PricePoint
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&points))
		assert.Len(t, points, 1)
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/products/aliexpress/1005001/history?limit=zero")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetArbitrageOpportunities(t *testing.T) {
	reader := &fakeProductReader{recent: []models.Product{
		{
			ID: "1005001", Site: "aliexpress", Title: "Canon AE-1 Film Camera", Brand: "Canon",
			Price: models.Price{Current: models.Money{Value: 80, Currency: "USD"}},
		},
		{
			ID: "255111", Site: "ebay", Title: "Canon AE-1 Film Camera", Brand: "Canon",
			Price: models.Price{Current: models.Money{Value: 140, Currency: "USD"}},
		},
	}}
	server, _ := newTestServer(t, reader, nil)

	t.Run("defaults", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/arbitrage/opportunities")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var report arbitrage.Report
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
		require.Equal(t, 1, report.TotalFound)
		assert.Equal(t, "aliexpress", report.Opportunities[0].SourceSite)
		assert.Equal(t, "ebay", report.Opportunities[0].TargetSite)
		assert.InDelta(t, 75.0, report.Opportunities[0].ProfitMargin, 0.001)
	})

	t.Run("shipping filters it out", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/arbitrage/opportunities?shipping_cost=70")
		require.NoError(t, err)
		defer resp.Body.Close()

		var report arbitrage.Report
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
		assert.Zero(t, report.TotalFound)
	})

	t.Run("invalid threshold", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/arbitrage/opportunities?min_profit_margin=lots")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("no product store", func(t *testing.T) {
		bare, _ := newTestServer(t, nil, nil)
		resp, err := http.Get(bare.URL + "/api/v1/arbitrage/opportunities")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestGetProxyStatus(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp, err := http.Get(server.URL + "/api/v1/proxy/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses []ProxyStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, 1)

	assert.Equal(t, "aliexpress", statuses[0].Site)
	assert.Equal(t, 2, statuses[0].Total)
	assert.Equal(t, 2, statuses[0].Active)
	assert.Equal(t, 1, statuses[0].Banned)
	assert.Equal(t, 0, statuses[0].Expiring)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server, _ := newTestServer(t, nil, &fakeOutboxStats{pending: 3})

		resp, err := http.Get(server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var health map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.Equal(t, "ok", health["status"])
	})

	t.Run("dead letter backlog", func(t *testing.T) {
		server, _ := newTestServer(t, nil, &fakeOutboxStats{deadLetter: 500})

		resp, err := http.Get(server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestHealthWithoutOutbox(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
