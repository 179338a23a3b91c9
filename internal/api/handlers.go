// Package api exposes the crawler over HTTP: job submission and status,
// stored products, proxy inventory health, and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/cloudstore/internal/arbitrage"
	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/jobs"
	"github.com/maltedev/cloudstore/internal/models"
)

// ProductReader is the read side of the product store. Satisfied by
// *database.ProductRepository; nil disables the product routes' backing.
type ProductReader interface {
	Get(ctx context.Context, site, externalID string) (*models.Product, error)
	PriceHistory(ctx context.Context, site, externalID string, limit int) ([]models.PricePoint, error)
	Recent(ctx context.Context, limit int) ([]models.Product, error)
}

// OutboxStats reports outbox depth for the health endpoint. Satisfied by
// *database.Relay.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	jobs     *jobs.Manager
	pools    map[crawl.Site]*crawl.ProxyPool
	products ProductReader
	outbox   OutboxStats
	logger   *slog.Logger
}

func NewHandlers(manager *jobs.Manager, pools map[crawl.Site]*crawl.ProxyPool, products ProductReader, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:     manager,
		pools:    pools,
		products: products,
		outbox:   outbox,
		logger:   logger.With("component", "api"),
	}
}

// CreateJobRequest represents a new crawl job submission.
type CreateJobRequest struct {
	Site             string                `json:"site"`
	Kind             string                `json:"kind"`
	Query            string                `json:"query,omitempty"`
	CategoryID       string                `json:"category_id,omitempty"`
	Page             int                   `json:"page,omitempty"`
	Sort             string                `json:"sort,omitempty"`
	Filters          *models.SearchFilters `json:"filters,omitempty"`
	ProductID        string                `json:"product_id,omitempty"`
	ParentCategoryID string                `json:"parent_category_id,omitempty"`
	Priority         int                   `json:"priority,omitempty"`
}

// CreateJobResponse represents the job creation response.
type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CreateJob handles new crawl job submissions.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Site == "" || req.Kind == "" {
		h.respondError(w, http.StatusBadRequest, "site and kind are required")
		return
	}

	op := crawl.Operation{
		Kind:             crawl.OpKind(req.Kind),
		Query:            req.Query,
		CategoryID:       req.CategoryID,
		Page:             req.Page,
		Sort:             models.SortOption(req.Sort),
		Filters:          req.Filters,
		ProductID:        req.ProductID,
		ParentCategoryID: req.ParentCategoryID,
	}

	job, err := h.jobs.Submit(crawl.Site(req.Site), op, req.Priority)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// GetJob handles job status retrieval.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.Get(jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to get job", "job_id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs handles listing all known jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.List())
}

// GetProduct returns the stored canonical product.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store not configured")
		return
	}

	site := chi.URLParam(r, "site")
	productID := chi.URLParam(r, "productID")

	product, err := h.products.Get(r.Context(), site, productID)
	if err != nil {
		h.logger.Error("failed to get product", "site", site, "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

// GetPriceHistory returns recent price observations, newest first.
func (h *Handlers) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store not configured")
		return
	}

	site := chi.URLParam(r, "site")
	productID := chi.URLParam(r, "productID")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	points, err := h.products.PriceHistory(r.Context(), site, productID, limit)
	if err != nil {
		h.logger.Error("failed to get price history", "site", site, "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get price history")
		return
	}

	h.respondJSON(w, http.StatusOK, points)
}

// GetArbitrageOpportunities compares recently crawled listings across sites
// and returns resale candidates. Thresholds default to a 10 percent margin
// floor and a confidence of 70; query parameters override them per request.
func (h *Handlers) GetArbitrageOpportunities(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store not configured")
		return
	}

	params := arbitrage.DefaultParams()
	q := r.URL.Query()
	floats := []struct {
		name string
		dst  *float64
	}{
		{"min_profit_margin", &params.MinProfitMargin},
		{"confidence_threshold", &params.ConfidenceThreshold},
		{"shipping_cost", &params.ShippingCost},
		{"other_fees", &params.OtherFees},
	}
	for _, f := range floats {
		if v := q.Get(f.name); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil || parsed < 0 {
				h.respondError(w, http.StatusBadRequest, f.name+" must be a non-negative number")
				return
			}
			*f.dst = parsed
		}
	}

	scan := 200
	if v := q.Get("scan_limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 2 {
			h.respondError(w, http.StatusBadRequest, "scan_limit must be an integer of at least 2")
			return
		}
		scan = parsed
	}

	products, err := h.products.Recent(r.Context(), scan)
	if err != nil {
		h.logger.Error("failed to load products for arbitrage analysis", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load products")
		return
	}

	h.respondJSON(w, http.StatusOK, arbitrage.Analyze(products, params, time.Now()))
}

// ProxyStatusResponse summarizes one site's proxy inventory.
type ProxyStatusResponse struct {
	Site     string `json:"site"`
	Total    int    `json:"total"`
	Active   int    `json:"active"`
	Banned   int    `json:"banned"`
	Expiring int    `json:"expiring"`
}

// GetProxyStatus summarizes proxy health per site. A proxy counts as
// expiring when it lapses within the next hour.
func (h *Handlers) GetProxyStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	soon := now.Add(time.Hour)

	statuses := make([]ProxyStatusResponse, 0, len(h.pools))
	for site, pool := range h.pools {
		status := ProxyStatusResponse{Site: string(site)}
		for _, p := range pool.Snapshot() {
			status.Total++
			if p.Active {
				status.Active++
			}
			if p.BannedFor(site) {
				status.Banned++
			}
			if !p.ExpiresAt.IsZero() && p.ExpiresAt.Before(soon) {
				status.Expiring++
			}
		}
		statuses = append(statuses, status)
	}

	h.respondJSON(w, http.StatusOK, statuses)
}

// Health reports liveness plus outbox depth. A deep dead-letter backlog
// flips the endpoint unhealthy so orchestration restarts the relay.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":     "ok",
		"queue_size": h.jobs.QueueSize(),
	}
	status := http.StatusOK

	if h.outbox != nil {
		pending, _ := h.outbox.GetPendingCount(r.Context())
		deadLetter, _ := h.outbox.GetDeadLetterCount(r.Context())
		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": deadLetter,
		}

		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
