package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
	"github.com/maltedev/cloudstore/internal/queue"
)

// Executor runs one crawl operation to a terminal state. Satisfied by
// *crawl.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, op crawl.Operation, session *crawl.Session) (*models.CanonicalResult, []crawl.Attempt, error)
}

// ResultSink persists crawl results. Satisfied by *DatabaseSink; nil-safe
// callers pass a no-op sink when persistence is disabled.
type ResultSink interface {
	StoreProduct(ctx context.Context, p *models.Product) error
}

// SessionFactory builds the per-operation session for a site.
type SessionFactory func(site crawl.Site) *crawl.Session

// Pool runs queued crawl tasks on a fixed number of workers, one executor
// per site. Each operation runs under its own deadline so a stalled site
// cannot pin a worker forever.
type Pool struct {
	manager   *Manager
	executors map[crawl.Site]Executor
	sessions  SessionFactory
	sink      ResultSink
	workers   int
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewPool builds a pool; opTimeout caps one operation across all of its
// retries, 0 disables the cap.
func NewPool(manager *Manager, executors map[crawl.Site]Executor, sessions SessionFactory, sink ResultSink, workers int, opTimeout time.Duration, logger *slog.Logger) *Pool {
	return &Pool{
		manager:   manager,
		executors: executors,
		sessions:  sessions,
		sink:      sink,
		workers:   workers,
		opTimeout: opTimeout,
		logger:    logger.With("component", "worker_pool"),
	}
}

// Run blocks until the context is cancelled and every worker has drained.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("starting workers", "count", p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()

	p.logger.Info("workers stopped")
}

func (p *Pool) work(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)

	for {
		task, err := p.manager.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			logger.Error("failed to pop task", "error", err)
			continue
		}

		p.handleTask(ctx, logger, task)
	}
}

func (p *Pool) handleTask(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	executor, ok := p.executors[task.Site]
	if !ok {
		p.manager.store.fail(task.JobID, "no executor for site "+string(task.Site), 0)
		return
	}

	if err := p.manager.store.markRunning(task.JobID); err != nil {
		logger.Error("failed to mark job running", "job_id", task.JobID, "error", err)
		return
	}

	opCtx := ctx
	if p.opTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, p.opTimeout)
		defer cancel()
	}

	session := p.sessions(task.Site)
	result, attempts, err := executor.Execute(opCtx, task.Op, session)
	if err != nil {
		logger.Warn("job failed",
			"job_id", task.JobID,
			"site", string(task.Site),
			"kind", string(task.Op.Kind),
			"attempts", len(attempts),
			"error", err)
		p.manager.store.fail(task.JobID, err.Error(), len(attempts))
		return
	}

	p.handleResult(ctx, logger, task, result)

	if err := p.manager.store.complete(task.JobID, result, len(attempts)); err != nil {
		logger.Error("failed to mark job completed", "job_id", task.JobID, "error", err)
	}
}

func (p *Pool) handleResult(ctx context.Context, logger *slog.Logger, task *queue.Task, result *models.CanonicalResult) {
	switch result.Kind {
	case models.ResultDetail:
		if result.Product == nil {
			return
		}
		if err := p.storeProduct(ctx, result.Product); err != nil {
			logger.Error("failed to store product",
				"site", string(task.Site),
				"product_id", result.Product.ID,
				"error", err)
		}

	case models.ResultSearch:
		if result.Search == nil {
			return
		}
		p.enqueueDiscovered(logger, task, result.Search.Products)
	}
}

// enqueueDiscovered turns fresh search listings into detail-fetch jobs.
// Products inside the dedupe window are skipped.
func (p *Pool) enqueueDiscovered(logger *slog.Logger, task *queue.Task, products []models.Product) {
	enqueued := 0
	for i := range products {
		product := &products[i]
		if product.ID == "" {
			continue
		}
		if p.manager.Seen(task.Site, product.ID) {
			continue
		}

		op := crawl.Operation{Kind: crawl.OpFetchDetail, ProductID: product.ID}
		if _, err := p.manager.Submit(task.Site, op, discoveredPriority); err != nil {
			logger.Warn("failed to enqueue detail fetch",
				"site", string(task.Site),
				"product_id", product.ID,
				"error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		logger.Info("discovered products queued",
			"site", string(task.Site),
			"count", enqueued)
	}
}

func (p *Pool) storeProduct(ctx context.Context, product *models.Product) error {
	if p.sink == nil {
		return nil
	}
	return p.sink.StoreProduct(ctx, product)
}
