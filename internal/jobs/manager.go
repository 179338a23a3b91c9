package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/queue"
	"github.com/maltedev/cloudstore/internal/sites"
)

var ErrJobNotFound = errors.New("job not found")

// Detail fetches spawned from search results run below user-submitted work.
const discoveredPriority = -1

// Manager accepts crawl jobs, queues their operations, and tracks status.
// The LRU remembers recently discovered product IDs so a product seen on
// several search pages is fetched once.
type Manager struct {
	queue  queue.Queue
	store  *store
	dedupe *lru.Cache[string, time.Time]
	logger *slog.Logger
}

func NewManager(queueMaxSize, dedupeCacheSize int, logger *slog.Logger) (*Manager, error) {
	dedupe, err := lru.New[string, time.Time](dedupeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build dedupe cache: %w", err)
	}

	return &Manager{
		queue:  queue.NewInMemoryQueue(queueMaxSize),
		store:  newStore(),
		dedupe: dedupe,
		logger: logger.With("component", "job_manager"),
	}, nil
}

// Submit validates the operation, registers a pending job, and queues it.
func (m *Manager) Submit(site crawl.Site, op crawl.Operation, priority int) (*Job, error) {
	if _, err := sites.Lookup(site); err != nil {
		return nil, err
	}
	if err := validateOperation(op); err != nil {
		return nil, err
	}

	job := m.store.create(site, op)
	task := queue.NewTask(job.ID, site, op, priority)

	if err := m.queue.Push(task); err != nil {
		m.store.fail(job.ID, err.Error(), 0)
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job submitted",
		"job_id", job.ID,
		"site", string(site),
		"kind", string(op.Kind),
		"priority", priority)

	return job, nil
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (*Job, error) {
	job, ok := m.store.get(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List returns snapshots of every known job.
func (m *Manager) List() []*Job {
	return m.store.list()
}

// QueueSize reports how many tasks wait for a worker.
func (m *Manager) QueueSize() int {
	return m.queue.Size()
}

// Seen records a discovered product and reports whether it was already in
// the dedupe window.
func (m *Manager) Seen(site crawl.Site, productID string) bool {
	key := string(site) + ":" + productID
	if _, ok := m.dedupe.Get(key); ok {
		return true
	}
	m.dedupe.Add(key, time.Now())
	return false
}

// Close stops accepting jobs; queued tasks drain first.
func (m *Manager) Close() error {
	return m.queue.Close()
}

func validateOperation(op crawl.Operation) error {
	switch op.Kind {
	case crawl.OpSearch:
		if op.Query == "" && op.CategoryID == "" {
			return errors.New("search requires a query or category_id")
		}
	case crawl.OpFetchDetail:
		if op.ProductID == "" {
			return errors.New("fetch_detail requires a product_id")
		}
	case crawl.OpFetchCategories:
		// Empty parent means top level.
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return nil
}
