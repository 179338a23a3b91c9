package crawl

import (
	"github.com/maltedev/cloudstore/internal/models"
)

// OpKind is the unit of work a crawler performs.
type OpKind string

const (
	OpSearch          OpKind = "search"
	OpFetchDetail     OpKind = "fetch_detail"
	OpFetchCategories OpKind = "fetch_categories"
)

// Operation describes one logical crawl: what to fetch, under which
// parameters. The orchestrator owns its attempt log.
type Operation struct {
	Kind OpKind

	// Search parameters.
	Query      string
	CategoryID string
	Page       int
	Sort       models.SortOption
	Filters    *models.SearchFilters

	// FetchDetail parameter.
	ProductID string

	// FetchCategories parameter; empty means top level.
	ParentCategoryID string
}

// RequestBuilder turns an operation into a concrete request for the active
// endpoint profile. Implemented per site; the core never sees URLs or page
// structure.
type RequestBuilder interface {
	Build(op Operation, profile EndpointProfile, session *Session) (*Request, error)
}

// Parser turns a raw success body into the canonical record for the
// operation kind. External collaborator: parse failures are terminal, never
// retried.
type Parser interface {
	Parse(body string, kind OpKind) (*models.CanonicalResult, error)
}
