package models

// SortOption selects result ordering for a search operation.
type SortOption string

const (
	SortBestMatch SortOption = "best_match"
	SortPriceAsc  SortOption = "price_asc"
	SortPriceDesc SortOption = "price_desc"
	SortOrders    SortOption = "orders"
	SortNewest    SortOption = "newest"
)

// SearchFilters narrows a search operation.
type SearchFilters struct {
	MinPrice     *float64 `json:"min_price,omitempty"`
	MaxPrice     *float64 `json:"max_price,omitempty"`
	FreeShipping bool     `json:"free_shipping,omitempty"`
	ShipFrom     string   `json:"ship_from,omitempty"`
	MinRating    float64  `json:"min_rating,omitempty"`
}

// Pagination describes the position of a search page within its result set.
type Pagination struct {
	Page         int `json:"page"`
	TotalPages   int `json:"total_pages"`
	ItemsPerPage int `json:"items_per_page"`
	TotalItems   int `json:"total_items"`
}

// SearchResult is one canonical page of listings.
type SearchResult struct {
	Products   []Product      `json:"products"`
	Pagination Pagination     `json:"pagination"`
	Query      string         `json:"query,omitempty"`
	CategoryID string         `json:"category_id,omitempty"`
	Filters    *SearchFilters `json:"filters,omitempty"`
	SortBy     SortOption     `json:"sort_by,omitempty"`
}

// Category is one node of a site's category taxonomy.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Level    int    `json:"level"`
}

// ResultKind tags which canonical record a CanonicalResult carries.
type ResultKind string

const (
	ResultSearch     ResultKind = "search"
	ResultDetail     ResultKind = "detail"
	ResultCategories ResultKind = "categories"
)

// CanonicalResult is the site-agnostic output of a crawl operation.
// Exactly one of the payload fields is set, matching Kind.
type CanonicalResult struct {
	Kind       ResultKind    `json:"kind"`
	Search     *SearchResult `json:"search,omitempty"`
	Product    *Product      `json:"product,omitempty"`
	Categories []Category    `json:"categories,omitempty"`
}
