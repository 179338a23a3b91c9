package models

import (
	"time"
)

// Money is a price value in a specific currency.
type Money struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Price holds current and pre-discount pricing for a listing.
type Price struct {
	Current            Money  `json:"current"`
	Original           *Money `json:"original,omitempty"`
	DiscountPercentage int    `json:"discount_percentage,omitempty"`
}

// Product is the canonical product record shared by all site crawlers.
type Product struct {
	ID            string          `json:"id"`
	Site          string          `json:"site"`
	URL           string          `json:"url"`
	Title         string          `json:"title"`
	Brand         string          `json:"brand,omitempty"`
	Description   string          `json:"description,omitempty"`
	CategoryID    string          `json:"category_id,omitempty"`
	Price         Price           `json:"price"`
	Images        []string        `json:"images,omitempty"`
	Specs         []Specification `json:"specs,omitempty"`
	Seller        *Seller         `json:"seller,omitempty"`
	Rating        float64         `json:"rating,omitempty"`
	ReviewCount   int             `json:"review_count,omitempty"`
	OrdersCount   int             `json:"orders_count,omitempty"`
	ShipsFrom     string          `json:"ships_from,omitempty"`
	FreeShipping  bool            `json:"free_shipping"`
	CrawledAt     time.Time       `json:"crawled_at"`
}

// Specification is a single name/value attribute from a product page.
type Specification struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Seller describes the store behind a listing.
type Seller struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	URL              string  `json:"url,omitempty"`
	PositiveFeedback float64 `json:"positive_feedback,omitempty"`
	FollowersCount   int     `json:"followers_count,omitempty"`
}

// PricePoint is one observation in a product's price history.
type PricePoint struct {
	ProductID  string    `json:"product_id"`
	Site       string    `json:"site"`
	Price      Money     `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}
