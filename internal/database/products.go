package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/cloudstore/internal/models"
)

// SaveOutcome reports what an upsert changed, so the caller can decide
// which events to emit in the same transaction.
type SaveOutcome struct {
	IsNew         bool
	PreviousPrice *models.Money
}

// PriceChanged reports whether the stored price differs from the previous
// observation. New products never count as a price change.
func (o SaveOutcome) PriceChanged(current models.Money) bool {
	if o.IsNew || o.PreviousPrice == nil {
		return false
	}
	return o.PreviousPrice.Value != current.Value || o.PreviousPrice.Currency != current.Currency
}

type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// SaveWithTx upserts a canonical product keyed by (site, external_id) and
// appends a price history row, all inside the caller's transaction.
func (r *ProductRepository) SaveWithTx(ctx context.Context, tx pgx.Tx, p *models.Product) (SaveOutcome, error) {
	var outcome SaveOutcome

	var prevValue *float64
	var prevCurrency *string
	err := tx.QueryRow(ctx,
		`SELECT price_value, price_currency FROM products WHERE site = $1 AND external_id = $2`,
		p.Site, p.ID).Scan(&prevValue, &prevCurrency)
	switch {
	case err == pgx.ErrNoRows:
		outcome.IsNew = true
	case err != nil:
		return outcome, fmt.Errorf("failed to look up product: %w", err)
	default:
		if prevValue != nil && prevCurrency != nil {
			outcome.PreviousPrice = &models.Money{Value: *prevValue, Currency: *prevCurrency}
		}
	}

	images, err := json.Marshal(p.Images)
	if err != nil {
		return outcome, fmt.Errorf("failed to marshal images: %w", err)
	}
	specs, err := json.Marshal(p.Specs)
	if err != nil {
		return outcome, fmt.Errorf("failed to marshal specs: %w", err)
	}
	var seller []byte
	if p.Seller != nil {
		if seller, err = json.Marshal(p.Seller); err != nil {
			return outcome, fmt.Errorf("failed to marshal seller: %w", err)
		}
	}

	query := `
		INSERT INTO products (
			site, external_id, url, title, brand, description, category_id,
			price_value, price_currency, original_price_value, discount_percentage,
			images, specs, seller, rating, review_count, orders_count,
			ships_from, free_shipping, crawled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (site, external_id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			brand = EXCLUDED.brand,
			description = EXCLUDED.description,
			category_id = EXCLUDED.category_id,
			price_value = EXCLUDED.price_value,
			price_currency = EXCLUDED.price_currency,
			original_price_value = EXCLUDED.original_price_value,
			discount_percentage = EXCLUDED.discount_percentage,
			images = EXCLUDED.images,
			specs = EXCLUDED.specs,
			seller = EXCLUDED.seller,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			orders_count = EXCLUDED.orders_count,
			ships_from = EXCLUDED.ships_from,
			free_shipping = EXCLUDED.free_shipping,
			crawled_at = EXCLUDED.crawled_at,
			updated_at = NOW()`

	var originalValue *float64
	if p.Price.Original != nil {
		originalValue = &p.Price.Original.Value
	}

	_, err = tx.Exec(ctx, query,
		p.Site, p.ID, p.URL, p.Title, p.Brand, p.Description, p.CategoryID,
		p.Price.Current.Value, p.Price.Current.Currency, originalValue, p.Price.DiscountPercentage,
		images, specs, seller, p.Rating, p.ReviewCount, p.OrdersCount,
		p.ShipsFrom, p.FreeShipping, p.CrawledAt,
	)
	if err != nil {
		return outcome, fmt.Errorf("failed to upsert product: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO price_history (site, external_id, price_value, price_currency, observed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.Site, p.ID, p.Price.Current.Value, p.Price.Current.Currency, p.CrawledAt)
	if err != nil {
		return outcome, fmt.Errorf("failed to insert price point: %w", err)
	}

	return outcome, nil
}

// Get retrieves a product by site and external id. Returns nil when absent.
func (r *ProductRepository) Get(ctx context.Context, site, externalID string) (*models.Product, error) {
	query := `
		SELECT
			site, external_id, url, title, brand, description, category_id,
			price_value, price_currency, original_price_value, discount_percentage,
			images, specs, seller, rating, review_count, orders_count,
			ships_from, free_shipping, crawled_at
		FROM products
		WHERE site = $1 AND external_id = $2`

	p := &models.Product{}
	var originalValue *float64
	var images, specs, seller []byte

	err := r.db.pool.QueryRow(ctx, query, site, externalID).Scan(
		&p.Site, &p.ID, &p.URL, &p.Title, &p.Brand, &p.Description, &p.CategoryID,
		&p.Price.Current.Value, &p.Price.Current.Currency, &originalValue, &p.Price.DiscountPercentage,
		&images, &specs, &seller, &p.Rating, &p.ReviewCount, &p.OrdersCount,
		&p.ShipsFrom, &p.FreeShipping, &p.CrawledAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	if originalValue != nil {
		p.Price.Original = &models.Money{Value: *originalValue, Currency: p.Price.Current.Currency}
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return nil, fmt.Errorf("failed to unmarshal images: %w", err)
		}
	}
	if len(specs) > 0 {
		if err := json.Unmarshal(specs, &p.Specs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal specs: %w", err)
		}
	}
	if len(seller) > 0 {
		p.Seller = &models.Seller{}
		if err := json.Unmarshal(seller, p.Seller); err != nil {
			return nil, fmt.Errorf("failed to unmarshal seller: %w", err)
		}
	}

	return p, nil
}

// PriceHistory returns the most recent price observations, newest first.
func (r *ProductRepository) PriceHistory(ctx context.Context, site, externalID string, limit int) ([]models.PricePoint, error) {
	query := `
		SELECT site, external_id, price_value, price_currency, observed_at
		FROM price_history
		WHERE site = $1 AND external_id = $2
		ORDER BY observed_at DESC
		LIMIT $3`

	rows, err := r.db.pool.Query(ctx, query, site, externalID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var pt models.PricePoint
		if err := rows.Scan(&pt.Site, &pt.ProductID, &pt.Price.Value, &pt.Price.Currency, &pt.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, pt)
	}

	return points, rows.Err()
}

// Recent lists the most recently crawled products across all sites, newest
// first. Feeds the arbitrage analysis, which only needs identity, pricing,
// and the matching attributes.
func (r *ProductRepository) Recent(ctx context.Context, limit int) ([]models.Product, error) {
	query := `
		SELECT
			site, external_id, url, title, brand, category_id,
			price_value, price_currency, specs, crawled_at
		FROM products
		ORDER BY crawled_at DESC
		LIMIT $1`

	rows, err := r.db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		var specs []byte
		if err := rows.Scan(
			&p.Site, &p.ID, &p.URL, &p.Title, &p.Brand, &p.CategoryID,
			&p.Price.Current.Value, &p.Price.Current.Currency, &specs, &p.CrawledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if len(specs) > 0 {
			if err := json.Unmarshal(specs, &p.Specs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal specs: %w", err)
			}
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// CountBySite returns product counts grouped by site.
func (r *ProductRepository) CountBySite(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT site, COUNT(*) FROM products GROUP BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var site string
		var count int
		if err := rows.Scan(&site, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[site] = count
	}

	return counts, rows.Err()
}

// StaleProducts lists products not crawled since the cutoff, oldest first.
// Feeds the recrawl scheduler.
func (r *ProductRepository) StaleProducts(ctx context.Context, site string, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT external_id FROM products
		 WHERE site = $1 AND crawled_at < $2
		 ORDER BY crawled_at ASC
		 LIMIT $3`, site, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale products: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
