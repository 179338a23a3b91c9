package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/cloudstore/internal/database"
	"github.com/maltedev/cloudstore/internal/events"
	"github.com/maltedev/cloudstore/internal/models"
)

// DatabaseSink persists crawled products and emits the matching outbox
// events in the same transaction.
type DatabaseSink struct {
	db        *database.DB
	products  *database.ProductRepository
	publisher *events.Publisher
}

func NewDatabaseSink(db *database.DB, products *database.ProductRepository, publisher *events.Publisher) *DatabaseSink {
	return &DatabaseSink{
		db:        db,
		products:  products,
		publisher: publisher,
	}
}

// StoreProduct upserts the product and appends its price point. A first
// sighting publishes PRODUCT_DISCOVERED; a price movement publishes
// PRICE_CHANGED. Both commit atomically with the product row.
func (s *DatabaseSink) StoreProduct(ctx context.Context, product *models.Product) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		outcome, err := s.products.SaveWithTx(ctx, tx, product)
		if err != nil {
			return fmt.Errorf("failed to save product: %w", err)
		}

		if outcome.IsNew {
			return s.publisher.PublishProductDiscoveredTx(ctx, tx, product)
		}
		if outcome.PriceChanged(product.Price.Current) {
			return s.publisher.PublishPriceChangedTx(ctx, tx, product, *outcome.PreviousPrice)
		}
		return nil
	})
}
