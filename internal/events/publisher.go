// Package events publishes crawl outcomes through the transactional outbox.
// Events commit in the same transaction as the product rows they describe.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/cloudstore/internal/database"
	"github.com/maltedev/cloudstore/internal/models"
)

type EventType string

const (
	// EventTypeProductDiscovered is published the first time a product is seen.
	EventTypeProductDiscovered EventType = "PRODUCT_DISCOVERED"
	// EventTypePriceChanged is published when a known product's price moves.
	EventTypePriceChanged EventType = "PRICE_CHANGED"
)

// ProductDiscoveredPayload is the stream payload for a newly seen product.
type ProductDiscoveredPayload struct {
	EventID    string       `json:"event_id"`
	EventType  string       `json:"event_type"`
	Timestamp  time.Time    `json:"timestamp"`
	Site       string       `json:"site"`
	ProductID  string       `json:"product_id"`
	Title      string       `json:"title"`
	URL        string       `json:"url"`
	CategoryID string       `json:"category_id,omitempty"`
	Price      models.Money `json:"price"`
	Rating     float64      `json:"rating,omitempty"`
	Source     string       `json:"source"`
}

// PriceChangedPayload is the stream payload for a price movement.
type PriceChangedPayload struct {
	EventID       string       `json:"event_id"`
	EventType     string       `json:"event_type"`
	Timestamp     time.Time    `json:"timestamp"`
	Site          string       `json:"site"`
	ProductID     string       `json:"product_id"`
	OldPrice      models.Money `json:"old_price"`
	NewPrice      models.Money `json:"new_price"`
	ChangePercent float64      `json:"change_percent"`
	Source        string       `json:"source"`
}

// Publisher writes events into the outbox; the relay delivers them.
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishProductDiscoveredTx enqueues a PRODUCT_DISCOVERED event inside the
// caller's transaction, typically the one that inserted the product.
func (p *Publisher) PublishProductDiscoveredTx(ctx context.Context, tx pgx.Tx, product *models.Product) error {
	event, err := productDiscoveredEvent(product)
	if err != nil {
		return err
	}
	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", event.EventType,
		"site", product.Site,
		"product_id", product.ID,
		"outbox_id", event.ID,
	)
	return nil
}

// PublishPriceChangedTx enqueues a PRICE_CHANGED event inside the caller's
// transaction.
func (p *Publisher) PublishPriceChangedTx(ctx context.Context, tx pgx.Tx, product *models.Product, oldPrice models.Money) error {
	event, err := priceChangedEvent(product, oldPrice)
	if err != nil {
		return err
	}
	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", event.EventType,
		"site", product.Site,
		"product_id", product.ID,
		"old_price", oldPrice.Value,
		"new_price", product.Price.Current.Value,
		"outbox_id", event.ID,
	)
	return nil
}

// PublishProductDiscovered is the standalone form, opening its own
// transaction.
func (p *Publisher) PublishProductDiscovered(ctx context.Context, product *models.Product) error {
	return p.db.WithTx(ctx, func(tx pgx.Tx) error {
		return p.PublishProductDiscoveredTx(ctx, tx, product)
	})
}

func productDiscoveredEvent(product *models.Product) (*database.OutboxEvent, error) {
	payload := ProductDiscoveredPayload{
		EventID:    uuid.New().String(),
		EventType:  string(EventTypeProductDiscovered),
		Timestamp:  time.Now(),
		Site:       product.Site,
		ProductID:  product.ID,
		Title:      product.Title,
		URL:        product.URL,
		CategoryID: product.CategoryID,
		Price:      product.Price.Current,
		Rating:     product.Rating,
		Source:     "crawler",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: "product",
		AggregateID:   aggregateID(product),
		EventType:     string(EventTypeProductDiscovered),
		Payload:       data,
	}, nil
}

func priceChangedEvent(product *models.Product, oldPrice models.Money) (*database.OutboxEvent, error) {
	payload := PriceChangedPayload{
		EventID:       uuid.New().String(),
		EventType:     string(EventTypePriceChanged),
		Timestamp:     time.Now(),
		Site:          product.Site,
		ProductID:     product.ID,
		OldPrice:      oldPrice,
		NewPrice:      product.Price.Current,
		ChangePercent: changePercent(oldPrice.Value, product.Price.Current.Value),
		Source:        "crawler",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: "product",
		AggregateID:   aggregateID(product),
		EventType:     string(EventTypePriceChanged),
		Payload:       data,
	}, nil
}

func aggregateID(product *models.Product) string {
	return product.Site + ":" + product.ID
}

// changePercent is relative to the old price; 0 when the old price is 0.
func changePercent(oldValue, newValue float64) float64 {
	if oldValue == 0 {
		return 0
	}
	return (newValue - oldValue) / oldValue * 100
}
