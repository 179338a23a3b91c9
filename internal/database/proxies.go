package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/cloudstore/internal/crawl"
)

// ProxyRepository persists the proxy inventory so health history survives
// restarts. The in-memory pool stays authoritative while the process runs;
// Persist writes its snapshot back.
type ProxyRepository struct {
	db *DB
}

func NewProxyRepository(db *DB) *ProxyRepository {
	return &ProxyRepository{db: db}
}

// LoadActive returns the active, unexpired inventory.
func (r *ProxyRepository) LoadActive(ctx context.Context) ([]*crawl.ProxyRecord, error) {
	query := `
		SELECT
			address, port, protocol, username, password, country, active,
			success_count, failure_count, last_used, last_failure,
			failure_reason, banned_sites, expires_at
		FROM proxies
		WHERE active = TRUE
			AND (expires_at IS NULL OR expires_at > NOW())`

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxies: %w", err)
	}
	defer rows.Close()

	var records []*crawl.ProxyRecord
	for rows.Next() {
		p := &crawl.ProxyRecord{}
		var lastUsed, lastFailure, expiresAt *time.Time
		var failureReason *string
		var bannedSites []byte

		err := rows.Scan(
			&p.Address, &p.Port, &p.Protocol, &p.Username, &p.Password, &p.Country, &p.Active,
			&p.SuccessCount, &p.FailureCount, &lastUsed, &lastFailure,
			&failureReason, &bannedSites, &expiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proxy: %w", err)
		}

		if lastUsed != nil {
			p.LastUsed = *lastUsed
		}
		if lastFailure != nil {
			p.LastFailure = *lastFailure
		}
		if failureReason != nil {
			p.FailureReason = *failureReason
		}
		if expiresAt != nil {
			p.ExpiresAt = *expiresAt
		}

		p.BannedSites = make(map[crawl.Site]struct{})
		if len(bannedSites) > 0 {
			var sites []string
			if err := json.Unmarshal(bannedSites, &sites); err != nil {
				return nil, fmt.Errorf("failed to unmarshal banned sites: %w", err)
			}
			for _, s := range sites {
				p.BannedSites[crawl.Site(s)] = struct{}{}
			}
		}

		records = append(records, p)
	}

	return records, rows.Err()
}

// Persist upserts a pool snapshot, keyed by host:port.
func (r *ProxyRepository) Persist(ctx context.Context, records []crawl.ProxyRecord) error {
	query := `
		INSERT INTO proxies (
			address, port, protocol, username, password, country, active,
			success_count, failure_count, last_used, last_failure,
			failure_reason, banned_sites, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (address, port) DO UPDATE SET
			active = EXCLUDED.active,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			last_used = EXCLUDED.last_used,
			last_failure = EXCLUDED.last_failure,
			failure_reason = EXCLUDED.failure_reason,
			banned_sites = EXCLUDED.banned_sites,
			updated_at = NOW()`

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for i := range records {
			p := &records[i]

			sites := make([]string, 0, len(p.BannedSites))
			for s := range p.BannedSites {
				sites = append(sites, string(s))
			}
			bannedSites, err := json.Marshal(sites)
			if err != nil {
				return fmt.Errorf("failed to marshal banned sites: %w", err)
			}

			var lastUsed, lastFailure, expiresAt *time.Time
			if !p.LastUsed.IsZero() {
				lastUsed = &p.LastUsed
			}
			if !p.LastFailure.IsZero() {
				lastFailure = &p.LastFailure
			}
			if !p.ExpiresAt.IsZero() {
				expiresAt = &p.ExpiresAt
			}

			_, err = tx.Exec(ctx, query,
				p.Address, p.Port, p.Protocol, p.Username, p.Password, p.Country, p.Active,
				p.SuccessCount, p.FailureCount, lastUsed, lastFailure,
				p.FailureReason, bannedSites, expiresAt,
			)
			if err != nil {
				return fmt.Errorf("failed to persist proxy %s: %w", p.Key(), err)
			}
		}
		return nil
	})
}

// Deactivate soft-deletes a proxy by host and port.
func (r *ProxyRepository) Deactivate(ctx context.Context, address string, port int) error {
	result, err := r.db.pool.Exec(ctx,
		`UPDATE proxies SET active = FALSE, updated_at = NOW() WHERE address = $1 AND port = $2`,
		address, port)
	if err != nil {
		return fmt.Errorf("failed to deactivate proxy: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("proxy not found: %s:%d", address, port)
	}
	return nil
}
