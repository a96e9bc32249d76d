package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

// CustomerStore serves the segmentable population. It implements
// segment.Population with keyset paging on customer id.
type CustomerStore struct {
	q   *Queries
	now func() time.Time
}

// NewCustomerStore creates a customer store over loaded queries.
func NewCustomerStore(q *Queries) *CustomerStore {
	return &CustomerStore{q: q, now: time.Now}
}

type customerRow struct {
	CustomerID string `db:"customer_id"`
	Attributes string `db:"attributes"`
}

// Upsert inserts or replaces customers.
func (s *CustomerStore) Upsert(ctx context.Context, customers []types.Customer) error {
	now := formatTime(s.now())
	for _, c := range customers {
		attrs, err := json.Marshal(c.Attributes)
		if err != nil {
			return fmt.Errorf("customer %s: failed to encode attributes: %w", c.ID, err)
		}
		if _, err := s.q.ExecContext(ctx, "upsert-customer", string(c.ID), string(attrs), now); err != nil {
			return fmt.Errorf("failed to upsert customer %s: %w", c.ID, err)
		}
	}
	return nil
}

// Count returns the population size.
func (s *CustomerStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.q.GetContext(ctx, "count-customers", &n); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return n, nil
}

// Scan implements segment.Population. Batches arrive in customer id order.
func (s *CustomerStore) Scan(ctx context.Context, batchSize int, fn func([]types.Customer) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	cursor := ""
	for {
		var rows []customerRow
		if err := s.q.SelectContext(ctx, "scan-customers", &rows, cursor, batchSize); err != nil {
			return fmt.Errorf("failed to scan customers: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]types.Customer, 0, len(rows))
		for _, r := range rows {
			c := types.Customer{ID: types.CustomerID(r.CustomerID)}
			if err := json.Unmarshal([]byte(r.Attributes), &c.Attributes); err != nil {
				return fmt.Errorf("customer %s: invalid attributes: %w", r.CustomerID, err)
			}
			batch = append(batch, c)
		}
		if err := fn(batch); err != nil {
			return err
		}

		if len(rows) < batchSize {
			return nil
		}
		cursor = rows[len(rows)-1].CustomerID
	}
}
