// internal/segment/population.go
package segment

import (
	"context"

	"github.com/solatis/campaignkeeper/internal/types"
)

// Population is a read-only stream of customer records supplied by a
// storage collaborator. Scan calls fn with consecutive batches of at most
// batchSize customers and stops at the first error fn returns.
type Population interface {
	Scan(ctx context.Context, batchSize int, fn func([]types.Customer) error) error
}

// SlicePopulation serves customers from memory, for fixtures and the CLI.
type SlicePopulation []types.Customer

// Scan implements Population.
func (p SlicePopulation) Scan(ctx context.Context, batchSize int, fn func([]types.Customer) error) error {
	if batchSize <= 0 {
		batchSize = len(p)
	}
	for start := 0; start < len(p); start += batchSize {
		end := min(start+batchSize, len(p))
		if err := fn(p[start:end]); err != nil {
			return err
		}
	}
	return nil
}
