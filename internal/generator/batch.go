package generator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// concurrent upstream calls per batch
const DefaultBatchWorkers = 5

// outcome for one product of a batch, in input order
type BatchResult struct {
	Product Product
	Text    string
	Err     error
}

// describes products with at most workers calls in flight. failures are
// reported per item and never stop the rest of the batch; products without
// a name are rejected without a call.
func (s *Service) DescribeBatch(ctx context.Context, products []Product, workers int) []BatchResult {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}

	results := make([]BatchResult, len(products))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, p := range products {
		results[i].Product = p

		if p.Name == "" {
			results[i].Err = ErrMissingName
			continue
		}

		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}

		g.Go(func() error {
			results[i].Text, results[i].Err = s.DescribeStrict(ctx, p)
			return nil
		})
	}

	_ = g.Wait() // item errors live in results

	return results
}
