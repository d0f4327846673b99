package neardup

import "context"

// Filter removes near-duplicate items, comparing the text that fn extracts
// from each one. The kept items preserve input order.
func Filter[T any](ctx context.Context, c *Client, items []T, fn func(T) string) ([]T, Result, error) {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = fn(it)
	}

	res, err := c.Dedup(ctx, texts)
	if err != nil {
		return nil, Result{}, err
	}

	kept := make([]T, 0, len(res.Kept))
	for _, i := range res.Kept {
		kept = append(kept, items[i])
	}
	return kept, res, nil
}
