package batch

import "context"

// ChunkReader fetches up to limit items positioned after afterID.
type ChunkReader[T any] func(ctx context.Context, afterID int64, limit int) ([]T, error)

// ProcessChunks pages through reader in chunks of size until it returns an
// empty chunk, calling process for every item. Item failures are counted
// against the execution's error threshold; a fetch failure or an exceeded
// threshold ends the loop with an error.
func ProcessChunks[T any](ctx context.Context, exec *Execution, size int, reader ChunkReader[T], id func(T) int64, process func(context.Context, T) error) error {
	if size <= 0 {
		size = 25
	}
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := reader(ctx, after, size)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		exec.AddRead(int64(len(items)))
		for _, item := range items {
			after = id(item)
			if err := process(ctx, item); err != nil {
				if abort := exec.RecordFailure(err); abort != nil {
					return abort
				}
				continue
			}
			exec.AddWritten(1)
		}
	}
}
