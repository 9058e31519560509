// Package batch fans a list of work items out to a bounded worker pool
// in fixed-size chunks, then runs a continuation once every chunk has
// finished. The continuation runs even when there is nothing to do, so
// stage completion logic never depends on the input being non-empty.
package batch

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"
)

const (
	// DefaultConcurrency is the default number of chunk workers.
	DefaultConcurrency = 10
)

// Chunk splits items into consecutive slices of at most size elements,
// preserving order. A size of zero or less yields a single chunk.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// IncrementPerChunk returns the progress delta each chunk contributes
// so that all chunks together sum to 100.
func IncrementPerChunk(chunkCount int) float64 {
	if chunkCount <= 0 {
		return 0
	}
	return 1.0 / float64(chunkCount) * 100
}

// Result summarizes a fan-out run. Chunk failures are isolated; a
// failed chunk is recorded here and the rest of the run continues.
type Result struct {
	TotalChunks  int
	SuccessCount int
	FailureCount int
	Errors       []error
}

// Worker processes a single chunk of items.
type Worker[T any] func(ctx context.Context, chunk []T) error

// Continuation runs exactly once after all chunks have finished.
type Continuation func(ctx context.Context, result *Result) error

// Executor runs chunked work on a bounded worker pool.
type Executor struct {
	concurrency int
	logger      ectologger.Logger
}

// NewExecutor creates an executor with the given worker count.
func NewExecutor(concurrency int, logger ectologger.Logger) *Executor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Executor{
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run executes worker for every chunk, then calls finish once. Worker
// errors are collected in the result instead of stopping the run;
// Run's own error is the continuation's error.
func Run[T any](ctx context.Context, e *Executor, chunks [][]T, worker Worker[T], finish Continuation) (*Result, error) {
	result := &Result{
		TotalChunks: len(chunks),
	}

	if len(chunks) > 0 {
		concurrency := e.concurrency
		if concurrency > len(chunks) {
			concurrency = len(chunks)
		}

		chunkChan := make(chan indexedChunk[T], len(chunks))
		errChan := make(chan error, len(chunks))

		var wg sync.WaitGroup
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for item := range chunkChan {
					select {
					case <-ctx.Done():
						errChan <- ctx.Err()
						continue
					default:
					}
					if err := worker(ctx, item.chunk); err != nil {
						e.logger.WithContext(ctx).WithError(err).WithField("chunk_index", item.index).Error("Chunk failed")
						errChan <- err
					} else {
						errChan <- nil
					}
				}
			}()
		}

		for i, chunk := range chunks {
			chunkChan <- indexedChunk[T]{index: i, chunk: chunk}
		}
		close(chunkChan)
		wg.Wait()
		close(errChan)

		for err := range errChan {
			if err != nil {
				result.Errors = append(result.Errors, err)
				result.FailureCount++
			} else {
				result.SuccessCount++
			}
		}
	}

	if finish != nil {
		if err := finish(ctx, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

type indexedChunk[T any] struct {
	index int
	chunk []T
}
