package parallel

import (
	"context"
	"runtime"
	"sync"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// Parallelize divides the specified total number (items) according to the number of CPU cores,
// and executes the specified function (fn) in parallel for each range (start, end)
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold.
// Below the threshold fn runs once over the whole range on the calling goroutine.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// Workers returns n when positive, otherwise the number of CPU cores.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// ForEach runs fn(i) for every i in [0, n) on at most workers goroutines.
//
// Once a job fails or ctx is cancelled no new jobs are started. The returned
// error is the failure with the lowest index (or ctx.Err()), so the outcome
// does not depend on scheduling. A panic in fn is converted into a
// *errors.PanicError for that index.
func ForEach(ctx context.Context, n, workers int, fn func(i int) error) error {
	if err := ctx.Err(); err != nil || n <= 0 {
		return err
	}
	workers = Workers(workers)
	if workers > n {
		workers = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, n)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				err := esErrors.SafeExecute("parallel.ForEach", func() error { return fn(i) })
				if err != nil {
					errs[i] = err
					cancel()
				}
			}
		}()
	}

	cancelled := false
feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			cancelled = true
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if cancelled {
		// cancellation came from the caller, not from a failed job
		return ctx.Err()
	}
	return nil
}
