// Package parallel implements the multi-process parallel map helper
// spec.md §1 places outside the core's scope: "a multi-process parallel
// map helper that runs a user function over entries and feeds results
// back to a writer thread; it uses only the public operations of the
// core." This port uses goroutines and channels rather than OS processes
// (the original's `multiprocessing.Pool` + result queue + writer thread,
// see `_examples/original_source/booklet/parallel.py`), since spec.md §5
// restricts the store itself to a single writer within one process, not
// across processes.
package parallel

import (
	"sync"

	"github.com/mullenkamp/booklet-go"
)

// Result is one transformed entry fed back to the writer.
type Result struct {
	Key   interface{}
	Value interface{}
}

// Func transforms one source entry. Returning ok=false skips writing a
// result for that entry; a non-nil error is recorded and the entry is
// skipped, but does not stop the other workers.
type Func func(entry booklet.Entry) (result Result, ok bool, err error)

// Map iterates src, fans each entry out across workerCount goroutines
// running fn, and writes every produced result into dst sequentially from
// the calling goroutine — the single "writer thread" that owns dst's
// write path, matching spec.md §5's single-writer model. It returns the
// number of entries written and the first error encountered, if any;
// later errors from other workers or writes are recorded but do not abort
// the run, so src is still fully drained.
func Map(src, dst *booklet.Booklet, fn Func, workerCount int) (int, error) {
	if workerCount < 1 {
		workerCount = 1
	}

	entries, err := src.Iterate(booklet.IterateOptions{IncludeKeys: true, IncludeValues: true})
	if err != nil {
		return 0, err
	}

	work := make(chan booklet.Entry)
	results := make(chan Result)

	var mu sync.Mutex
	var firstErr error
	recordErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range work {
				r, ok, err := fn(e)
				if err != nil {
					recordErr(err)
					continue
				}
				if ok {
					results <- r
				}
			}
		}()
	}

	go func() {
		for _, e := range entries {
			work <- e
		}
		close(work)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	written := 0
	for r := range results {
		if err := dst.Set(r.Key, r.Value, nil); err != nil {
			recordErr(err)
			continue
		}
		written++
	}

	return written, firstErr
}
