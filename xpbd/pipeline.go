package xpbd

import "sync"

// task fans work over items across workersCount goroutines, used only for
// the predictor and velocity-commit passes where each item's result depends
// solely on its own state — safe because no two goroutines ever touch the
// same body or accumulate into shared state. Constraint solving is never
// run through this helper; it stays strictly sequential in insertion order
// so results stay reproducible.
func task[T any](workersCount int, items []T, fn func(item T)) {
	if workersCount <= 1 || len(items) <= 1 {
		for _, item := range items {
			fn(item)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (len(items) + workersCount - 1) / workersCount

	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))
		wg.Add(1)
		go func(chunk []T) {
			defer wg.Done()
			for _, item := range chunk {
				fn(item)
			}
		}(items[start:end])
	}
	wg.Wait()
}
