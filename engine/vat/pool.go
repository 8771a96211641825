package vat

import (
	"context"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-vat/common"
)

// BakeAll runs bakers concurrently on a worker pool and blocks until all of them finish.
// Bakers over the same skeleton are not serialized: the later one fails with ErrSkeletonClaimed.
//
// Parameters:
//   - ctx: cancels every bake
//   - bakers: the bakers to run
//   - workers: the maximum number of concurrent bakes, values below 1 mean one
//
// Returns:
//   - []error: one entry per baker, nil on success
func BakeAll(ctx context.Context, bakers []Baker, workers int) []error {
	errs := make([]error, len(bakers))
	if len(bakers) == 0 {
		return errs
	}
	workers = max(1, min(workers, len(bakers)))

	pool := worker.NewDynamicWorkerPool(workers, len(bakers), 1*time.Second)
	defer pool.Stop()

	// pool.Wait() waits on worker exit rather than task completion, so a WaitGroup is the barrier.
	var wg sync.WaitGroup
	for i, b := range bakers {
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID:      i,
			Payload: b.ID(),
			Do: func() (any, error) {
				defer wg.Done()
				errs[i] = b.Bake(ctx)
				return nil, errs[i]
			},
		})
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	common.Logger().Info("bake batch finished", "bakes", len(bakers), "failed", failed, "workers", workers)
	return errs
}
