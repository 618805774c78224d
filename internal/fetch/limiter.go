// SPDX-License-Identifier: MIT

package fetch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// limiterCapacity is divisible by every batch size in [MinBatchSize,
// MaxBatchSize], so a fetch weighs exactly capacity/batchSize.
const limiterCapacity = 232792560

// Limiter caps in-flight segment fetches across every Fetcher sharing it.
// A fetch made under batch size n takes 1/n of the capacity, so at most n
// such fetches run at once regardless of how many jobs issue them.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter returns an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(limiterCapacity)}
}

// acquire blocks until one fetch under batchSize may start or ctx ends.
func (l *Limiter) acquire(ctx context.Context, batchSize int) (release func(), err error) {
	weight := int64(limiterCapacity / ClampBatchSize(batchSize))
	if err := l.sem.Acquire(ctx, weight); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(weight) }, nil
}
