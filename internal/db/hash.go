package db

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// hasher runs bcrypt with a bound on how many hashes are computed at once, so
// a burst of logins can't starve the goroutines serving connections.
type hasher struct {
	cost int
	sem  *semaphore.Weighted
}

func newHasher(cost int, workers int) *hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
}

func (h *hasher) hash(ctx context.Context, password string) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.sem.Release(1)

	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return nil, fmt.Errorf("db: Error hashing password (%w).", err)
	}
	return digest, nil
}

func (h *hasher) verify(ctx context.Context, password string, digest []byte) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword(digest, []byte(password)) == nil
}
