package register

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripeCount = 64

// stripedLocks serializes read-modify-write sequences per document id
// without a global lock. Two documents may share a stripe; that only costs
// throughput, never correctness.
type stripedLocks struct {
	stripes [lockStripeCount]sync.Mutex
}

func (l *stripedLocks) forKey(key string) *sync.Mutex {
	return &l.stripes[xxhash.Sum64String(key)%lockStripeCount]
}
