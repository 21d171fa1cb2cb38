package ledger

import (
	"crypto/sha1"
	"encoding/binary"
	"sync"
)

const stripeCount = 64 // tune: 16/64/128 depending on pair contention

// pairLocks serializes counter mutations per directed pair. Two pairs may
// share a stripe, which only widens the critical section, never narrows it.
// Locks are not reentrant: callers must release one pair before locking
// another, never nest acquisitions.
type pairLocks struct {
	stripes [stripeCount]sync.Mutex
}

func newPairLocks() *pairLocks {
	return &pairLocks{}
}

// lock acquires the stripe owning pairKey and returns its release func.
func (l *pairLocks) lock(pairKey string) func() {
	m := &l.stripes[stripeOf(pairKey)]
	m.Lock()
	return m.Unlock
}

func stripeOf(pairKey string) uint32 {
	if pairKey == "" {
		return 0
	}

	h := sha1.Sum([]byte(pairKey))
	return binary.BigEndian.Uint32(h[:4]) % stripeCount
}
