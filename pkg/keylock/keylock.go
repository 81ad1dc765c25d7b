// Package keylock serialises work per key with a fixed array of mutexes.
// Keys that hash to the same shard share a lock, which only costs
// parallelism.
package keylock

import (
	"hash/fnv"
	"sync"
)

const numShards = 128

type Locks struct {
	shards [numShards]sync.Mutex
}

// Lock acquires the shard for key and returns its unlock func.
func (l *Locks) Lock(key []byte) func() {
	m := &l.shards[shardFor(key)]
	m.Lock()
	return m.Unlock
}

func shardFor(key []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return h.Sum32() % numShards
}
