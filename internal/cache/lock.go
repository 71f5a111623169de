package cache

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 128

// keyedMutex serializes operations per username while leaving distinct
// usernames fully concurrent. Striping bounds memory; two usernames
// sharing a stripe only cost serialization, never correctness.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m
}
