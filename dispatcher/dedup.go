/*
dedup.go - the operation-ID dedup store of spec §4.6: a process-wide set of
recently-seen operation identifiers with a ~60s TTL. Mirrors the teacher's
store/sqlite vs generic/store(in-memory) split: DedupStore has a Redis-backed
implementation for multi-process deployments and a rendezvous-hash-sharded
in-memory fallback for the single-process default.
*/
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/dgryski/go-rendezvous"
	"github.com/redis/go-redis/v9"
)

// DedupTTL is the ~60s window spec §4.6 names for operation-ID dedup.
const DedupTTL = 60 * time.Second

// DedupStore records operation identifiers and reports whether one has
// already been seen within the TTL window. Seen is atomic: a concurrent
// call with the same id observes exactly one "not seen" result.
type DedupStore interface {
	Seen(ctx context.Context, operationID string) (alreadySeen bool, err error)
}

// RedisDedupStore backs DedupStore with a Redis SETNX + expiry, for
// multi-process deployments sharing one dedup window.
type RedisDedupStore struct {
	Client *redis.Client
	Prefix string
}

func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{Client: client, Prefix: "posengine:dedup:"}
}

func (r *RedisDedupStore) Seen(ctx context.Context, operationID string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, r.Prefix+operationID, 1, DedupTTL).Result()
	if err != nil {
		return false, err
	}
	// SetNX returns true when the key was newly set, i.e. NOT seen before.
	return !ok, nil
}

// shardedMemoryDedupStore is the single-process fallback: operation IDs are
// sharded across N independent mutex-guarded maps via rendezvous hashing,
// so dedup lookups don't serialize on one global lock.
type shardedMemoryDedupStore struct {
	shards    []*dedupShard
	shardByID map[string]int
	hasher    *rendezvous.Rendezvous
}

type dedupShard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewInMemoryDedupStore builds a shardCount-way sharded dedup store.
func NewInMemoryDedupStore(shardCount int) DedupStore {
	if shardCount < 1 {
		shardCount = 1
	}
	nodes := make([]string, shardCount)
	shards := make([]*dedupShard, shardCount)
	shardByID := make(map[string]int, shardCount)
	for i := 0; i < shardCount; i++ {
		label := shardLabel(i)
		nodes[i] = label
		shards[i] = &dedupShard{entries: make(map[string]time.Time)}
		shardByID[label] = i
	}
	return &shardedMemoryDedupStore{
		shards:    shards,
		shardByID: shardByID,
		hasher:    rendezvous.New(nodes, hashString),
	}
}

func (s *shardedMemoryDedupStore) Seen(ctx context.Context, operationID string) (bool, error) {
	shard := s.shards[s.shardByID[s.hasher.Lookup(operationID)]]
	now := time.Now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if seenAt, ok := shard.entries[operationID]; ok && now.Sub(seenAt) < DedupTTL {
		return true, nil
	}
	shard.entries[operationID] = now
	s.sweep(shard, now)
	return false, nil
}

// sweep evicts expired entries opportunistically; called with shard.mu held.
func (s *shardedMemoryDedupStore) sweep(shard *dedupShard, now time.Time) {
	if len(shard.entries) < 1024 {
		return
	}
	for id, at := range shard.entries {
		if now.Sub(at) >= DedupTTL {
			delete(shard.entries, id)
		}
	}
}

func shardLabel(i int) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[i%16], digits[(i/16)%16]})
}

func hashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
