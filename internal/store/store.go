// Package store implements the thread-safe in-memory key/value store:
// expiration, memory-bounded LRU eviction, CAS semantics, and the mutating
// variants (set/add/replace/append/prepend/incr/decr) described in §4.2 of
// the specification.
//
// Concurrency policy (§4.2): the key map and the LRU bookkeeping sit behind
// a single RWMutex acquired at operation granularity. The CAS counter,
// access-sequence counter, and memory-used counter are lock-free atomics
// (go.uber.org/atomic, matching the teacher's own indirect dependency) so
// that CAS token uniqueness holds across concurrent writers. Eviction runs
// entirely under the write lock held by the inserting operation.
package store

import (
	"container/heap"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Result is the outcome of a store operation. It replaces exceptions/errors
// for control flow, per spec §9 — every fallible boundary returns a tagged
// value.
type Result int

const (
	Stored Result = iota
	NotStored
	Exists
	NotFound
	CasMismatch
	Deleted
)

func (r Result) String() string {
	switch r {
	case Stored:
		return "STORED"
	case NotStored:
		return "NOT_STORED"
	case Exists:
		return "EXISTS"
	case NotFound:
		return "NOT_FOUND"
	case CasMismatch:
		return "CAS_MISMATCH"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Stats is a point-in-time snapshot for the `stats`/`DBSIZE` surfaces.
type Stats struct {
	ItemCount  int
	MemoryUsed int64
	MaxMemory  int64
	CAS        uint64
}

// Config bounds a Store's behavior. MaxMemory is fixed after New; the
// default TTL can be changed later with SetDefaultTTL.
type Config struct {
	MaxMemory  int64         // bytes; 0 means unbounded
	DefaultTTL time.Duration // applied when an op's ttl argument is 0
}

// Store is the shared, multi-reader/single-writer key/value map. The zero
// value is not usable; construct with New.
type Store struct {
	mu        sync.RWMutex
	data      map[string]*Item
	accessSeq map[string]int64
	lru       lruHeap

	casCounter atomic.Uint64
	seqCounter atomic.Int64
	memUsed    atomic.Int64

	maxMemory  int64
	defaultTTL atomic.Duration

	sweepGroup singleflight.Group
	log        *zap.Logger
}

// New constructs an empty Store bounded by cfg.
func New(cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		data:      make(map[string]*Item),
		accessSeq: make(map[string]int64),
		maxMemory: cfg.MaxMemory,
		log:       log,
	}
	s.defaultTTL.Store(cfg.DefaultTTL)
	return s
}

// SetDefaultTTL updates the TTL applied when an op's ttl argument is 0. It is
// safe to call concurrently with in-flight operations — config.WatchConfig
// calls this from a fsnotify callback goroutine while workers keep serving.
func (s *Store) SetDefaultTTL(d time.Duration) {
	s.defaultTTL.Store(d)
}

func (s *Store) nextCAS() uint64 { return s.casCounter.Add(1) }
func (s *Store) nextSeq() int64  { return s.seqCounter.Add(1) }

// touch records key as just-accessed; caller holds s.mu for writing.
func (s *Store) touch(key string) {
	seq := s.nextSeq()
	s.accessSeq[key] = seq
	heap.Push(&s.lru, lruEntry{key: key, seq: seq})
}

// removeLocked deletes key from every bookkeeping structure and accounts for
// the freed memory. Caller holds s.mu for writing.
func (s *Store) removeLocked(key string) {
	it, ok := s.data[key]
	if !ok {
		return
	}
	delete(s.data, key)
	delete(s.accessSeq, key)
	s.memUsed.Sub(memFootprint(key, it.Value))
}

// reserve makes room for `needed` additional bytes by evicting the
// least-recently-used live keys until used+needed<=max, or until no
// evictable key remains (in which case the limit is allowed to be briefly
// exceeded — spec §4.2/§9, deliberate and preserved). Caller holds s.mu.
func (s *Store) reserve(needed int64) {
	if s.maxMemory <= 0 {
		return
	}
	for s.memUsed.Load()+needed > s.maxMemory {
		var victim string
		found := false
		for s.lru.Len() > 0 {
			e := heap.Pop(&s.lru).(lruEntry)
			if cur, ok := s.accessSeq[e.key]; ok && cur == e.seq {
				victim = e.key
				found = true
				break
			}
			// stale heap entry (key since re-touched or removed): skip it
		}
		if !found {
			return
		}
		s.removeLocked(victim)
	}
}

// insertLocked stores (or replaces) key with value/flags/ttl, evicting as
// needed, and returns the new item. Caller holds s.mu.
func (s *Store) insertLocked(now time.Time, key string, value []byte, flags uint32, ttl time.Duration) *Item {
	// Drop any old entry first so reserve cannot pick it as a victim and
	// subtract its footprint a second time.
	s.removeLocked(key)
	s.reserve(memFootprint(key, value))

	it := &Item{
		Value:     value,
		Flags:     flags,
		ExpiresAt: resolveExpiry(now, ttl, s.defaultTTL.Load()),
		CAS:       s.nextCAS(),
	}
	s.data[key] = it
	s.memUsed.Add(memFootprint(key, value))
	s.touch(key)
	return it
}

// getLocked returns the live item for key, removing it first if it has
// expired. Caller holds s.mu for writing (expiration may mutate state).
func (s *Store) getLocked(now time.Time, key string) (*Item, bool) {
	it, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if it.expired(now) {
		s.removeLocked(key)
		return nil, false
	}
	return it, true
}

// Get returns a copy of the item stored at key, or ok=false if absent or
// expired (in which case the expired entry is removed first).
func (s *Store) Get(key string) (Item, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.getLocked(now, key)
	if !ok {
		return Item{}, false
	}
	s.touch(key)
	return *it, true
}

// GetMulti returns the live items among keys as a map keyed by key (so in no
// particular order), omitting absent or expired ones (which are removed as a
// side effect).
func (s *Store) GetMulti(keys []string) map[string]Item {
	now := time.Now()
	out := make(map[string]Item, len(keys))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if it, ok := s.getLocked(now, k); ok {
			out[k] = *it
			s.touch(k)
		}
	}
	return out
}

// Set unconditionally stores value under key, always returning Stored.
func (s *Store) Set(key string, value []byte, flags uint32, ttl time.Duration) (Result, uint64) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.insertLocked(now, key, value, flags, ttl)
	return Stored, it.CAS
}

// Add stores value iff key is absent or expired.
func (s *Store) Add(key string, value []byte, flags uint32, ttl time.Duration) (Result, uint64) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getLocked(now, key); ok {
		return NotStored, 0
	}
	it := s.insertLocked(now, key, value, flags, ttl)
	return Stored, it.CAS
}

// Replace stores value iff key is present and live.
func (s *Store) Replace(key string, value []byte, flags uint32, ttl time.Duration) (Result, uint64) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getLocked(now, key); !ok {
		return NotStored, 0
	}
	it := s.insertLocked(now, key, value, flags, ttl)
	return Stored, it.CAS
}

// Append adds data to the end of the value stored at key, iff key is
// present and live.
func (s *Store) Append(key string, data []byte) (Result, uint64) {
	return s.extend(key, data, true)
}

// Prepend adds data to the start of the value stored at key, iff key is
// present and live.
func (s *Store) Prepend(key string, data []byte) (Result, uint64) {
	return s.extend(key, data, false)
}

func (s *Store) extend(key string, data []byte, append_ bool) (Result, uint64) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.getLocked(now, key)
	if !ok {
		return NotStored, 0
	}
	var merged []byte
	if append_ {
		merged = make([]byte, 0, len(it.Value)+len(data))
		merged = append(merged, it.Value...)
		merged = append(merged, data...)
	} else {
		merged = make([]byte, 0, len(it.Value)+len(data))
		merged = append(merged, data...)
		merged = append(merged, it.Value...)
	}
	newIt := s.insertLocked(now, key, merged, it.Flags, time.Until(it.ExpiresAt))
	if it.ExpiresAt.IsZero() {
		newIt.ExpiresAt = time.Time{}
	}
	return Stored, newIt.CAS
}

// Cas performs a compare-and-swap: NotFound if absent/expired, CasMismatch
// if token differs from the stored CAS, else Stored.
func (s *Store) Cas(key string, value []byte, flags uint32, ttl time.Duration, token uint64) (Result, uint64) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.getLocked(now, key)
	if !ok {
		return NotFound, 0
	}
	if it.CAS != token {
		return CasMismatch, 0
	}
	newIt := s.insertLocked(now, key, value, flags, ttl)
	return Stored, newIt.CAS
}

// Delete removes key, returning Deleted if it was present or NotFound
// otherwise (an expired-but-present key also reports NotFound, per §4.2's
// "indistinguishable from absent" invariant).
func (s *Store) Delete(key string) Result {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getLocked(now, key); !ok {
		return NotFound
	}
	s.removeLocked(key)
	return Deleted
}

// IncrDecr applies delta to the unsigned 64-bit decimal stored at key: incr
// wraps on overflow, decr saturates at zero. Returns the new value and
// whether the stored bytes parsed as a valid unsigned 64-bit decimal.
func (s *Store) IncrDecr(key string, delta uint64, decr bool) (Result, uint64, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.getLocked(now, key)
	if !ok {
		return NotFound, 0, true
	}
	cur, err := strconv.ParseUint(string(it.Value), 10, 64)
	if err != nil {
		return NotFound, 0, false
	}
	var next uint64
	if decr {
		if cur < delta {
			next = 0
		} else {
			next = cur - delta
		}
	} else {
		next = cur + delta // wraps on overflow per uint64 semantics
	}
	rewritten := []byte(strconv.FormatUint(next, 10))
	newIt := s.insertLocked(now, key, rewritten, it.Flags, time.Until(it.ExpiresAt))
	if it.ExpiresAt.IsZero() {
		newIt.ExpiresAt = time.Time{}
	}
	return Stored, next, true
}

// FlushAll drops every item and resets the memory counter. The CAS counter
// is never reset (spec §4.2).
func (s *Store) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*Item)
	s.accessSeq = make(map[string]int64)
	s.lru = nil
	s.memUsed.Store(0)
}

// StatsSnapshot returns a point-in-time view of item count / memory use.
func (s *Store) StatsSnapshot() Stats {
	s.mu.RLock()
	n := len(s.data)
	s.mu.RUnlock()
	return Stats{
		ItemCount:  n,
		MemoryUsed: s.memUsed.Load(),
		MaxMemory:  s.maxMemory,
		CAS:        s.casCounter.Load(),
	}
}

// CleanupExpired sweeps every item and removes the expired ones, returning
// the count removed. Concurrent calls collapse into one actual pass via
// singleflight, since they'd otherwise contend for the same write lock doing
// duplicate work.
func (s *Store) CleanupExpired() int {
	v, _, _ := s.sweepGroup.Do("sweep", func() (any, error) {
		now := time.Now()
		var expired []string
		s.mu.RLock()
		for k, it := range s.data {
			if it.expired(now) {
				expired = append(expired, k)
			}
		}
		s.mu.RUnlock()
		if len(expired) == 0 {
			return 0, nil
		}
		s.mu.Lock()
		removed := 0
		for _, k := range expired {
			if it, ok := s.data[k]; ok && it.expired(now) {
				s.removeLocked(k)
				removed++
			}
		}
		s.mu.Unlock()
		if removed > 0 {
			s.log.Debug("cleanup swept expired keys", zap.Int("count", removed))
		}
		return removed, nil
	})
	return v.(int)
}
