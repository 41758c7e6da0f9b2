package store

import (
	"maps"
	"sync"
)

// List, Set and Hash are adapted from the teacher's Redis-style data
// structures. No wire protocol in this build exercises them (spec.md's
// RESP2 subset is string-only; see SPEC_FULL.md §12) — they are kept as
// adapted scaffolding for a future data-type command set, not as dead code:
// a RESP/memcached extension that wants LPUSH/SADD/HSET semantics can sit
// directly on top of these without touching Store's locking discipline.

// List is a doubly-linked list of byte-string values.
type List struct {
	mu     sync.RWMutex
	head   *listNode
	tail   *listNode
	length int
}

type listNode struct {
	value      []byte
	prev, next *listNode
}

func NewList() *List { return &List{} }

func (l *List) LeftPush(value []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := &listNode{value: value}
	if l.head == nil {
		l.head, l.tail = n, n
	} else {
		n.next = l.head
		l.head.prev = n
		l.head = n
	}
	l.length++
	return l.length
}

func (l *List) RightPush(value []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := &listNode{value: value}
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		l.tail.next = n
		n.prev = l.tail
		l.tail = n
	}
	l.length++
	return l.length
}

func (l *List) LeftPop() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.head == nil {
		return nil, false
	}
	v := l.head.value
	l.head = l.head.next
	if l.head != nil {
		l.head.prev = nil
	} else {
		l.tail = nil
	}
	l.length--
	return v, true
}

func (l *List) RightPop() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tail == nil {
		return nil, false
	}
	v := l.tail.value
	l.tail = l.tail.prev
	if l.tail != nil {
		l.tail.next = nil
	} else {
		l.head = nil
	}
	l.length--
	return v, true
}

func (l *List) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.length
}

func (l *List) Index(index int) ([]byte, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= l.length {
		return nil, false
	}
	cur := l.head
	for range index {
		cur = cur.next
	}
	return cur.value, true
}

func (l *List) Range(start, end int) [][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if start < 0 {
		start = 0
	}
	if end >= l.length {
		end = l.length - 1
	}
	if start > end {
		return [][]byte{}
	}
	out := make([][]byte, 0, end-start+1)
	cur := l.head
	for i := 0; i < start; i++ {
		cur = cur.next
	}
	for i := start; i <= end && cur != nil; i++ {
		out = append(out, cur.value)
		cur = cur.next
	}
	return out
}

// Set is an unordered hash set of strings.
type Set struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewSet() *Set { return &Set{members: make(map[string]struct{})} }

func (s *Set) Add(member string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.members[member]
	s.members[member] = struct{}{}
	return !exists
}

func (s *Set) Remove(member string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.members[member]
	delete(s.members, member)
	return exists
}

func (s *Set) Members() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	return out
}

func (s *Set) Card() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

func (s *Set) IsMember(member string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.members[member]
	return exists
}

// Hash is a field -> byte-string map.
type Hash struct {
	mu     sync.RWMutex
	fields map[string][]byte
}

func NewHash() *Hash { return &Hash{fields: make(map[string][]byte)} }

func (h *Hash) Set(field string, value []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, exists := h.fields[field]
	h.fields[field] = value
	return !exists
}

func (h *Hash) Get(field string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.fields[field]
	return v, ok
}

func (h *Hash) Del(field string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, exists := h.fields[field]
	delete(h.fields, field)
	return exists
}

func (h *Hash) GetAll() map[string][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][]byte, len(h.fields))
	maps.Copy(out, h.fields)
	return out
}

func (h *Hash) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.fields)
}

func (h *Hash) Exists(field string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.fields[field]
	return exists
}
