// Package cache holds the client-side lists that searches and live
// synchronization keep current. Lists are keyed (one per campaign query or
// per session transcript) and only change through Replace and Patch.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/lorekeeper/pkg/types"
)

// ErrUnknownPolicy is returned for an unrecognized delete policy name
var ErrUnknownPolicy = errors.New("unknown delete policy")

// Item is a cacheable value with a stable identity
type Item[T any] interface {
	EntityID() string
	Clone() T
}

// DeletePolicy controls how delete patches are applied
type DeletePolicy string

const (
	// DeleteRetain keeps the item visible and marks it tombstoned
	DeleteRetain DeletePolicy = "retain"
	// DeletePrune removes the item from the list
	DeletePrune DeletePolicy = "prune"
	// DeleteIgnore leaves the list untouched
	DeleteIgnore DeletePolicy = "ignore"
)

// ParseDeletePolicy validates a policy name; empty means retain
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch p := DeletePolicy(s); p {
	case "":
		return DeleteRetain, nil
	case DeleteRetain, DeletePrune, DeleteIgnore:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Options configures a Cache
type Options[T any] struct {
	// Less orders a list. Nil means new items are prepended.
	Less func(a, b T) bool
	// Delete is the delete policy; the zero value is DeleteRetain
	Delete DeletePolicy
}

// list is one keyed list plus its bookkeeping
type list[T any] struct {
	items      []T
	tombstones map[string]struct{}
	issued     uint64 // last sequence handed out by Begin
	applied    uint64 // sequence of the last accepted Replace
}

// Cache is a set of keyed lists guarded by a mutex. Values are copied in on
// write and copied out on read.
type Cache[T Item[T]] struct {
	mu        sync.Mutex
	lists     map[string]*list[T]
	less      func(a, b T) bool
	policy    DeletePolicy
	listeners map[string]map[int]func([]T)
	nextID    int
}

// New creates an empty cache
func New[T Item[T]](opts Options[T]) *Cache[T] {
	policy := opts.Delete
	if policy == "" {
		policy = DeleteRetain
	}
	return &Cache[T]{
		lists:     make(map[string]*list[T]),
		less:      opts.Less,
		policy:    policy,
		listeners: make(map[string]map[int]func([]T)),
	}
}

// Policy returns the configured delete policy
func (c *Cache[T]) Policy() DeletePolicy {
	return c.policy
}

func (c *Cache[T]) listFor(key string) *list[T] {
	l, ok := c.lists[key]
	if !ok {
		l = &list[T]{tombstones: make(map[string]struct{})}
		c.lists[key] = l
	}
	return l
}

// Begin reserves the next sequence number for a fetch of key
func (c *Cache[T]) Begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.listFor(key)
	l.issued++
	return l.issued
}

// Replace seeds key with items fetched under seq. A response older than the
// last accepted one is discarded and Replace returns false.
func (c *Cache[T]) Replace(key string, seq uint64, items []T) bool {
	c.mu.Lock()
	l := c.listFor(key)
	if seq < l.applied {
		c.mu.Unlock()
		return false
	}
	l.applied = seq
	if seq > l.issued {
		l.issued = seq
	}

	l.items = cloneAll(items)
	if c.less != nil {
		sort.SliceStable(l.items, func(i, j int) bool { return c.less(l.items[i], l.items[j]) })
	}
	l.tombstones = make(map[string]struct{})

	snapshot, fns := c.notifyLocked(key, l)
	c.mu.Unlock()

	fire(fns, snapshot)
	return true
}

// Patch applies one mutation to key and reports whether the list changed.
// Insert and update are upserts: an update for an absent item inserts it,
// an insert for a present item replaces it.
func (c *Cache[T]) Patch(key string, op types.Operation, item T) bool {
	c.mu.Lock()
	l := c.listFor(key)
	id := item.EntityID()

	var changed bool
	switch op {
	case types.OpInsert, types.OpUpdate:
		c.upsertLocked(l, item.Clone())
		delete(l.tombstones, id)
		changed = true
	case types.OpDelete:
		changed = c.deleteLocked(l, id)
	}

	return c.finish(key, l, changed)
}

// Delete applies a delete for id under the configured policy
func (c *Cache[T]) Delete(key, id string) bool {
	c.mu.Lock()
	l := c.listFor(key)
	return c.finish(key, l, c.deleteLocked(l, id))
}

// finish releases the lock taken by the caller and notifies listeners when
// the list changed
func (c *Cache[T]) finish(key string, l *list[T], changed bool) bool {
	if !changed {
		c.mu.Unlock()
		return false
	}
	snapshot, fns := c.notifyLocked(key, l)
	c.mu.Unlock()

	fire(fns, snapshot)
	return true
}

func (c *Cache[T]) upsertLocked(l *list[T], item T) {
	idx := indexOf(l.items, item.EntityID())

	if c.less == nil {
		if idx >= 0 {
			l.items[idx] = item
			return
		}
		l.items = append([]T{item}, l.items...)
		return
	}

	// Ordered lists re-place the item in case its sort key changed
	if idx >= 0 {
		l.items = append(l.items[:idx], l.items[idx+1:]...)
	}
	pos := sort.Search(len(l.items), func(i int) bool { return c.less(item, l.items[i]) })
	l.items = append(l.items, item)
	copy(l.items[pos+1:], l.items[pos:])
	l.items[pos] = item
}

func (c *Cache[T]) deleteLocked(l *list[T], id string) bool {
	idx := indexOf(l.items, id)
	if idx < 0 {
		return false
	}
	switch c.policy {
	case DeletePrune:
		l.items = append(l.items[:idx], l.items[idx+1:]...)
		delete(l.tombstones, id)
		return true
	case DeleteRetain:
		if _, ok := l.tombstones[id]; ok {
			return false
		}
		l.tombstones[id] = struct{}{}
		return true
	default:
		return false
	}
}

// Get returns a copy of the list for key
func (c *Cache[T]) Get(key string) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lists[key]
	if !ok {
		return []T{}
	}
	return cloneAll(l.items)
}

// Has reports whether key has been seeded or patched
func (c *Cache[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lists[key]
	return ok
}

// Tombstoned reports whether id was deleted under the retain policy
func (c *Cache[T]) Tombstoned(key, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lists[key]
	if !ok {
		return false
	}
	_, dead := l.tombstones[id]
	return dead
}

// OnUpdate registers fn to run with a snapshot of key after every applied
// Replace or Patch. The returned func unregisters it.
func (c *Cache[T]) OnUpdate(key string, fn func([]T)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.listeners[key] == nil {
		c.listeners[key] = make(map[int]func([]T))
	}
	c.listeners[key][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[key], id)
		if len(c.listeners[key]) == 0 {
			delete(c.listeners, key)
		}
	}
}

// notifyLocked captures the listeners and a snapshot to hand them
func (c *Cache[T]) notifyLocked(key string, l *list[T]) ([]T, []func([]T)) {
	registered := c.listeners[key]
	if len(registered) == 0 {
		return nil, nil
	}
	ids := make([]int, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func([]T), len(ids))
	for i, id := range ids {
		fns[i] = registered[id]
	}
	return cloneAll(l.items), fns
}

// fire hands each listener its own copy of snapshot
func fire[T Item[T]](fns []func([]T), snapshot []T) {
	for i, fn := range fns {
		if i == 0 {
			fn(snapshot)
			continue
		}
		fn(cloneAll(snapshot))
	}
}

func indexOf[T Item[T]](items []T, id string) int {
	for i := range items {
		if items[i].EntityID() == id {
			return i
		}
	}
	return -1
}

func cloneAll[T Item[T]](items []T) []T {
	out := make([]T, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}
