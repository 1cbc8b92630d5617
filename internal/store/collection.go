package store

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	apperrors "github.com/alexjbarnes/openid-store/internal/errors"
)

type entry[E any] struct {
	seq   uint64
	value *E
}

// collection is a concurrency-safe map from public identifier to record
// that remembers insertion order. Stored values are never mutated in
// place: every write swaps in a fresh copy, so a snapshot of pointers can
// be read after the lock is released.
type collection[E any] struct {
	mu      sync.RWMutex
	entries map[string]entry[E]
	ids     map[int64]string
	seq     uint64

	// physID points at the physical identifier inside a record.
	physID func(*E) *int64

	// lastID is the last physical identifier handed out. It only grows,
	// so identifiers are never reused after a delete.
	lastID atomic.Int64

	// conflict reports a uniqueness violation between a candidate and a
	// record stored under a different key. Called with mu held.
	conflict func(candidate, existing *E) error
}

func newCollection[E any](physID func(*E) *int64, conflict func(candidate, existing *E) error) *collection[E] {
	return &collection[E]{
		entries:  make(map[string]entry[E]),
		ids:      make(map[int64]string),
		physID:   physID,
		conflict: conflict,
	}
}

func (c *collection[E]) nextID() int64 {
	return c.lastID.Add(1)
}

// observeID moves the counter past an identifier assigned elsewhere, for
// example one restored from a snapshot.
func (c *collection[E]) observeID(id int64) {
	for {
		cur := c.lastID.Load()
		if id <= cur || c.lastID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// insert adds a record under a new key. A record without a physical
// identifier gets the next one from the counter, written into v. It fails
// if the key or the physical identifier is taken, or the record conflicts
// with another one.
func (c *collection[E]) insert(key string, v *E) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return fmt.Errorf("%w: identifier %q already exists", apperrors.ErrDuplicateKey, key)
	}

	return c.add(key, v)
}

// put inserts or replaces the record at key. A replaced record keeps its
// position in insertion order and its physical identifier; an inserted
// one is assigned an identifier as by insert.
func (c *collection[E]) put(key string, v *E) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return c.add(key, v)
	}

	if err := c.checkConflicts(key, v); err != nil {
		return err
	}

	*c.physID(v) = *c.physID(e.value)
	e.value = v
	c.entries[key] = e

	return nil
}

// add stores v under a key that is not yet present. Called with mu held.
func (c *collection[E]) add(key string, v *E) error {
	id := c.physID(v)
	if *id > 0 {
		if _, ok := c.ids[*id]; ok {
			return fmt.Errorf("%w: physical identifier %d already exists", apperrors.ErrDuplicateKey, *id)
		}
	}

	if err := c.checkConflicts(key, v); err != nil {
		return err
	}

	if *id <= 0 {
		*id = c.nextID()
	} else {
		c.observeID(*id)
	}

	c.seq++
	c.entries[key] = entry[E]{seq: c.seq, value: v}
	c.ids[*id] = key

	return nil
}

func (c *collection[E]) checkConflicts(key string, v *E) error {
	if c.conflict == nil {
		return nil
	}

	for k, e := range c.entries {
		if k == key {
			continue
		}
		if err := c.conflict(v, e.value); err != nil {
			return err
		}
	}

	return nil
}

// remove deletes the record at key, reporting whether it was present.
func (c *collection[E]) remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	delete(c.ids, *c.physID(e.value))

	return true
}

func (c *collection[E]) get(key string) (*E, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return e.value, ok
}

func (c *collection[E]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// snapshot returns the stored records in insertion order.
func (c *collection[E]) snapshot() []*E {
	c.mu.RLock()
	list := make([]entry[E], 0, len(c.entries))
	for _, e := range c.entries {
		list = append(list, e)
	}
	c.mu.RUnlock()

	slices.SortFunc(list, func(a, b entry[E]) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	out := make([]*E, len(list))
	for i, e := range list {
		out[i] = e.value
	}

	return out
}

// removeWhere deletes every record matching pred and returns how many
// were removed. The whole pass runs under the write lock. If ctx is
// cancelled during the scan nothing is deleted.
func (c *collection[E]) removeWhere(ctx context.Context, pred func(*E) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string

	for k, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if pred(e.value) {
			keys = append(keys, k)
		}
	}

	for _, k := range keys {
		delete(c.ids, *c.physID(c.entries[k].value))
		delete(c.entries, k)
	}

	return len(keys), nil
}

// first returns the first record in insertion order matching pred.
func (c *collection[E]) first(ctx context.Context, pred func(*E) bool) (*E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, v := range c.snapshot() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pred(v) {
			return v, nil
		}
	}

	return nil, nil
}

// scan returns a lazy sequence over the records matching pred. The
// snapshot is taken when iteration starts; the sequence is single-use and
// a second range over it yields nothing. Cancellation is reported as a
// final (nil, ctx.Err()) pair.
func (c *collection[E]) scan(ctx context.Context, offset, count int, pred func(*E) bool, clone func(*E) *E) iter.Seq2[*E, error] {
	var used atomic.Bool

	return func(yield func(*E, error) bool) {
		if used.Swap(true) {
			return
		}

		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		skipped, emitted := 0, 0

		for _, v := range c.snapshot() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			if pred != nil && !pred(v) {
				continue
			}

			if skipped < offset {
				skipped++
				continue
			}

			if !yield(clone(v), nil) {
				return
			}

			emitted++
			if count > 0 && emitted >= count {
				return
			}
		}
	}
}
