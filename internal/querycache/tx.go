package querycache

import (
	"context"
	"errors"
	"fmt"
)

var ErrTxDone = errors.New("querycache: transaction already settled")

// ApplyFunc derives the optimistic value from the current one. found is false when the key is absent.
type ApplyFunc func(current []byte, found bool) ([]byte, error)

// Tx is an optimistic write: the snapshot taken before apply, the applied value, and the
// means to restore the snapshot. A later Begin on the same key supersedes this one, after
// which Rollback leaves the newer value alone.
type Tx struct {
	cache    *Cache
	key      Key
	raw      string
	seq      uint64
	snapshot Entry
	hadPrior bool
	done     bool
}

// Begin snapshots key, applies the optimistic value and returns the transaction.
func (c *Cache) Begin(ctx context.Context, key Key, apply ApplyFunc) (*Tx, error) {
	k := key.String()

	c.txMu.Lock()
	defer c.txMu.Unlock()

	prior, found, err := c.backend.Load(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", k, err)
	}

	next, err := apply(prior.Value, found)
	if err != nil {
		return nil, err
	}
	if err := c.backend.Store(ctx, k, Entry{Value: next, StoredAt: c.now()}); err != nil {
		return nil, fmt.Errorf("failed to apply optimistic value for %s: %w", k, err)
	}

	c.txSeq++
	c.latest[k] = c.txSeq

	return &Tx{
		cache:    c,
		key:      key,
		raw:      k,
		seq:      c.txSeq,
		snapshot: prior,
		hadPrior: found,
	}, nil
}

// Key returns the key the transaction writes.
func (t *Tx) Key() Key {
	return t.key
}

// Superseded reports whether a newer transaction on the same key has started.
func (t *Tx) Superseded() bool {
	t.cache.txMu.Lock()
	defer t.cache.txMu.Unlock()
	return t.cache.latest[t.raw] != t.seq
}

// Commit keeps the optimistic value and marks it stale so the next read revalidates.
func (t *Tx) Commit(ctx context.Context) error {
	return t.finish(ctx, false)
}

// Rollback restores the exact pre-transaction entry, or its absence, unless superseded.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.finish(ctx, true)
}

// Settle commits when mutationErr is nil and rolls back otherwise.
func (t *Tx) Settle(ctx context.Context, mutationErr error) error {
	return t.finish(ctx, mutationErr != nil)
}

func (t *Tx) finish(ctx context.Context, rollback bool) error {
	c := t.cache
	c.txMu.Lock()
	defer c.txMu.Unlock()

	if t.done {
		return ErrTxDone
	}
	t.done = true

	if c.latest[t.raw] != t.seq {
		return nil
	}
	delete(c.latest, t.raw)

	if rollback {
		var err error
		if t.hadPrior {
			err = c.backend.Store(ctx, t.raw, t.snapshot)
		} else {
			err = c.backend.Delete(ctx, t.raw)
		}
		if err != nil {
			return fmt.Errorf("failed to roll back %s: %w", t.raw, err)
		}
	}

	c.epoch.Add(1)
	if err := c.backend.MarkStale(ctx, t.raw); err != nil {
		return fmt.Errorf("failed to revalidate %s: %w", t.raw, err)
	}
	return nil
}
