package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var (
	keyPrefix = []byte("checkpoint/")
	keyEnd    = []byte("checkpoint0")
)

// PebbleStore keeps checkpoints in a pebble database.
type PebbleStore struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex
}

// OpenPebble opens the store under dir. An empty dir keeps everything in memory.
func OpenPebble(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 * 1024 * 1024),
		MemTableSize: 4 * 1024 * 1024,
	}
	defer opts.Cache.Unref()
	if dir == "" {
		opts.FS = vfs.NewMem()
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func key(flowID string) []byte {
	return append(append([]byte(nil), keyPrefix...), flowID...)
}

func (p *PebbleStore) Save(_ context.Context, cp Checkpoint) error {
	value, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", cp.FlowID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.db.Set(key(cp.FlowID), value, pebble.Sync)
}

func (p *PebbleStore) Load(_ context.Context, flowID string) (Checkpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return Checkpoint{}, ErrClosed
	}

	value, closer, err := p.db.Get(key(flowID))
	if errors.Is(err, pebble.ErrNotFound) {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrNotFound, flowID)
	}
	if err != nil {
		return Checkpoint{}, err
	}
	defer closer.Close()

	var cp Checkpoint
	if err := json.Unmarshal(value, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", flowID, err)
	}
	return cp, nil
}

func (p *PebbleStore) Delete(_ context.Context, flowID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.db.Delete(key(flowID), pebble.Sync)
}

// List returns every stored checkpoint ordered by flow id.
func (p *PebbleStore) List(_ context.Context) ([]Checkpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: keyPrefix, UpperBound: keyEnd})
	if err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	defer iter.Close()

	var out []Checkpoint
	for valid := iter.First(); valid; valid = iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}
		var cp Checkpoint
		if err := json.Unmarshal(value, &cp); err != nil {
			return nil, fmt.Errorf("decode checkpoint %s: %w", iter.Key(), err)
		}
		out = append(out, cp)
	}
	return out, iter.Error()
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
