package kvstore

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"
)

type pebbleStore struct {
	db *pebble.DB
}

type pebbleIterator struct {
	snap *pebble.Snapshot
	it   *pebble.Iterator
	to   []byte
}

// NewPebbleStore opens or creates a pebble backed store in dataDir. Writes
// are not synced individually; Sync and Close make them durable. Iterators
// read from an engine snapshot taken when the iterator is created.
func NewPebbleStore(dataDir string, logger *log.Logger) (Store, error) {
	os.MkdirAll(dataDir, 0755)

	db, err := pebble.Open(dataDir, &pebble.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dataDir, err)
	}
	return &pebbleStore{
		db: db,
	}, nil
}

func (pst *pebbleStore) Get(key, def []byte) ([]byte, error) {
	if pst.db == nil {
		return nil, ErrClosed
	}

	val, closer, err := pst.db.Get(key)
	if err == pebble.ErrNotFound {
		return def, nil
	} else if err != nil {
		return nil, fmt.Errorf("pebble: get: %w", err)
	}
	defer closer.Close()

	return append([]byte{}, val...), nil
}

func (pst *pebbleStore) Put(key, val []byte) error {
	if pst.db == nil {
		return ErrClosed
	}

	err := pst.db.Set(key, val, pebble.NoSync)
	if err != nil {
		return fmt.Errorf("pebble: put: %w", err)
	}
	return nil
}

func (pst *pebbleStore) PutMany(entries []Entry) error {
	if pst.db == nil {
		return ErrClosed
	}

	b := pst.db.NewBatch()
	for _, ent := range entries {
		err := b.Set(ent.Key, ent.Value, nil)
		if err != nil {
			b.Close()
			return fmt.Errorf("pebble: put many: %w", err)
		}
	}
	err := b.Commit(pebble.NoSync)
	if err != nil {
		return fmt.Errorf("pebble: put many: %w", err)
	}
	return nil
}

func (pst *pebbleStore) iterate(from, to []byte) (*pebbleIterator, error) {
	if pst.db == nil {
		return nil, ErrClosed
	}

	snap := pst.db.NewSnapshot()
	it := snap.NewIter(nil)
	it.SeekGE(from)

	return &pebbleIterator{
		snap: snap,
		it:   it,
		to:   to,
	}, nil
}

func (pst *pebbleStore) Keys(from, to []byte) (KeyIterator, error) {
	it, err := pst.iterate(from, to)
	if err != nil {
		return nil, err
	}
	return keyIterator{it}, nil
}

func (pst *pebbleStore) Items(from, to []byte) (Iterator, error) {
	return pst.iterate(from, to)
}

func (pit *pebbleIterator) Item(fn func(key, val []byte) error) error {
	if !pit.it.Valid() {
		return io.EOF
	}

	key := pit.it.Key()
	if pastBound(key, pit.to) {
		return io.EOF
	}

	err := fn(key, pit.it.Value())
	if err != nil {
		return err
	}

	pit.it.Next()
	return nil
}

func (pit *pebbleIterator) Close() {
	pit.it.Close()
	if pit.snap != nil {
		pit.snap.Close()
	}
}

func (pst *pebbleStore) Sync() error {
	if pst.db == nil {
		return ErrClosed
	}
	err := pst.db.Flush()
	if err != nil {
		return fmt.Errorf("pebble: sync: %w", err)
	}
	return nil
}

func (pst *pebbleStore) Close() error {
	if pst.db == nil {
		return ErrClosed
	}

	err := pst.db.Flush()
	if err == nil {
		err = pst.db.Close()
	} else {
		pst.db.Close()
	}
	pst.db = nil
	if err != nil {
		return fmt.Errorf("pebble: close: %w", err)
	}
	return nil
}
