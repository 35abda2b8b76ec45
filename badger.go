package kvstore

import (
	"fmt"
	"io"
	"os"

	"github.com/dgraph-io/badger"
	log "github.com/sirupsen/logrus"
)

// badger rejects zero-length keys; same tag scheme as the bbolt engine.
const badgerKeyTag = 'k'

type badgerStore struct {
	db *badger.DB
}

type badgerIterator struct {
	tx *badger.Txn
	it *badger.Iterator
	to []byte
}

type badgerKeyIterator struct {
	tx *badger.Txn
	it *badger.Iterator
	to []byte
}

// NewBadgerStore opens or creates a badger backed store in dataDir. Writes
// are not synced individually; Sync and Close make them durable. Iterators
// run in a read transaction and observe a snapshot taken when the iterator
// is created.
func NewBadgerStore(dataDir string, logger *log.Logger) (Store, error) {
	os.MkdirAll(dataDir, 0755)

	opts := badger.DefaultOptions(dataDir)
	opts = opts.WithLogger(logger)
	opts = opts.WithSyncWrites(false)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", dataDir, err)
	}
	return &badgerStore{
		db: db,
	}, nil
}

func badgerKey(key []byte) []byte {
	buf := make([]byte, 0, len(key)+1)
	buf = append(buf, badgerKeyTag)
	return append(buf, key...)
}

func (bst *badgerStore) Get(key, def []byte) ([]byte, error) {
	if bst.db == nil {
		return nil, ErrClosed
	}

	tx := bst.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get(badgerKey(key))
	if err == badger.ErrKeyNotFound {
		return def, nil
	} else if err != nil {
		return nil, fmt.Errorf("badger: get: %w", err)
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("badger: get: %w", err)
	}
	if val == nil {
		val = []byte{}
	}
	return val, nil
}

func (bst *badgerStore) Put(key, val []byte) error {
	if bst.db == nil {
		return ErrClosed
	}

	err := bst.db.Update(
		func(tx *badger.Txn) error {
			return tx.Set(badgerKey(key), val)
		})
	if err != nil {
		return fmt.Errorf("badger: put: %w", err)
	}
	return nil
}

func (bst *badgerStore) PutMany(entries []Entry) error {
	if bst.db == nil {
		return ErrClosed
	}

	tx := bst.db.NewTransaction(true)
	defer func() {
		tx.Discard()
	}()

	for _, ent := range entries {
		err := tx.Set(badgerKey(ent.Key), ent.Value)
		if err == badger.ErrTxnTooBig {
			err = tx.Commit()
			if err != nil {
				return fmt.Errorf("badger: put many: %w", err)
			}
			tx = bst.db.NewTransaction(true)
			err = tx.Set(badgerKey(ent.Key), ent.Value)
		}
		if err != nil {
			return fmt.Errorf("badger: put many: %w", err)
		}
	}
	err := tx.Commit()
	if err != nil {
		return fmt.Errorf("badger: put many: %w", err)
	}
	return nil
}

func (bst *badgerStore) iterate(from []byte, vals bool) (*badger.Txn, *badger.Iterator, error) {
	if bst.db == nil {
		return nil, nil, ErrClosed
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = vals
	tx := bst.db.NewTransaction(false)
	it := tx.NewIterator(opts)
	it.Seek(badgerKey(from))
	return tx, it, nil
}

func (bst *badgerStore) Keys(from, to []byte) (KeyIterator, error) {
	tx, it, err := bst.iterate(from, false)
	if err != nil {
		return nil, err
	}
	return badgerKeyIterator{
		tx: tx,
		it: it,
		to: to,
	}, nil
}

func (bst *badgerStore) Items(from, to []byte) (Iterator, error) {
	tx, it, err := bst.iterate(from, true)
	if err != nil {
		return nil, err
	}
	return badgerIterator{
		tx: tx,
		it: it,
		to: to,
	}, nil
}

func (bit badgerIterator) Item(fn func(key, val []byte) error) error {
	if !bit.it.Valid() {
		return io.EOF
	}

	item := bit.it.Item()
	key := item.Key()[1:]
	if pastBound(key, bit.to) {
		return io.EOF
	}

	err := item.Value(
		func(val []byte) error {
			return fn(key, val)
		})
	if err != nil {
		return err
	}

	bit.it.Next()
	return nil
}

func (bit badgerIterator) Close() {
	bit.it.Close()
	if bit.tx != nil {
		bit.tx.Discard()
	}
}

func (bit badgerKeyIterator) Key(fn func(key []byte) error) error {
	if !bit.it.Valid() {
		return io.EOF
	}

	key := bit.it.Item().Key()[1:]
	if pastBound(key, bit.to) {
		return io.EOF
	}

	err := fn(key)
	if err != nil {
		return err
	}

	bit.it.Next()
	return nil
}

func (bit badgerKeyIterator) Close() {
	bit.it.Close()
	if bit.tx != nil {
		bit.tx.Discard()
	}
}

func (bst *badgerStore) Sync() error {
	if bst.db == nil {
		return ErrClosed
	}
	err := bst.db.Sync()
	if err != nil {
		return fmt.Errorf("badger: sync: %w", err)
	}
	return nil
}

func (bst *badgerStore) Close() error {
	if bst.db == nil {
		return ErrClosed
	}
	err := bst.db.Close()
	bst.db = nil
	if err != nil {
		return fmt.Errorf("badger: close: %w", err)
	}
	return nil
}
