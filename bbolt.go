package kvstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.etcd.io/bbolt"
)

var (
	kvBucket = []byte{'k', 'v'}
)

// bbolt rejects zero-length keys, so every key is stored behind a constant
// tag byte. The tag is the same for all keys and preserves their order.
const bboltKeyTag = 'k'

type bboltStore struct {
	db *bbolt.DB
}

type bboltIterator struct {
	tx   *bbolt.Tx
	cr   *bbolt.Cursor
	seek []byte
	to   []byte
	next bool
}

// NewBBoltStore opens or creates a bbolt backed store at the file named by
// path. Iterators hold a read transaction and observe a snapshot taken when
// the iterator is created.
func NewBBoltStore(path string) (Store, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("bbolt: open %s: %w", path, err)
	}

	err = db.Update(
		func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(kvBucket)
			return err
		})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt: create bucket: %w", err)
	}

	return &bboltStore{
		db: db,
	}, nil
}

func bboltKey(key []byte) []byte {
	buf := make([]byte, 0, len(key)+1)
	buf = append(buf, bboltKeyTag)
	return append(buf, key...)
}

func (bst *bboltStore) begin(writable bool) (*bbolt.Tx, *bbolt.Bucket, error) {
	if bst.db == nil {
		return nil, nil, ErrClosed
	}
	tx, err := bst.db.Begin(writable)
	if err != nil {
		return nil, nil, fmt.Errorf("bbolt: begin failed: %w", err)
	}
	bkt := tx.Bucket(kvBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, nil, errors.New("bbolt: missing kv bucket")
	}
	return tx, bkt, nil
}

func (bst *bboltStore) Get(key, def []byte) ([]byte, error) {
	tx, bkt, err := bst.begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Bucket.Get can't distinguish a missing key from a stored empty value,
	// so probe with a cursor instead.
	tk := bboltKey(key)
	k, v := bkt.Cursor().Seek(tk)
	if !bytes.Equal(k, tk) {
		return def, nil
	}
	return append([]byte{}, v...), nil
}

func (bst *bboltStore) Put(key, val []byte) error {
	tx, bkt, err := bst.begin(true)
	if err != nil {
		return err
	}

	err = bkt.Put(bboltKey(key), val)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("bbolt: put: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("bbolt: commit: %w", err)
	}
	return nil
}

func (bst *bboltStore) PutMany(entries []Entry) error {
	tx, bkt, err := bst.begin(true)
	if err != nil {
		return err
	}

	for _, ent := range entries {
		err = bkt.Put(bboltKey(ent.Key), ent.Value)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("bbolt: put: %w", err)
		}
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("bbolt: commit: %w", err)
	}
	return nil
}

func (bst *bboltStore) iterate(from, to []byte) (*bboltIterator, error) {
	tx, bkt, err := bst.begin(false)
	if err != nil {
		return nil, err
	}

	return &bboltIterator{
		tx:   tx,
		cr:   bkt.Cursor(),
		seek: bboltKey(from),
		to:   to,
	}, nil
}

func (bst *bboltStore) Keys(from, to []byte) (KeyIterator, error) {
	it, err := bst.iterate(from, to)
	if err != nil {
		return nil, err
	}
	return keyIterator{it}, nil
}

func (bst *bboltStore) Items(from, to []byte) (Iterator, error) {
	return bst.iterate(from, to)
}

func (bit *bboltIterator) Item(fn func(key, val []byte) error) error {
	var key, val []byte
	if bit.next {
		key, val = bit.cr.Next()
	} else {
		key, val = bit.cr.Seek(bit.seek)
		bit.next = true
		bit.seek = nil
	}

	if key == nil {
		return io.EOF
	}
	key = key[1:]
	if pastBound(key, bit.to) {
		return io.EOF
	}
	return fn(key, val)
}

func (bit *bboltIterator) Close() {
	if bit.tx != nil {
		bit.tx.Rollback()
		bit.tx = nil
	}
}

func (bst *bboltStore) Sync() error {
	if bst.db == nil {
		return ErrClosed
	}
	err := bst.db.Sync()
	if err != nil {
		return fmt.Errorf("bbolt: sync: %w", err)
	}
	return nil
}

func (bst *bboltStore) Close() error {
	if bst.db == nil {
		return ErrClosed
	}
	err := bst.db.Close()
	bst.db = nil
	if err != nil {
		return fmt.Errorf("bbolt: close: %w", err)
	}
	return nil
}
