// Package kvstore provides a sorted key-value store with interchangeable
// storage engines: bbolt, badger, pebble, sqlite, and an in-memory btree.
// Keys and values are arbitrary byte strings; zero-length and NUL-containing
// keys and values round-trip exactly on every engine. Keys are unique and
// iterate in ascending byte-wise lexicographic order regardless of the
// engine's native encoding or collation.
package kvstore

import (
	"bytes"
	"errors"
)

// ErrClosed is returned by any operation on a store after Close.
var ErrClosed = errors.New("kvstore: store is closed")

// Entry is a single key-value pair.
type Entry struct {
	Key   []byte
	Value []byte
}

// Iterator is a lazy, forward-only sequence of key-value pairs in ascending
// key order. Item calls fn with the next pair and returns io.EOF once the
// sequence is exhausted; any other error ends the sequence. The key and val
// slices are only valid for the duration of fn.
type Iterator interface {
	Item(fn func(key, val []byte) error) error
	Close()
}

// KeyIterator is a lazy, forward-only sequence of keys in ascending order.
// Key calls fn with the next key and returns io.EOF once the sequence is
// exhausted. The key slice is only valid for the duration of fn.
type KeyIterator interface {
	Key(fn func(key []byte) error) error
	Close()
}

// Store is a sorted map from byte string keys to byte string values. Stores
// are single-writer: callers needing concurrent mutation must serialize
// access externally. Whether an iterator observes mutations made after it was
// created is engine-defined; see the New*Store functions.
type Store interface {
	// Get returns the value stored for key, or def unchanged if key is
	// absent. A stored zero-length value is returned as a non-nil empty
	// slice, so absence stays distinguishable from the empty value when def
	// is nil.
	Get(key, def []byte) ([]byte, error)

	// Put stores val for key, replacing any existing value.
	Put(key, val []byte) error

	// PutMany applies entries as a single logical batch, amortizing write
	// overhead into as few engine commits as possible. The net effect
	// equals calling Put for each entry in order; for duplicate keys the
	// later entry wins. No atomicity is guaranteed beyond all entries
	// being present on success.
	PutMany(entries []Entry) error

	// Keys iterates over all keys k with from <= k <= to in ascending
	// order. A nil bound is unbounded; a non-nil empty bound is the empty
	// key. Bounds need not be stored keys.
	Keys(from, to []byte) (KeyIterator, error)

	// Items iterates over the same keys as Keys, with their values.
	Items(from, to []byte) (Iterator, error)

	// Sync flushes buffered writes to durable storage.
	Sync() error

	// Close releases the store; all prior successful writes are durable
	// once it returns. Any operation after Close returns ErrClosed.
	Close() error
}

// pastBound reports whether key is beyond the inclusive upper bound to; a
// nil bound never ends the scan.
func pastBound(key, to []byte) bool {
	return to != nil && bytes.Compare(key, to) > 0
}

// keyIterator adapts an Iterator for engines without a cheaper keys-only
// scan.
type keyIterator struct {
	it Iterator
}

func (kit keyIterator) Key(fn func(key []byte) error) error {
	return kit.it.Item(
		func(key, val []byte) error {
			return fn(key)
		})
}

func (kit keyIterator) Close() {
	kit.it.Close()
}

var _ KeyIterator = keyIterator{}
