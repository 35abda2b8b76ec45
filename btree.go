package kvstore

import (
	"bytes"
	"io"
	"sync"

	"github.com/google/btree"
)

type btreeStore struct {
	mutex sync.Mutex
	tree  *btree.BTree
}

type btreeItem struct {
	key []byte
	val []byte
}

func (bi btreeItem) Less(item btree.Item) bool {
	return bytes.Compare(bi.key, item.(btreeItem).key) < 0
}

type btreeIterator struct {
	idx   int
	items []btreeItem
}

// NewBTreeStore returns an in-memory store for tests and ephemeral use.
// Nothing is durable: Sync and Close durability are no-ops. Iterators walk a
// copy-on-write clone of the tree taken when the iterator is created.
func NewBTreeStore() (Store, error) {
	return &btreeStore{
		tree: btree.New(16),
	}, nil
}

func (bst *btreeStore) Get(key, def []byte) ([]byte, error) {
	bst.mutex.Lock()
	tree := bst.tree
	bst.mutex.Unlock()
	if tree == nil {
		return nil, ErrClosed
	}

	item := tree.Get(btreeItem{key: key})
	if item == nil {
		return def, nil
	}
	return append([]byte{}, item.(btreeItem).val...), nil
}

func (bst *btreeStore) Put(key, val []byte) error {
	bst.mutex.Lock()
	defer bst.mutex.Unlock()
	if bst.tree == nil {
		return ErrClosed
	}

	bst.tree.ReplaceOrInsert(btreeItem{
		key: append([]byte{}, key...),
		val: append([]byte{}, val...),
	})
	return nil
}

func (bst *btreeStore) PutMany(entries []Entry) error {
	bst.mutex.Lock()
	defer bst.mutex.Unlock()
	if bst.tree == nil {
		return ErrClosed
	}

	for _, ent := range entries {
		bst.tree.ReplaceOrInsert(btreeItem{
			key: append([]byte{}, ent.Key...),
			val: append([]byte{}, ent.Value...),
		})
	}
	return nil
}

func (bst *btreeStore) iterate(from, to []byte) (*btreeIterator, error) {
	bst.mutex.Lock()
	if bst.tree == nil {
		bst.mutex.Unlock()
		return nil, ErrClosed
	}
	tree := bst.tree.Clone()
	bst.mutex.Unlock()

	var items []btreeItem
	tree.AscendGreaterOrEqual(btreeItem{key: from},
		func(item btree.Item) bool {
			bi := item.(btreeItem)
			if pastBound(bi.key, to) {
				return false
			}
			items = append(items, bi)
			return true
		})

	return &btreeIterator{
		items: items,
	}, nil
}

func (bst *btreeStore) Keys(from, to []byte) (KeyIterator, error) {
	it, err := bst.iterate(from, to)
	if err != nil {
		return nil, err
	}
	return keyIterator{it}, nil
}

func (bst *btreeStore) Items(from, to []byte) (Iterator, error) {
	return bst.iterate(from, to)
}

func (bit *btreeIterator) Item(fn func(key, val []byte) error) error {
	if bit.idx == len(bit.items) {
		return io.EOF
	}

	err := fn(bit.items[bit.idx].key, bit.items[bit.idx].val)
	if err != nil {
		return err
	}
	bit.idx += 1
	return nil
}

func (bit *btreeIterator) Close() {
	// Nothing.
}

func (bst *btreeStore) Sync() error {
	bst.mutex.Lock()
	defer bst.mutex.Unlock()
	if bst.tree == nil {
		return ErrClosed
	}
	return nil
}

func (bst *btreeStore) Close() error {
	bst.mutex.Lock()
	defer bst.mutex.Unlock()
	if bst.tree == nil {
		return ErrClosed
	}
	bst.tree = nil
	return nil
}
