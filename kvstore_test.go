package kvstore_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/andreyvit/diff"

	"github.com/leftmike/kvstore"
)

// storeMaker opens a fresh, empty store; each test case gets its own.
type storeMaker func(t *testing.T) kvstore.Store

func runStoreTests(t *testing.T, maker storeMaker) {
	t.Helper()

	testGetPut(t, maker(t))
	testNullBytes(t, maker(t))
	testEmptyKeyValue(t, maker(t))
	testReplace(t, maker(t))
	testPutMany(t, maker(t))
	testEmptyStore(t, maker(t))
	testKeys(t, maker(t))
	testItems(t, maker(t))
	testIterator(t, maker(t))
	testReadInterleave(t, maker(t))
	testSyncClose(t, maker(t))
}

func collectKeys(t *testing.T, st kvstore.Store, from, to []byte) []string {
	t.Helper()

	kit, err := st.Keys(from, to)
	if err != nil {
		t.Fatalf("Keys(%q, %q) failed with %s", from, to, err)
	}
	defer kit.Close()

	var keys []string
	for {
		err = kit.Key(
			func(key []byte) error {
				keys = append(keys, string(key))
				return nil
			})
		if err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Keys(%q, %q) failed with %s", from, to, err)
		}
	}
	return keys
}

func collectItems(t *testing.T, st kvstore.Store, from, to []byte) []string {
	t.Helper()

	it, err := st.Items(from, to)
	if err != nil {
		t.Fatalf("Items(%q, %q) failed with %s", from, to, err)
	}
	defer it.Close()

	var items []string
	for {
		err = it.Item(
			func(key, val []byte) error {
				items = append(items, fmt.Sprintf("%s=%s", key, val))
				return nil
			})
		if err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Items(%q, %q) failed with %s", from, to, err)
		}
	}
	return items
}

func checkKeys(t *testing.T, st kvstore.Store, from, to []byte, expected []string) {
	t.Helper()

	want := strings.Join(expected, "\n")
	got := strings.Join(collectKeys(t, st, from, to), "\n")
	if got != want {
		t.Errorf("Keys(%q, %q):\n%s", from, to, diff.LineDiff(want, got))
	}
}

func checkItems(t *testing.T, st kvstore.Store, from, to []byte, expected []string) {
	t.Helper()

	want := strings.Join(expected, "\n")
	got := strings.Join(collectItems(t, st, from, to), "\n")
	if got != want {
		t.Errorf("Items(%q, %q):\n%s", from, to, diff.LineDiff(want, got))
	}
}

func mustGet(t *testing.T, st kvstore.Store, key, def, expected []byte) {
	t.Helper()

	val, err := st.Get(key, def)
	if err != nil {
		t.Fatalf("Get(%q) failed with %s", key, err)
	}
	if !bytes.Equal(val, expected) || (val == nil) != (expected == nil) {
		t.Errorf("Get(%q): got %q (nil %t) want %q (nil %t)", key, val, val == nil,
			expected, expected == nil)
	}
}

func mustPut(t *testing.T, st kvstore.Store, key, val []byte) {
	t.Helper()

	err := st.Put(key, val)
	if err != nil {
		t.Fatalf("Put(%q, %q) failed with %s", key, val, err)
	}
}

func testGetPut(t *testing.T, st kvstore.Store) {
	defer st.Close()

	mustGet(t, st, []byte("missing"), nil, nil)

	def := []byte("default")
	mustGet(t, st, []byte("missing"), def, def)

	mustPut(t, st, []byte("test_key"), []byte("test_value"))
	mustGet(t, st, []byte("test_key"), nil, []byte("test_value"))

	// The default must come back untouched when the key is present too.
	mustGet(t, st, []byte("test_key"), def, []byte("test_value"))
	if string(def) != "default" {
		t.Errorf("Get() modified the default: %q", def)
	}
}

func testNullBytes(t *testing.T, st kvstore.Store) {
	defer st.Close()

	// NUL key
	mustGet(t, st, []byte{0}, nil, nil)
	mustPut(t, st, []byte{0}, []byte("test_value"))
	mustGet(t, st, []byte{0}, nil, []byte("test_value"))
	checkKeys(t, st, nil, nil, []string{"\x00"})
	checkItems(t, st, nil, nil, []string{"\x00=test_value"})

	// NUL value
	mustPut(t, st, []byte("test_key"), []byte{0})
	mustGet(t, st, []byte("test_key"), nil, []byte{0})

	// embedded NUL bytes in both
	key := []byte("a\x00b")
	val := []byte("c\x00\x00d")
	mustPut(t, st, key, val)
	mustGet(t, st, key, nil, val)
	checkKeys(t, st, nil, nil, []string{"\x00", "a\x00b", "test_key"})
	checkItems(t, st, nil, nil,
		[]string{"\x00=test_value", "a\x00b=c\x00\x00d", "test_key=\x00"})
}

func testEmptyKeyValue(t *testing.T, st kvstore.Store) {
	defer st.Close()

	// The empty key is a real key and sorts before everything else.
	mustGet(t, st, []byte{}, nil, nil)
	mustPut(t, st, []byte{}, []byte("empty_key"))
	mustGet(t, st, []byte{}, nil, []byte("empty_key"))

	// A stored empty value comes back non-nil, distinct from a nil default.
	mustPut(t, st, []byte("empty_value"), []byte{})
	mustGet(t, st, []byte("empty_value"), nil, []byte{})

	checkKeys(t, st, nil, nil, []string{"", "empty_value"})
	checkItems(t, st, nil, nil, []string{"=empty_key", "empty_value="})

	// A non-nil empty bound is the empty key, not "unbounded".
	checkKeys(t, st, nil, []byte{}, []string{""})
	checkKeys(t, st, []byte{}, nil, []string{"", "empty_value"})
}

func testReplace(t *testing.T, st kvstore.Store) {
	defer st.Close()

	key := []byte("foo")
	mustGet(t, st, key, nil, nil)

	mustPut(t, st, key, []byte("bar"))
	mustGet(t, st, key, nil, []byte("bar"))

	mustPut(t, st, key, []byte("baz"))
	mustGet(t, st, key, nil, []byte("baz"))

	checkItems(t, st, nil, nil, []string{"foo=baz"})
}

var numberEntries = []kvstore.Entry{
	{Key: []byte("one"), Value: []byte("value1")},
	{Key: []byte("two"), Value: []byte("value2")},
	{Key: []byte("three"), Value: []byte("value3")},
	{Key: []byte("four"), Value: []byte("value4")},
	{Key: []byte("five"), Value: []byte("value5")},
	{Key: []byte("six"), Value: []byte("value6")},
	{Key: []byte("seven"), Value: []byte("value7")},
	{Key: []byte("eight"), Value: []byte("value8")},
	{Key: []byte("nine"), Value: []byte("value9")},
}

func testPutMany(t *testing.T, st kvstore.Store) {
	defer st.Close()

	err := st.PutMany(numberEntries)
	if err != nil {
		t.Fatalf("PutMany() failed with %s", err)
	}

	for _, ent := range numberEntries {
		mustGet(t, st, ent.Key, nil, ent.Value)
	}

	// Later entries for a duplicate key win.
	err = st.PutMany([]kvstore.Entry{
		{Key: []byte("ten"), Value: []byte("value10")},
		{Key: []byte("one"), Value: []byte("replaced1")},
		{Key: []byte("ten"), Value: []byte("replaced10")},
	})
	if err != nil {
		t.Fatalf("PutMany() failed with %s", err)
	}
	mustGet(t, st, []byte("one"), nil, []byte("replaced1"))
	mustGet(t, st, []byte("ten"), nil, []byte("replaced10"))
}

func testEmptyStore(t *testing.T, st kvstore.Store) {
	defer st.Close()

	checkKeys(t, st, nil, nil, nil)
	checkKeys(t, st, []byte("foo"), nil, nil)
	checkKeys(t, st, nil, []byte("bar"), nil)
	checkKeys(t, st, []byte("foo"), []byte("bar"), nil)

	checkItems(t, st, nil, nil, nil)
	checkItems(t, st, []byte("foo"), nil, nil)
	checkItems(t, st, nil, []byte("bar"), nil)
	checkItems(t, st, []byte("foo"), []byte("bar"), nil)
}

func testKeys(t *testing.T, st kvstore.Store) {
	defer st.Close()

	for _, ent := range numberEntries {
		mustPut(t, st, ent.Key, ent.Value)
	}

	// Sorted order is: eight five four nine one seven six three two
	checkKeys(t, st, nil, nil,
		strings.Split("eight five four nine one seven six three two", " "))

	// key_from bounds that are present and missing in the store
	checkKeys(t, st, []byte("four"), nil,
		strings.Split("four nine one seven six three two", " "))
	checkKeys(t, st, []byte("fo"), nil,
		strings.Split("four nine one seven six three two", " "))

	// key_to bounds; "si" cuts before "six"
	checkKeys(t, st, nil, []byte("six"),
		strings.Split("eight five four nine one seven six", " "))
	checkKeys(t, st, nil, []byte("si"),
		strings.Split("eight five four nine one seven", " "))

	// both bounds together
	checkKeys(t, st, []byte("five"), []byte("three"),
		strings.Split("five four nine one seven six three", " "))

	// bounds beyond either end of the key space
	checkKeys(t, st, []byte("zzz"), nil, nil)
	checkKeys(t, st, nil, []byte("a"), nil)
	checkKeys(t, st, []byte("three"), []byte("four"), nil)
}

func testItems(t *testing.T, st kvstore.Store) {
	defer st.Close()

	err := st.PutMany(numberEntries)
	if err != nil {
		t.Fatalf("PutMany() failed with %s", err)
	}

	sorted := []string{"eight=value8", "five=value5", "four=value4", "nine=value9",
		"one=value1", "seven=value7", "six=value6", "three=value3", "two=value2"}

	checkItems(t, st, nil, nil, sorted)
	checkItems(t, st, []byte("four"), nil, sorted[2:])
	checkItems(t, st, []byte("fo"), nil, sorted[2:])
	checkItems(t, st, nil, []byte("six"), sorted[:7])
	checkItems(t, st, nil, []byte("si"), sorted[:6])
	checkItems(t, st, []byte("five"), []byte("three"), sorted[1:8])

	// Items and Keys must agree under identical bounds.
	bounds := [][][]byte{
		{nil, nil},
		{[]byte("four"), nil},
		{nil, []byte("si")},
		{[]byte("five"), []byte("three")},
	}
	for _, b := range bounds {
		keys := collectKeys(t, st, b[0], b[1])
		items := collectItems(t, st, b[0], b[1])
		if len(keys) != len(items) {
			t.Errorf("Keys(%q, %q) and Items() disagree: %d keys, %d items",
				b[0], b[1], len(keys), len(items))
			continue
		}
		for idx := range items {
			if !strings.HasPrefix(items[idx], keys[idx]+"=") {
				t.Errorf("Items(%q, %q): got %q at %d; Keys() got %q",
					b[0], b[1], items[idx], idx, keys[idx])
			}
		}
	}
}

func testIterator(t *testing.T, st kvstore.Store) {
	defer st.Close()

	err := st.PutMany(numberEntries)
	if err != nil {
		t.Fatalf("PutMany() failed with %s", err)
	}

	// An error from fn ends the sequence with that error.
	errStop := errors.New("stop")
	it, err := st.Items(nil, nil)
	if err != nil {
		t.Fatalf("Items() failed with %s", err)
	}
	err = it.Item(
		func(key, val []byte) error {
			return errStop
		})
	if err != errStop {
		t.Errorf("Item(): got %v want %v", err, errStop)
	}
	it.Close()

	// Ceasing to pull and closing early must be safe.
	kit, err := st.Keys(nil, nil)
	if err != nil {
		t.Fatalf("Keys() failed with %s", err)
	}
	err = kit.Key(
		func(key []byte) error {
			if string(key) != "eight" {
				t.Errorf("Key(): got %q want eight", key)
			}
			return nil
		})
	if err != nil {
		t.Errorf("Key() failed with %s", err)
	}
	kit.Close()

	// Sequences are restartable: a second call scans from the start.
	checkKeys(t, st, nil, nil,
		strings.Split("eight five four nine one seven six three two", " "))
}

func testReadInterleave(t *testing.T, st kvstore.Store) {
	defer st.Close()

	err := st.PutMany(numberEntries)
	if err != nil {
		t.Fatalf("PutMany() failed with %s", err)
	}

	kit, err := st.Keys(nil, nil)
	if err != nil {
		t.Fatalf("Keys() failed with %s", err)
	}
	err = kit.Key(
		func(key []byte) error {
			if string(key) != "eight" {
				t.Errorf("Key(): got %q want eight", key)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Key() failed with %s", err)
	}

	// Reads must interleave with an open iterator; run Get on another
	// goroutine so a blocked read fails the test instead of hanging it.
	ch := make(chan error, 1)
	go func() {
		val, err := st.Get([]byte("six"), nil)
		if err == nil && string(val) != "value6" {
			err = fmt.Errorf("Get(six): got %q want value6", val)
		}
		ch <- err
	}()
	select {
	case err = <-ch:
		if err != nil {
			t.Errorf("Get() failed with %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Get() blocked while a Keys iterator was open")
	}

	// A second iterator must be independent of the first.
	checkKeys(t, st, []byte("three"), nil, []string{"three", "two"})

	err = kit.Key(
		func(key []byte) error {
			if string(key) != "five" {
				t.Errorf("Key(): got %q want five", key)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Key() failed with %s", err)
	}
	kit.Close()
}

func testSyncClose(t *testing.T, st kvstore.Store) {
	mustPut(t, st, []byte("test_key"), []byte("test_value"))

	err := st.Sync()
	if err != nil {
		t.Fatalf("Sync() failed with %s", err)
	}
	mustGet(t, st, []byte("test_key"), nil, []byte("test_value"))

	err = st.Close()
	if err != nil {
		t.Fatalf("Close() failed with %s", err)
	}

	_, err = st.Get([]byte("test_key"), nil)
	if !errors.Is(err, kvstore.ErrClosed) {
		t.Errorf("Get() after Close(): got %v want %v", err, kvstore.ErrClosed)
	}
	err = st.Put([]byte("test_key"), []byte("test_value"))
	if !errors.Is(err, kvstore.ErrClosed) {
		t.Errorf("Put() after Close(): got %v want %v", err, kvstore.ErrClosed)
	}
	err = st.PutMany(numberEntries)
	if !errors.Is(err, kvstore.ErrClosed) {
		t.Errorf("PutMany() after Close(): got %v want %v", err, kvstore.ErrClosed)
	}
	_, err = st.Keys(nil, nil)
	if !errors.Is(err, kvstore.ErrClosed) {
		t.Errorf("Keys() after Close(): got %v want %v", err, kvstore.ErrClosed)
	}
	_, err = st.Items(nil, nil)
	if !errors.Is(err, kvstore.ErrClosed) {
		t.Errorf("Items() after Close(): got %v want %v", err, kvstore.ErrClosed)
	}
	err = st.Sync()
	if !errors.Is(err, kvstore.ErrClosed) {
		t.Errorf("Sync() after Close(): got %v want %v", err, kvstore.ErrClosed)
	}
	err = st.Close()
	if !errors.Is(err, kvstore.ErrClosed) {
		t.Errorf("second Close(): got %v want %v", err, kvstore.ErrClosed)
	}
}

// testReopen checks that writes survive a close and reopen of the same
// backing storage.
func testReopen(t *testing.T, open func() (kvstore.Store, error)) {
	t.Helper()

	st, err := open()
	if err != nil {
		t.Fatal(err)
	}
	mustPut(t, st, []byte("durable"), []byte("value"))
	err = st.PutMany(numberEntries)
	if err != nil {
		t.Fatalf("PutMany() failed with %s", err)
	}
	err = st.Close()
	if err != nil {
		t.Fatalf("Close() failed with %s", err)
	}

	st, err = open()
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	mustGet(t, st, []byte("durable"), nil, []byte("value"))
	checkKeys(t, st, nil, nil,
		strings.Split("durable eight five four nine one seven six three two", " "))
}
