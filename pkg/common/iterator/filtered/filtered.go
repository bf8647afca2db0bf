// Package filtered provides iterators that skip keys failing a predicate
package filtered

import (
	"bytes"

	"github.com/KevoDB/sstblock/pkg/common/iterator"
)

// KeyFilterFunc reports whether a key should be visible
type KeyFilterFunc func(key []byte) bool

// FilteredIterator wraps an iterator and hides every entry whose key fails
// the filter. It moves in both directions.
type FilteredIterator struct {
	iter      iterator.Iterator
	keyFilter KeyFilterFunc
}

var _ iterator.Iterator = (*FilteredIterator)(nil)

// NewFilteredIterator creates a new iterator with a key filter
func NewFilteredIterator(iter iterator.Iterator, filter KeyFilterFunc) *FilteredIterator {
	return &FilteredIterator{
		iter:      iter,
		keyFilter: filter,
	}
}

func (fi *FilteredIterator) skipForward() bool {
	for fi.iter.Valid() {
		if fi.keyFilter(fi.iter.Key()) {
			return true
		}
		fi.iter.Next()
	}
	return false
}

func (fi *FilteredIterator) skipBackward() bool {
	for fi.iter.Valid() {
		if fi.keyFilter(fi.iter.Key()) {
			return true
		}
		fi.iter.Prev()
	}
	return false
}

// Next advances to the next key that passes the filter
func (fi *FilteredIterator) Next() bool {
	fi.iter.Next()
	return fi.skipForward()
}

// Prev moves to the previous key that passes the filter
func (fi *FilteredIterator) Prev() bool {
	fi.iter.Prev()
	return fi.skipBackward()
}

// Key returns the current key
func (fi *FilteredIterator) Key() []byte {
	return fi.iter.Key()
}

// Value returns the current value
func (fi *FilteredIterator) Value() []byte {
	return fi.iter.Value()
}

// Valid returns true if the iterator is at an entry that passes the filter
func (fi *FilteredIterator) Valid() bool {
	return fi.iter.Valid() && fi.keyFilter(fi.iter.Key())
}

// SeekToFirst positions at the first key that passes the filter
func (fi *FilteredIterator) SeekToFirst() {
	fi.iter.SeekToFirst()
	fi.skipForward()
}

// SeekToLast positions at the last key that passes the filter
func (fi *FilteredIterator) SeekToLast() {
	fi.iter.SeekToLast()
	fi.skipBackward()
}

// Seek positions at the first key >= target that passes the filter
func (fi *FilteredIterator) Seek(target []byte) bool {
	fi.iter.Seek(target)
	return fi.skipForward()
}

// PrefixFilterFunc creates a filter function for keys with a specific prefix
func PrefixFilterFunc(prefix []byte) KeyFilterFunc {
	prefix = bytes.Clone(prefix)
	return func(key []byte) bool {
		return bytes.HasPrefix(key, prefix)
	}
}

// SuffixFilterFunc creates a filter function for keys with a specific suffix
func SuffixFilterFunc(suffix []byte) KeyFilterFunc {
	suffix = bytes.Clone(suffix)
	return func(key []byte) bool {
		return bytes.HasSuffix(key, suffix)
	}
}

// NewPrefixIterator returns an iterator that filters keys by prefix
func NewPrefixIterator(iter iterator.Iterator, prefix []byte) *FilteredIterator {
	return NewFilteredIterator(iter, PrefixFilterFunc(prefix))
}

// NewSuffixIterator returns an iterator that filters keys by suffix
func NewSuffixIterator(iter iterator.Iterator, suffix []byte) *FilteredIterator {
	return NewFilteredIterator(iter, SuffixFilterFunc(suffix))
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix in lexicographic order, or nil when no such key exists (an empty
// prefix, or one made only of 0xff bytes).
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
