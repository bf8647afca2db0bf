// Package bounded restricts an iterator to the half-open key range
// [start, end).
package bounded

import (
	"github.com/KevoDB/sstblock/pkg/common/iterator"
	"github.com/KevoDB/sstblock/pkg/common/keyorder"
)

// BoundedIterator wraps an iterator and limits it to a specific key range.
// A nil start or end leaves that side of the range open.
type BoundedIterator struct {
	iterator.Iterator
	order keyorder.Order
	start []byte
	end   []byte
}

var _ iterator.Iterator = (*BoundedIterator)(nil)

// NewBoundedIterator creates a new bounded iterator comparing keys with order
func NewBoundedIterator(iter iterator.Iterator, order keyorder.Order, startKey, endKey []byte) *BoundedIterator {
	bi := &BoundedIterator{
		Iterator: iter,
		order:    keyorder.Default(order),
	}
	bi.setBounds(startKey, endKey)
	return bi
}

func cloneKey(key []byte) []byte {
	if key == nil {
		return nil
	}
	return append(make([]byte, 0, len(key)), key...)
}

func (b *BoundedIterator) setBounds(start, end []byte) {
	b.start = cloneKey(start)
	b.end = cloneKey(end)
}

// SetBounds replaces the range. The current position stays put and becomes
// invalid if it falls outside the new range.
func (b *BoundedIterator) SetBounds(start, end []byte) {
	b.setBounds(start, end)
}

// SeekToFirst positions at the first key in the bounded range
func (b *BoundedIterator) SeekToFirst() {
	if b.start != nil {
		b.Iterator.Seek(b.start)
	} else {
		b.Iterator.SeekToFirst()
	}
}

// SeekToLast positions at the last key in the bounded range
func (b *BoundedIterator) SeekToLast() {
	if b.end == nil {
		b.Iterator.SeekToLast()
		return
	}

	// Land on the first key >= end, then step back once
	if b.Iterator.Seek(b.end) {
		b.Iterator.Prev()
	} else {
		b.Iterator.SeekToLast()
	}
}

// Seek positions at the first key >= target within bounds
func (b *BoundedIterator) Seek(target []byte) bool {
	if b.start != nil && b.order.Compare(target, b.start) < 0 {
		target = b.start
	}

	if b.end != nil && b.order.Compare(target, b.end) >= 0 {
		return false
	}

	b.Iterator.Seek(target)
	return b.Valid()
}

// Next advances to the next key within bounds
func (b *BoundedIterator) Next() bool {
	if !b.Valid() {
		return false
	}
	b.Iterator.Next()
	return b.Valid()
}

// Prev moves to the previous key within bounds
func (b *BoundedIterator) Prev() bool {
	if !b.Valid() {
		return false
	}
	b.Iterator.Prev()
	return b.Valid()
}

// Valid returns true if the iterator is positioned at a valid entry within bounds
func (b *BoundedIterator) Valid() bool {
	if !b.Iterator.Valid() {
		return false
	}

	key := b.Iterator.Key()
	if b.start != nil && b.order.Compare(key, b.start) < 0 {
		return false
	}
	if b.end != nil && b.order.Compare(key, b.end) >= 0 {
		return false
	}
	return true
}

// Key returns the current key if within bounds
func (b *BoundedIterator) Key() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Key()
}

// Value returns the current value if within bounds
func (b *BoundedIterator) Value() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Value()
}
