package blockio

import (
	"github.com/KevoDB/sstblock/pkg/common/iterator"
	"github.com/KevoDB/sstblock/pkg/sstable/block"
	"github.com/KevoDB/sstblock/pkg/sstable/index"
)

// Iterator walks every entry of every block in key order, loading one block
// at a time. A failed block read leaves the iterator invalid and recorded in
// Error.
type Iterator struct {
	r        *Reader
	blockIdx int
	cursor   *block.Cursor
	err      error
}

var _ iterator.Iterator = (*Iterator)(nil)

func (it *Iterator) load(i int) bool {
	it.cursor = nil
	it.blockIdx = i
	if i < 0 || i >= len(it.r.layout.Metas) {
		return false
	}

	blk, err := it.r.ReadBlock(i, it.r.layout.Metas[i])
	if err != nil {
		it.err = err
		return false
	}
	it.cursor = blk.NewCursor()
	return true
}

// SeekToFirst positions the iterator at the first entry
func (it *Iterator) SeekToFirst() {
	it.err = nil
	if it.load(0) {
		it.cursor.SeekToFirst()
	}
}

// SeekToLast positions the iterator at the last entry
func (it *Iterator) SeekToLast() {
	it.err = nil
	if it.load(len(it.r.layout.Metas) - 1) {
		it.cursor.SeekToLast()
	}
}

// Seek positions the iterator at the first key >= target
func (it *Iterator) Seek(target []byte) bool {
	it.err = nil
	i := index.Search(it.r.layout.Metas, it.r.order, target)
	if !it.load(i) {
		return false
	}
	if it.cursor.Seek(target) {
		return true
	}
	return it.nextBlock()
}

// Next advances the iterator to the next entry
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.cursor == nil {
		if it.blockIdx < 0 {
			it.SeekToFirst()
			return it.Valid()
		}
		return false
	}
	if it.cursor.Next() {
		return true
	}
	return it.nextBlock()
}

// Prev moves the iterator to the previous entry
func (it *Iterator) Prev() bool {
	if it.err != nil {
		return false
	}
	if it.cursor == nil {
		if it.blockIdx >= len(it.r.layout.Metas) {
			it.SeekToLast()
			return it.Valid()
		}
		return false
	}
	if it.cursor.Prev() {
		return true
	}
	if !it.load(it.blockIdx - 1) {
		return false
	}
	it.cursor.SeekToLast()
	return it.Valid()
}

func (it *Iterator) nextBlock() bool {
	if !it.load(it.blockIdx + 1) {
		return false
	}
	it.cursor.SeekToFirst()
	return it.Valid()
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.cursor.Key()
}

// Value returns the current value
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.cursor.Value()
}

// Valid returns true if the iterator is positioned at an entry
func (it *Iterator) Valid() bool {
	return it.err == nil && it.cursor != nil && it.cursor.Valid()
}

// Error returns the error that invalidated the iterator, if any
func (it *Iterator) Error() error {
	return it.err
}
