package block

import "github.com/KevoDB/sstblock/pkg/common/iterator"

// Iterator is a position within a Block. It is a small value type: stepping
// returns a new Iterator and never mutates the receiver, so iterators can be
// copied, compared and used for random access like slice indexes.
//
// The zero Iterator is invalid.
type Iterator struct {
	b *Block
	i int
}

// Valid reports whether the iterator points at an entry
func (it Iterator) Valid() bool {
	return it.b != nil && it.i >= 0 && it.i < len(it.b.offsets)
}

// Index returns the entry position, which may be out of range when the
// iterator is not valid
func (it Iterator) Index() int {
	return it.i
}

// Block returns the block the iterator walks
func (it Iterator) Block() *Block {
	return it.b
}

// Entry returns the current key and value, or nils when not valid
func (it Iterator) Entry() (key, value []byte) {
	if !it.Valid() {
		return nil, nil
	}
	return it.b.At(it.i)
}

// Key returns the current key
func (it Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.b.keyAt(it.i)
}

// Value returns the current value
func (it Iterator) Value() []byte {
	_, value := it.Entry()
	return value
}

// Next returns the iterator one entry forward
func (it Iterator) Next() Iterator {
	return it.Advance(1)
}

// Prev returns the iterator one entry back
func (it Iterator) Prev() Iterator {
	return it.Advance(-1)
}

// Advance returns the iterator moved by n entries in either direction
func (it Iterator) Advance(n int) Iterator {
	return Iterator{b: it.b, i: it.i + n}
}

// At returns the entry n positions away from the iterator
func (it Iterator) At(n int) (key, value []byte) {
	return it.Advance(n).Entry()
}

// Distance returns the number of steps from other to it. Both iterators must
// belong to the same block.
func (it Iterator) Distance(other Iterator) int {
	if it.b != other.b {
		panic("block: distance between iterators of different blocks")
	}
	return it.i - other.i
}

// Equal reports whether both iterators point at the same position of the
// same block
func (it Iterator) Equal(other Iterator) bool {
	return it.b == other.b && it.i == other.i
}

// Cursor returns a stateful cursor starting at the iterator's position
func (it Iterator) Cursor() *Cursor {
	return &Cursor{b: it.b, i: it.i, initialized: true}
}

// Cursor walks a Block with the stateful iterator.Iterator contract used by
// scan and merge code. Each goroutine needs its own Cursor; the Block itself
// may be shared.
type Cursor struct {
	b           *Block
	i           int
	initialized bool
}

var _ iterator.Iterator = (*Cursor)(nil)

// NewCursor returns an unpositioned cursor. The first call to Next moves it
// to the first entry.
func (b *Block) NewCursor() *Cursor {
	return &Cursor{b: b, i: -1}
}

// len is the entry count; a cursor built from the zero Iterator has no block
// and behaves as an empty one
func (c *Cursor) len() int {
	if c.b == nil {
		return 0
	}
	return len(c.b.offsets)
}

// SeekToFirst positions the cursor at the first entry
func (c *Cursor) SeekToFirst() {
	c.i = 0
	c.initialized = true
}

// SeekToLast positions the cursor at the last entry
func (c *Cursor) SeekToLast() {
	c.i = c.len() - 1
	c.initialized = true
}

// Seek positions the cursor at the first key >= target
func (c *Cursor) Seek(target []byte) bool {
	c.initialized = true
	if c.b == nil {
		c.i = 0
		return false
	}
	c.i = c.b.LowerBound(target).i
	return c.Valid()
}

// Next advances to the next entry
func (c *Cursor) Next() bool {
	if !c.initialized {
		c.SeekToFirst()
		return c.Valid()
	}
	if c.i < c.len() {
		c.i++
	}
	return c.Valid()
}

// Prev moves to the previous entry
func (c *Cursor) Prev() bool {
	if !c.initialized {
		c.SeekToLast()
		return c.Valid()
	}
	if c.i >= 0 {
		c.i--
	}
	return c.Valid()
}

// Key returns the current key
func (c *Cursor) Key() []byte {
	return c.Iterator().Key()
}

// Value returns the current value
func (c *Cursor) Value() []byte {
	return c.Iterator().Value()
}

// Valid returns true if the cursor is positioned at an entry
func (c *Cursor) Valid() bool {
	return c.initialized && c.Iterator().Valid()
}

// Iterator returns the cursor's current position as an Iterator
func (c *Cursor) Iterator() Iterator {
	return Iterator{b: c.b, i: c.i}
}
