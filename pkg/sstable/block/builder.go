package block

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/keyorder"
)

// Builder packs sorted key-value pairs into a size-bounded block.
//
// A Builder belongs to a single writer and is not safe for concurrent use.
type Builder struct {
	data       []byte
	offsets    []uint16
	blockSize  uint16
	order      keyorder.Order
	checkOrder bool
	finished   bool
}

// NewBuilder creates a builder that aims for blocks of at most blockSize
// encoded bytes
func NewBuilder(blockSize uint16, opts ...Option) *Builder {
	o := newOptions(true, opts)
	return &Builder{
		data:       make([]byte, 0, blockSize),
		offsets:    make([]uint16, 0, int(blockSize)/(entryOverhead+1)+1),
		blockSize:  blockSize,
		order:      o.order,
		checkOrder: o.checkOrder,
	}
}

// EstimatedSize returns the encoded size of the block if it were built now
func (b *Builder) EstimatedSize() int {
	return len(b.offsets)*offsetSize + len(b.data) + countSize
}

// BlockSize returns the configured size budget
func (b *Builder) BlockSize() uint16 {
	return b.blockSize
}

// Add appends a key-value pair to the block.
//
// Keys must be added in strictly increasing order. The first pair is always
// accepted, even when it alone exceeds the size budget; afterwards a pair
// that does not fit yields ErrBlockFull. A failed Add leaves the builder
// unchanged.
func (b *Builder) Add(key, value []byte) error {
	if b.finished {
		return ErrBuilderFinished
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > MaxKeySize {
		return errors.Wrapf(ErrKeyTooLarge, "%d bytes", len(key))
	}
	if len(value) > MaxValueSize {
		return errors.Wrapf(ErrValueTooLarge, "%d bytes", len(value))
	}

	if !b.Empty() {
		if b.checkOrder {
			if last := b.LastKey(); b.order.Compare(key, last) <= 0 {
				return errors.Wrapf(ErrOrderViolation, "got %q after %q", key, last)
			}
		}
		if b.EstimatedSize()+len(key)+len(value)+entryOverhead > int(b.blockSize) {
			return ErrBlockFull
		}
	}

	b.offsets = append(b.offsets, uint16(len(b.data)))
	b.data = binary.LittleEndian.AppendUint16(b.data, uint16(len(key)))
	b.data = append(b.data, key...)
	b.data = binary.LittleEndian.AppendUint16(b.data, uint16(len(value)))
	b.data = append(b.data, value...)

	return nil
}

// Empty reports whether no entries have been added
func (b *Builder) Empty() bool {
	return len(b.offsets) == 0
}

// Len returns the number of entries added so far
func (b *Builder) Len() int {
	return len(b.offsets)
}

// FirstKey returns the first key added, or nil for an empty builder.
// The slice aliases the builder's buffer.
func (b *Builder) FirstKey() []byte {
	if b.Empty() {
		return nil
	}
	key, _ := entryAt(b.data, b.offsets[0])
	return key
}

// LastKey returns the most recently added key, or nil for an empty builder.
// The slice aliases the builder's buffer.
func (b *Builder) LastKey() []byte {
	if b.Empty() {
		return nil
	}
	key, _ := entryAt(b.data, b.offsets[len(b.offsets)-1])
	return key
}

// Reset clears the builder so it can pack a new block
func (b *Builder) Reset() {
	b.data = make([]byte, 0, b.blockSize)
	b.offsets = make([]uint16, 0, cap(b.offsets))
	b.finished = false
}

// Build finalizes the entries into an immutable Block. The builder hands its
// buffers to the block and cannot be used again until Reset.
func (b *Builder) Build() (*Block, error) {
	if b.finished {
		return nil, ErrBuilderFinished
	}
	if b.Empty() {
		return nil, ErrBuildOnEmpty
	}

	blk := &Block{
		data:    b.data,
		offsets: b.offsets,
		order:   b.order,
	}

	b.data = nil
	b.offsets = nil
	b.finished = true

	return blk, nil
}
