// Package block implements the SSTable data block: a size-bounded run of
// sorted key-value pairs packed into one byte buffer.
//
// Encoded layout, all integers little-endian:
//
//	entry_0 .. entry_n-1    key_len(2) key value_len(2) value
//	offset_0 .. offset_n-1  2 bytes each, position of entry_i in the data region
//	entry_count             2 bytes
package block

import (
	"encoding/binary"
	"iter"

	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/keyorder"
)

// Block is an immutable, encoded run of sorted entries. Keys and values
// handed out by a Block are views into its buffer; they stay valid for as
// long as the Block is reachable and must not be modified.
//
// A Block is safe for concurrent readers.
type Block struct {
	data    []byte
	offsets []uint16
	order   keyorder.Order
}

// entryAt decodes the entry starting at off. The block must already be
// validated.
func entryAt(data []byte, off uint16) (key, value []byte) {
	pos := int(off)
	keyLen := int(binary.LittleEndian.Uint16(data[pos:]))
	pos += lenSize
	key = data[pos : pos+keyLen : pos+keyLen]
	pos += keyLen

	valueLen := int(binary.LittleEndian.Uint16(data[pos:]))
	pos += lenSize
	value = data[pos : pos+valueLen : pos+valueLen]

	return key, value
}

// keyAt decodes just the key of entry i
func (b *Block) keyAt(i int) []byte {
	pos := int(b.offsets[i])
	keyLen := int(binary.LittleEndian.Uint16(b.data[pos:]))
	pos += lenSize
	return b.data[pos : pos+keyLen : pos+keyLen]
}

// Len returns the number of entries
func (b *Block) Len() int {
	return len(b.offsets)
}

// Size returns the encoded size in bytes
func (b *Block) Size() int {
	return len(b.data) + len(b.offsets)*offsetSize + countSize
}

// Order returns the key order the block is searched with
func (b *Block) Order() keyorder.Order {
	return b.order
}

// At returns the key and value of entry i. It panics if i is out of range.
func (b *Block) At(i int) (key, value []byte) {
	return entryAt(b.data, b.offsets[i])
}

// FirstKey returns the smallest key in the block
func (b *Block) FirstKey() []byte {
	return b.keyAt(0)
}

// LastKey returns the largest key in the block
func (b *Block) LastKey() []byte {
	return b.keyAt(len(b.offsets) - 1)
}

// Begin returns an iterator at the first entry
func (b *Block) Begin() Iterator {
	return Iterator{b: b, i: 0}
}

// End returns the past-the-end iterator
func (b *Block) End() Iterator {
	return Iterator{b: b, i: len(b.offsets)}
}

// All returns the entries in key order. The sequence can be ranged over any
// number of times.
func (b *Block) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		for i := range b.offsets {
			if !yield(b.At(i)) {
				return
			}
		}
	}
}

// LowerBound returns an iterator at the first entry whose key is not less
// than target, or End() if there is none. Only the keys probed by the binary
// search are decoded.
func (b *Block) LowerBound(target []byte) Iterator {
	first, count := 0, len(b.offsets)
	for count > 0 {
		step := count / 2
		mid := first + step
		if b.order.Compare(b.keyAt(mid), target) < 0 {
			first = mid + 1
			count -= step + 1
		} else {
			count = step
		}
	}
	return Iterator{b: b, i: first}
}

// Get returns the value stored under key
func (b *Block) Get(key []byte) ([]byte, bool) {
	it := b.LowerBound(key)
	if !it.Valid() || b.order.Compare(it.Key(), key) != 0 {
		return nil, false
	}
	return it.Value(), true
}

// Encode serializes the block
func (b *Block) Encode() []byte {
	return b.AppendEncoded(make([]byte, 0, b.Size()))
}

// AppendEncoded appends the serialized block to dst
func (b *Block) AppendEncoded(dst []byte) []byte {
	dst = append(dst, b.data...)
	for _, off := range b.offsets {
		dst = binary.LittleEndian.AppendUint16(dst, off)
	}
	return binary.LittleEndian.AppendUint16(dst, uint16(len(b.offsets)))
}

// Decode parses an encoded block. The returned block owns a copy of the
// entry data, so buf may be reused afterwards.
//
// Every entry is bounds-checked up front; a block that decodes successfully
// never panics on access.
func Decode(buf []byte, opts ...Option) (*Block, error) {
	o := newOptions(false, opts)

	if len(buf) < countSize {
		return nil, errors.Wrapf(ErrCorruptBlock, "block data too small: %d bytes", len(buf))
	}

	count := int(binary.LittleEndian.Uint16(buf[len(buf)-countSize:]))
	if count == 0 {
		return nil, errors.Wrap(ErrCorruptBlock, "block has no entries")
	}

	tableSize := count * offsetSize
	if tableSize > len(buf)-countSize {
		return nil, errors.Wrapf(ErrCorruptBlock, "offset table of %d entries exceeds %d byte block",
			count, len(buf))
	}
	dataEnd := len(buf) - countSize - tableSize

	offsets := make([]uint16, count)
	table := buf[dataEnd : len(buf)-countSize]
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint16(table[i*offsetSize:])
	}

	pos := 0
	for i, off := range offsets {
		if int(off) != pos {
			return nil, errors.Wrapf(ErrCorruptBlock, "entry %d at offset %d, expected %d", i, off, pos)
		}
		end, err := checkEntry(buf[:dataEnd], pos)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		pos = end
	}
	if pos != dataEnd {
		return nil, errors.Wrapf(ErrCorruptBlock, "%d trailing bytes after last entry", dataEnd-pos)
	}

	data := make([]byte, dataEnd)
	copy(data, buf[:dataEnd])

	blk := &Block{
		data:    data,
		offsets: offsets,
		order:   o.order,
	}

	if o.checkOrder {
		for i := 1; i < len(offsets); i++ {
			if blk.order.Compare(blk.keyAt(i-1), blk.keyAt(i)) >= 0 {
				return nil, errors.Wrapf(ErrCorruptBlock, "keys out of order at entry %d", i)
			}
		}
	}

	return blk, nil
}

// checkEntry validates the entry starting at pos and returns where it ends
func checkEntry(data []byte, pos int) (int, error) {
	if pos+lenSize > len(data) {
		return 0, errors.Wrap(ErrCorruptBlock, "truncated key length")
	}
	keyLen := int(binary.LittleEndian.Uint16(data[pos:]))
	if keyLen == 0 {
		return 0, errors.Wrap(ErrCorruptBlock, "empty key")
	}
	pos += lenSize + keyLen

	if pos+lenSize > len(data) {
		return 0, errors.Wrap(ErrCorruptBlock, "truncated key or value length")
	}
	valueLen := int(binary.LittleEndian.Uint16(data[pos:]))
	pos += lenSize + valueLen

	if pos > len(data) {
		return 0, errors.Wrap(ErrCorruptBlock, "truncated value")
	}
	return pos, nil
}
