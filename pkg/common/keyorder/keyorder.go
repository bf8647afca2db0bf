// Package keyorder defines the total orderings used to sort and search keys
// inside SSTable blocks and their indexes.
package keyorder

import (
	"bytes"
	"encoding/binary"
)

// Order is a total order over byte-encoded keys.
//
// Compare returns a negative number when a sorts before b, zero when they are
// equal and a positive number when a sorts after b.
type Order interface {
	Compare(a, b []byte) int
}

// Func adapts an ordinary comparison function to the Order interface
type Func func(a, b []byte) int

// Compare calls f(a, b)
func (f Func) Compare(a, b []byte) int {
	return f(a, b)
}

type lexicographic struct{}

func (lexicographic) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Lexicographic orders keys by unsigned byte-wise comparison. It is the
// default order for blocks and indexes.
var Lexicographic Order = lexicographic{}

// Default returns o, or Lexicographic when o is nil
func Default(o Order) Order {
	if o == nil {
		return Lexicographic
	}
	return o
}

// Less reports whether a sorts strictly before b under o
func Less(o Order, a, b []byte) bool {
	return o.Compare(a, b) < 0
}

// fixedWidth orders keys holding a single unsigned integer of a fixed width.
type fixedWidth struct {
	width  int
	endian binary.ByteOrder
}

func (f fixedWidth) decode(k []byte) uint64 {
	if f.width == 4 {
		return uint64(f.endian.Uint32(k))
	}
	return f.endian.Uint64(k)
}

// Compare orders well-formed keys numerically. Keys of the wrong width sort
// after every well-formed key and are ordered among themselves bytewise, so
// the order stays total on arbitrary input.
func (f fixedWidth) Compare(a, b []byte) int {
	aok, bok := len(a) == f.width, len(b) == f.width
	switch {
	case aok && bok:
		x, y := f.decode(a), f.decode(b)
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	default:
		return bytes.Compare(a, b)
	}
}

// Uint64 orders 8-byte keys as unsigned integers decoded with bo
func Uint64(bo binary.ByteOrder) Order {
	return fixedWidth{width: 8, endian: bo}
}

// Uint32 orders 4-byte keys as unsigned integers decoded with bo
func Uint32(bo binary.ByteOrder) Order {
	return fixedWidth{width: 4, endian: bo}
}

type reverse struct {
	o Order
}

func (r reverse) Compare(a, b []byte) int {
	return r.o.Compare(b, a)
}

// Reverse returns the descending counterpart of o
func Reverse(o Order) Order {
	if r, ok := o.(reverse); ok {
		return r.o
	}
	return reverse{o: Default(o)}
}
