// Package index implements the sparse block index of an SSTable: one
// BlockMeta per data block, holding the block's file offset and first key.
//
// Encoded layout, repeated once per block with no count or terminator:
//
//	offset(4, little-endian) first_key_len(2, little-endian) first_key
package index

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	offsetSize = 4
	lenSize    = 2

	// MaxKeySize is the longest first key the 16-bit length field can hold
	MaxKeySize = 0xffff
)

var (
	// ErrCorruptIndex indicates the encoded index is truncated
	ErrCorruptIndex = errors.New("corrupt block index")
	// ErrIndexOrder indicates index entries are not ascending
	ErrIndexOrder = errors.New("index entries must be ascending")
	// ErrBlockOutOfRange indicates a block number past the end of the index
	ErrBlockOutOfRange = errors.New("block index out of range")
	// ErrInvalidKey indicates a first key that is empty or longer than
	// MaxKeySize
	ErrInvalidKey = errors.New("invalid first key")
)

// BlockMeta locates one data block within a table file
type BlockMeta struct {
	// Offset is the byte position of the block in the table file
	Offset uint32
	// FirstKey is the smallest key stored in the block
	FirstKey []byte
}

// EncodedSize returns the number of bytes the meta occupies when encoded
func (m BlockMeta) EncodedSize() int {
	return offsetSize + lenSize + len(m.FirstKey)
}

func checkKey(key []byte) error {
	if len(key) == 0 {
		return errors.Wrap(ErrInvalidKey, "empty")
	}
	if len(key) > MaxKeySize {
		return errors.Wrapf(ErrInvalidKey, "%d bytes", len(key))
	}
	return nil
}

// Encode serializes metas in the order given. Every first key must be
// non-empty and at most MaxKeySize bytes.
func Encode(metas []BlockMeta) ([]byte, error) {
	size := 0
	for _, m := range metas {
		size += m.EncodedSize()
	}
	return AppendEncoded(make([]byte, 0, size), metas)
}

// AppendEncoded appends the serialized metas to dst. On error dst is
// returned unchanged.
func AppendEncoded(dst []byte, metas []BlockMeta) ([]byte, error) {
	for i, m := range metas {
		if err := checkKey(m.FirstKey); err != nil {
			return dst, errors.Wrapf(err, "entry %d", i)
		}
	}
	return appendEncoded(dst, metas), nil
}

// appendEncoded serializes metas whose keys are already checked
func appendEncoded(dst []byte, metas []BlockMeta) []byte {
	for _, m := range metas {
		dst = binary.LittleEndian.AppendUint32(dst, m.Offset)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(m.FirstKey)))
		dst = append(dst, m.FirstKey...)
	}
	return dst
}

// Decode parses metas until buf is exhausted. buf must hold exactly the
// index section. First keys are copied out of buf.
func Decode(buf []byte) ([]BlockMeta, error) {
	var metas []BlockMeta

	for len(buf) > 0 {
		if len(buf) < offsetSize {
			return nil, errors.Wrapf(ErrCorruptIndex, "entry %d: %d bytes left for offset", len(metas), len(buf))
		}
		offset := binary.LittleEndian.Uint32(buf)
		buf = buf[offsetSize:]

		if len(buf) < lenSize {
			return nil, errors.Wrapf(ErrCorruptIndex, "entry %d: %d bytes left for key length", len(metas), len(buf))
		}
		keyLen := int(binary.LittleEndian.Uint16(buf))
		buf = buf[lenSize:]

		if len(buf) < keyLen {
			return nil, errors.Wrapf(ErrCorruptIndex, "entry %d: key of %d bytes, %d left",
				len(metas), keyLen, len(buf))
		}
		firstKey := make([]byte, keyLen)
		copy(firstKey, buf)
		buf = buf[keyLen:]

		metas = append(metas, BlockMeta{Offset: offset, FirstKey: firstKey})
	}

	return metas, nil
}
