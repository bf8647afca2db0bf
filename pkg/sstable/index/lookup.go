package index

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/keyorder"
	"github.com/KevoDB/sstblock/pkg/sstable/block"
)

// BlockSource fetches and decodes the data block described by the i-th meta.
// It is implemented by whatever owns the table bytes.
type BlockSource interface {
	ReadBlock(i int, meta BlockMeta) (*block.Block, error)
}

// Search returns the position of the only block that may contain key: the
// last block whose first key is <= key. A key smaller than every first key
// maps to block 0, whose lower bound is its first entry. Search returns -1
// for an empty index.
func Search(metas []BlockMeta, order keyorder.Order, key []byte) int {
	if len(metas) == 0 {
		return -1
	}
	order = keyorder.Default(order)

	i := sort.Search(len(metas), func(i int) bool {
		return order.Compare(metas[i].FirstKey, key) > 0
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// Extent returns the byte range of block i. Blocks are laid out back to back,
// so a block ends where the next one starts; the last block ends at end,
// the end of the data section.
func Extent(metas []BlockMeta, i int, end uint32) (offset, size uint32, err error) {
	if i < 0 || i >= len(metas) {
		return 0, 0, errors.Wrapf(ErrBlockOutOfRange, "block %d of %d", i, len(metas))
	}

	offset = metas[i].Offset
	next := end
	if i+1 < len(metas) {
		next = metas[i+1].Offset
	}
	if next <= offset {
		return 0, 0, errors.Wrapf(ErrCorruptIndex, "block %d spans [%d, %d)", i, offset, next)
	}
	return offset, next - offset, nil
}

// Seek runs the two-level lookup: a binary search over the index picks the
// candidate block, then the block's own binary search finds the first entry
// whose key is not less than key. When every entry of the candidate block is
// smaller the search continues into the following block. The returned
// iterator is invalid when no entry in the table qualifies.
func Seek(src BlockSource, metas []BlockMeta, order keyorder.Order, key []byte) (block.Iterator, error) {
	i := Search(metas, order, key)
	if i < 0 {
		return block.Iterator{}, nil
	}

	for ; i < len(metas); i++ {
		blk, err := src.ReadBlock(i, metas[i])
		if err != nil {
			return block.Iterator{}, errors.Wrapf(err, "read block %d", i)
		}
		if it := blk.LowerBound(key); it.Valid() {
			return it, nil
		}
	}
	return block.Iterator{}, nil
}

// Get returns the value stored under key, looking it up with Seek
func Get(src BlockSource, metas []BlockMeta, order keyorder.Order, key []byte) ([]byte, bool, error) {
	it, err := Seek(src, metas, order, key)
	if err != nil || !it.Valid() {
		return nil, false, err
	}
	if keyorder.Default(order).Compare(it.Key(), key) != 0 {
		return nil, false, nil
	}
	return it.Value(), true, nil
}
