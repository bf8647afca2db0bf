package blockio

import (
	"io"

	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/iterator"
	"github.com/KevoDB/sstblock/pkg/common/iterator/bounded"
	"github.com/KevoDB/sstblock/pkg/common/iterator/filtered"
	"github.com/KevoDB/sstblock/pkg/common/keyorder"
	"github.com/KevoDB/sstblock/pkg/common/log"
	"github.com/KevoDB/sstblock/pkg/config"
	"github.com/KevoDB/sstblock/pkg/sstable/block"
	"github.com/KevoDB/sstblock/pkg/sstable/frame"
	"github.com/KevoDB/sstblock/pkg/sstable/index"
)

// Reader serves point lookups and scans over sections written by a Writer.
// It holds no mutable state and is safe for concurrent use as long as the
// underlying io.ReaderAt is.
type Reader struct {
	r        io.ReaderAt
	layout   Layout
	order    keyorder.Order
	checksum bool
	logger   log.Logger
}

var _ index.BlockSource = (*Reader)(nil)

// NewReader creates a reader over r. cfg must match the configuration the
// sections were written with; nil means config.NewDefaultConfig().
func NewReader(r io.ReaderAt, layout Layout, cfg *config.Config, opts ...WriterOption) (*Reader, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newIOOptions(cfg, opts)

	return &Reader{
		r:        r,
		layout:   layout,
		order:    cfg.Order(),
		checksum: cfg.Snapshot().Checksum,
		logger:   o.logger.WithField("component", "blockio.reader"),
	}, nil
}

// LoadLayout rebuilds a Layout from the position of the index section, which
// the caller keeps in its own table metadata
func LoadLayout(r io.ReaderAt, indexOffset, indexSize uint32, cfg *config.Config) (Layout, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	metas, err := ReadIndex(r, indexOffset, indexSize, cfg)
	if err != nil {
		return Layout{}, err
	}

	return Layout{
		Metas:       metas,
		DataSize:    indexOffset,
		IndexOffset: indexOffset,
		IndexSize:   indexSize,
		Entries:     -1,
	}, nil
}

// ReadIndex reads, verifies and decodes an index section. First keys are
// checked for order only when cfg.VerifyKeyOrder is set.
func ReadIndex(r io.ReaderAt, offset, size uint32, cfg *config.Config) ([]index.BlockMeta, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	buf, err := readSection(r, offset, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read index")
	}

	if cfg.Snapshot().Checksum {
		if buf, err = frame.Open(buf); err != nil {
			return nil, errors.Wrap(err, "index")
		}
	}

	metas, err := index.Decode(buf)
	if err != nil {
		return nil, err
	}
	if cfg.Snapshot().VerifyKeyOrder {
		err = index.Validate(metas, cfg.Order())
	} else {
		err = index.ValidateOffsets(metas)
	}
	if err != nil {
		return nil, err
	}
	return metas, nil
}

func readSection(r io.ReaderAt, offset, size uint32) ([]byte, error) {
	buf := make([]byte, size)
	n, err := r.ReadAt(buf, int64(offset))
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, errors.Wrapf(err, "read %d of %d bytes at offset %d", n, size, offset)
}

// Layout returns the layout the reader serves
func (r *Reader) Layout() Layout {
	return r.layout
}

// ReadBlock fetches, verifies and decodes block i
func (r *Reader) ReadBlock(i int, meta index.BlockMeta) (*block.Block, error) {
	offset, size, err := index.Extent(r.layout.Metas, i, r.layout.DataSize)
	if err != nil {
		return nil, err
	}
	if offset != meta.Offset {
		return nil, errors.Wrapf(index.ErrCorruptIndex, "block %d: meta offset %d, layout offset %d",
			i, meta.Offset, offset)
	}

	buf, err := readSection(r.r, offset, size)
	if err != nil {
		return nil, errors.Wrapf(err, "block %d", i)
	}

	if r.checksum {
		if buf, err = frame.Open(buf); err != nil {
			r.logger.Warn("block %d at offset %d failed verification: %v", i, offset, err)
			return nil, errors.Wrapf(err, "block %d", i)
		}
	}

	blk, err := block.Decode(buf, block.WithKeyOrder(r.order))
	if err != nil {
		r.logger.Warn("block %d at offset %d failed to decode: %v", i, offset, err)
		return nil, errors.Wrapf(err, "block %d", i)
	}
	return blk, nil
}

// Get returns the value stored under key
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	return index.Get(r, r.layout.Metas, r.order, key)
}

// Seek returns a position at the first entry whose key is not less than key.
// The iterator is invalid when no such entry exists.
func (r *Reader) Seek(key []byte) (block.Iterator, error) {
	return index.Seek(r, r.layout.Metas, r.order, key)
}

// NewIterator returns an unpositioned cursor over every entry
func (r *Reader) NewIterator() *Iterator {
	return &Iterator{r: r, blockIdx: -1}
}

// Scan calls fn for each entry with start <= key < end in key order until fn
// returns false. A nil bound leaves that side open.
func (r *Reader) Scan(start, end []byte, fn func(key, value []byte) bool) error {
	it := r.NewIterator()
	return drain(it, bounded.NewBoundedIterator(it, r.order, start, end), fn)
}

// ScanPrefix calls fn for each entry whose key starts with prefix, in key
// order, until fn returns false. Under lexicographic order the matching keys
// are contiguous and only their range is read; other orders filter a full
// scan.
func (r *Reader) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	it := r.NewIterator()

	var src iterator.Iterator = it
	if r.order == keyorder.Lexicographic {
		src = bounded.NewBoundedIterator(it, r.order, prefix, filtered.PrefixEnd(prefix))
	}
	return drain(it, filtered.NewPrefixIterator(src, prefix), fn)
}

func drain(it *Iterator, scan iterator.Iterator, fn func(key, value []byte) bool) error {
	for scan.SeekToFirst(); scan.Valid(); scan.Next() {
		if !fn(scan.Key(), scan.Value()) {
			break
		}
	}
	return it.Error()
}
