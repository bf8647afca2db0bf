// Package blockio streams sorted key-value pairs into consecutive encoded
// blocks followed by their sparse index, and reads them back through an
// io.ReaderAt.
//
// Section layout:
//
//	block_0 .. block_n-1  encoded blocks, each optionally sealed by package frame
//	index                 encoded BlockMeta records, optionally sealed
//
// Where the sections start and end is returned as a Layout; persisting it is
// up to the caller.
package blockio

import (
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/keyorder"
	"github.com/KevoDB/sstblock/pkg/common/log"
	"github.com/KevoDB/sstblock/pkg/config"
	"github.com/KevoDB/sstblock/pkg/sstable/block"
	"github.com/KevoDB/sstblock/pkg/sstable/frame"
	"github.com/KevoDB/sstblock/pkg/sstable/index"
)

var (
	// ErrClosed is returned when a finished writer is used
	ErrClosed = errors.New("writer is closed")
	// ErrTableTooLarge is returned when block offsets no longer fit 32 bits
	ErrTableTooLarge = errors.New("table exceeds 4GB")
)

// Layout describes the sections written by a Writer
type Layout struct {
	// Metas holds one entry per data block
	Metas []index.BlockMeta
	// DataSize is the length of the block section, which starts at 0
	DataSize uint32
	// IndexOffset is where the index section starts
	IndexOffset uint32
	// IndexSize is the length of the index section
	IndexSize uint32
	// Entries is the number of key-value pairs written, or -1 when the
	// layout was rebuilt from the index alone
	Entries int
}

// Blocks returns the number of data blocks
func (l Layout) Blocks() int {
	return len(l.Metas)
}

// WriterOption configures a Writer or a Reader
type WriterOption func(*ioOptions)

type ioOptions struct {
	logger log.Logger
}

// WithLogger sets the logger. Defaults to config.Config.Logger().
func WithLogger(logger log.Logger) WriterOption {
	return func(o *ioOptions) {
		o.logger = logger
	}
}

func newIOOptions(cfg *config.Config, opts []WriterOption) *ioOptions {
	o := &ioOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = cfg.Logger()
	}
	return o
}

// Writer packs a sorted stream of pairs into blocks. It is not safe for
// concurrent use.
type Writer struct {
	w        io.Writer
	order    keyorder.Order
	checksum bool
	verify   bool
	logger   log.Logger

	builder *block.Builder
	index   *index.Builder
	offset  uint64
	lastKey []byte // last key of the previously flushed block
	entries int
	buf     []byte
	sealed  []byte
	err     error // sticky write failure
	closed  bool
}

// NewWriter creates a writer that emits sections to w. A nil cfg uses
// config.NewDefaultConfig().
func NewWriter(w io.Writer, cfg *config.Config, opts ...WriterOption) (*Writer, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	snap := cfg.Snapshot()
	order := cfg.Order()
	o := newIOOptions(cfg, opts)

	return &Writer{
		w:        w,
		order:    order,
		checksum: snap.Checksum,
		verify:   snap.VerifyKeyOrder,
		logger:   o.logger.WithField("component", "blockio.writer"),
		builder: block.NewBuilder(uint16(snap.BlockSize),
			block.WithKeyOrder(order), block.WithOrderCheck(snap.VerifyKeyOrder)),
		index: index.NewBuilder(order, index.WithKeyCheck(snap.VerifyKeyOrder)),
	}, nil
}

// Add appends a pair. Keys must be strictly ascending across the whole
// stream. When the current block is full it is written out and the pair
// starts a new block. After a failed write every call returns that error.
func (w *Writer) Add(key, value []byte) error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	if w.verify && w.builder.Empty() && w.lastKey != nil && w.order.Compare(key, w.lastKey) <= 0 {
		return errors.Wrapf(block.ErrOrderViolation, "got %q after %q", key, w.lastKey)
	}

	err := w.builder.Add(key, value)
	if errors.Is(err, block.ErrBlockFull) {
		if err := w.flush(); err != nil {
			return err
		}
		err = w.builder.Add(key, value)
	}
	if err != nil {
		return err
	}

	w.entries++
	return nil
}

// Blocks returns the number of blocks written so far
func (w *Writer) Blocks() int {
	return w.index.Len()
}

// flush writes the pending block, if any. The builder is reset whether or
// not the write succeeds.
func (w *Writer) flush() error {
	if w.builder.Empty() {
		return nil
	}
	if err := w.index.Check(uint32(w.offset), w.builder.FirstKey()); err != nil {
		return err
	}

	blk, err := w.builder.Build()
	if err != nil {
		return err
	}
	defer w.builder.Reset()

	w.buf = blk.AppendEncoded(w.buf[:0])
	section := w.buf
	if w.checksum {
		w.sealed = frame.AppendSeal(w.sealed[:0], w.buf)
		section = w.sealed
	}

	if err := w.write(section, blk.FirstKey()); err != nil {
		return err
	}

	w.lastKey = append(w.lastKey[:0], blk.LastKey()...)
	return nil
}

// write emits one section. A non-nil firstKey records the section in the
// index once it is fully written.
func (w *Writer) write(section []byte, firstKey []byte) error {
	if w.offset+uint64(len(section)) > math.MaxUint32 {
		return errors.Wrapf(ErrTableTooLarge, "block of %d bytes at offset %d", len(section), w.offset)
	}

	n, err := w.w.Write(section)
	if err == nil && n != len(section) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.err = errors.Wrapf(err, "failed to write section at offset %d (%d of %d bytes)", w.offset, n, len(section))
		return w.err
	}

	if firstKey != nil {
		if err := w.index.Add(uint32(w.offset), firstKey); err != nil {
			return err
		}
		w.logger.Debug("wrote block %d: %d bytes at offset %d", w.index.Len()-1, n, w.offset)
	}
	w.offset += uint64(n)
	return nil
}

// Finish writes the last block and the index and returns the layout. The
// writer cannot be used afterwards.
func (w *Writer) Finish() (Layout, error) {
	if w.closed {
		return Layout{}, ErrClosed
	}
	w.closed = true
	if w.err != nil {
		return Layout{}, w.err
	}

	if err := w.flush(); err != nil {
		return Layout{}, err
	}

	dataSize := w.offset
	section := w.index.Encode()
	if w.checksum {
		section = frame.Seal(section)
	}
	if err := w.write(section, nil); err != nil {
		return Layout{}, err
	}

	layout := Layout{
		Metas:       w.index.Metas(),
		DataSize:    uint32(dataSize),
		IndexOffset: uint32(dataSize),
		IndexSize:   uint32(len(section)),
		Entries:     w.entries,
	}

	w.logger.Info("finished %d entries in %d blocks, index %d bytes",
		layout.Entries, layout.Blocks(), layout.IndexSize)

	return layout, nil
}
