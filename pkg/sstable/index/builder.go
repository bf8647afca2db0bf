package index

import (
	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/keyorder"
)

// Builder accumulates the metas of a table's blocks as they are written
type Builder struct {
	order     keyorder.Order
	checkKeys bool
	metas     []BlockMeta
	size      int
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithKeyCheck turns the ascending first-key check on or off. It is on by
// default; offsets are always checked.
func WithKeyCheck(enabled bool) BuilderOption {
	return func(b *Builder) {
		b.checkKeys = enabled
	}
}

// NewBuilder creates an index builder comparing first keys with order
func NewBuilder(order keyorder.Order, opts ...BuilderOption) *Builder {
	b := &Builder{order: keyorder.Default(order), checkKeys: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Check reports whether Add would accept the meta, without recording it
func (b *Builder) Check(offset uint32, firstKey []byte) error {
	if err := checkKey(firstKey); err != nil {
		return err
	}
	if n := len(b.metas); n > 0 {
		last := b.metas[n-1]
		if offset <= last.Offset {
			return errors.Wrapf(ErrIndexOrder, "offset %d after %d", offset, last.Offset)
		}
		if b.checkKeys && b.order.Compare(firstKey, last.FirstKey) <= 0 {
			return errors.Wrapf(ErrIndexOrder, "first key %q after %q", firstKey, last.FirstKey)
		}
	}
	return nil
}

// Add records a block written at offset whose smallest key is firstKey.
// Offsets and, unless disabled, first keys must be strictly ascending.
func (b *Builder) Add(offset uint32, firstKey []byte) error {
	if err := b.Check(offset, firstKey); err != nil {
		return err
	}

	meta := BlockMeta{
		Offset:   offset,
		FirstKey: append([]byte(nil), firstKey...),
	}
	b.metas = append(b.metas, meta)
	b.size += meta.EncodedSize()
	return nil
}

// Len returns the number of blocks recorded
func (b *Builder) Len() int {
	return len(b.metas)
}

// EncodedSize returns the size of the encoded index
func (b *Builder) EncodedSize() int {
	return b.size
}

// Metas returns the recorded metas. The slice must not be modified.
func (b *Builder) Metas() []BlockMeta {
	return b.metas
}

// Encode serializes the recorded metas
func (b *Builder) Encode() []byte {
	return appendEncoded(make([]byte, 0, b.size), b.metas)
}

// ValidateOffsets checks that decoded metas are strictly ascending by offset
func ValidateOffsets(metas []BlockMeta) error {
	for i := 1; i < len(metas); i++ {
		if metas[i].Offset <= metas[i-1].Offset {
			return errors.Wrapf(ErrIndexOrder, "entry %d: offset %d after %d",
				i, metas[i].Offset, metas[i-1].Offset)
		}
	}
	return nil
}

// Validate checks that decoded metas are strictly ascending by offset and
// first key
func Validate(metas []BlockMeta, order keyorder.Order) error {
	if err := ValidateOffsets(metas); err != nil {
		return err
	}

	order = keyorder.Default(order)
	for i := 1; i < len(metas); i++ {
		if order.Compare(metas[i].FirstKey, metas[i-1].FirstKey) <= 0 {
			return errors.Wrapf(ErrIndexOrder, "entry %d: first key %q after %q",
				i, metas[i].FirstKey, metas[i-1].FirstKey)
		}
	}
	return nil
}
