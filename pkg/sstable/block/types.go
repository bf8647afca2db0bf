package block

import (
	"math"

	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/keyorder"
)

const (
	// DefaultBlockSize is the target encoded size for each block
	DefaultBlockSize = 4 * 1024 // 4KB
	// MaxKeySize is the largest key a block can hold
	MaxKeySize = math.MaxUint16
	// MaxValueSize is the largest value a block can hold
	MaxValueSize = math.MaxUint16

	lenSize    = 2 // key_len / value_len field
	offsetSize = 2 // one entry in the offset table
	countSize  = 2 // trailing entry count
	// entryOverhead is what one entry costs on top of its key and value bytes
	entryOverhead = 2*lenSize + offsetSize
)

var (
	// ErrEmptyKey is returned when adding an entry with an empty key
	ErrEmptyKey = errors.New("empty key")
	// ErrKeyTooLarge is returned when a key does not fit a 16-bit length
	ErrKeyTooLarge = errors.New("key too large")
	// ErrValueTooLarge is returned when a value does not fit a 16-bit length
	ErrValueTooLarge = errors.New("value too large")
	// ErrBlockFull is returned when an entry would push a non-empty block
	// past its size budget. The caller should build the current block and
	// retry the entry on a fresh builder.
	ErrBlockFull = errors.New("block full")
	// ErrOrderViolation is returned when keys are not strictly ascending
	ErrOrderViolation = errors.New("keys must be added in strictly increasing order")
	// ErrBuildOnEmpty is returned when building a block with no entries
	ErrBuildOnEmpty = errors.New("cannot build empty block")
	// ErrBuilderFinished is returned when a builder is used after Build
	ErrBuilderFinished = errors.New("builder already finished")
	// ErrCorruptBlock indicates encoded block data failed validation
	ErrCorruptBlock = errors.New("corrupt block")
)

// Option configures a Builder or a decoded Block
type Option func(*options)

type options struct {
	order      keyorder.Order
	checkOrder bool
}

func newOptions(checkOrder bool, opts []Option) *options {
	o := &options{
		order:      keyorder.Lexicographic,
		checkOrder: checkOrder,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.order = keyorder.Default(o.order)
	return o
}

// WithKeyOrder sets the order keys are validated and searched with.
// Defaults to keyorder.Lexicographic.
func WithKeyOrder(order keyorder.Order) Option {
	return func(o *options) {
		o.order = order
	}
}

// WithOrderCheck turns strict ascending-key validation on or off.
// Builders check by default; Decode does not.
func WithOrderCheck(enabled bool) Option {
	return func(o *options) {
		o.checkOrder = enabled
	}
}
