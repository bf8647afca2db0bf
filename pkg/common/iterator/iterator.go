package iterator

// Iterator defines the interface for walking sorted key-value pairs.
// Block cursors, table-level cursors and range-limited wrappers all satisfy
// it, so scan code can be written once regardless of where entries live.
//
// Key and Value return views into the underlying storage. They remain valid
// as long as the storage is alive, but callers must copy them before
// mutating.
type Iterator interface {
	// SeekToFirst positions the iterator at the first key
	SeekToFirst()

	// SeekToLast positions the iterator at the last key
	SeekToLast()

	// Seek positions the iterator at the first key >= target
	Seek(target []byte) bool

	// Next advances the iterator to the next key
	Next() bool

	// Prev moves the iterator to the previous key
	Prev() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() []byte

	// Valid returns true if the iterator is positioned at a valid entry
	Valid() bool
}
