// Package frame wraps encoded blocks and index sections with an xxhash64
// trailer so corruption is detected before decoding.
//
//	payload  checksum(8, little-endian xxhash64 of payload)
package frame

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Overhead is the number of bytes a frame adds to its payload
const Overhead = 8

var (
	// ErrShortFrame indicates the input cannot hold a checksum
	ErrShortFrame = errors.New("frame too short")
	// ErrChecksumMismatch indicates the payload does not match its checksum
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
)

// Seal returns payload followed by its checksum
func Seal(payload []byte) []byte {
	return AppendSeal(make([]byte, 0, len(payload)+Overhead), payload)
}

// AppendSeal appends the framed payload to dst
func AppendSeal(dst, payload []byte) []byte {
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint64(dst, xxhash.Sum64(payload))
}

// Open verifies a frame and returns its payload. The payload aliases framed.
func Open(framed []byte) ([]byte, error) {
	if len(framed) < Overhead {
		return nil, errors.Wrapf(ErrShortFrame, "%d bytes", len(framed))
	}

	payload := framed[:len(framed)-Overhead]
	stored := binary.LittleEndian.Uint64(framed[len(payload):])
	if computed := xxhash.Sum64(payload); computed != stored {
		return nil, errors.Wrapf(ErrChecksumMismatch, "stored %016x, computed %016x", stored, computed)
	}

	return payload, nil
}
