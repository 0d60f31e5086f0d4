// Package hash defines the consensus core's 256-bit digest type and the
// canonical header-hashing routine from spec §6. The hash primitive is
// SHA3-256 (golang.org/x/crypto/sha3), one of the digests already pulled
// in by this lineage's address/crypto code.
package hash

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Size is the digest length in bytes.
const Size = 32

// Hash is a 256-bit cryptographic digest, big-endian when compared as an
// integer (per spec's target-comparison rule).
type Hash [Size]byte

// ZeroHash is the all-zero digest, used for null outpoints and genesis
// previous-hash fields.
var ZeroHash Hash

// String returns the big-endian hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero digest.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Cmp compares h and other as big-endian unsigned integers, returning -1,
// 0 or 1. Used to test block.hash <= target.
func (h Hash) Cmp(other Hash) int {
	for i := 0; i < Size; i++ {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// LessOrEqual reports whether h <= target, the core PoW acceptance test.
func (h Hash) LessOrEqual(target Hash) bool {
	return h.Cmp(target) <= 0
}

// Sum256 computes the SHA3-256 digest of data.
func Sum256(data []byte) Hash {
	return sha3.Sum256(data)
}

// FromBytes copies b into a Hash, left-padding with zeroes if b is shorter
// than Size and erroring if it is longer.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) > Size {
		return h, errTooLong
	}
	copy(h[Size-len(b):], b)
	return h, nil
}

var errTooLong = &hashLengthError{}

type hashLengthError struct{}

func (*hashLengthError) Error() string { return "hash: source slice longer than 32 bytes" }

// PutUint32LE appends v to dst in little-endian order, matching the
// canonical header encoding's field order (spec §6).
func PutUint32LE(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// PutUint64LE appends v to dst in little-endian order.
func PutUint64LE(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}
