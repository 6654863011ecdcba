// Package khash computes content hashes for loaded kernel and module
// images. These aren't part of the attribute-array wire format itself, and
// no other package in this repository calls them.
package khash

import (
	"encoding/hex"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Sum is a blake2b-256 digest, printed as lowercase hex.
type Sum [blake2b.Size256]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Hash digests r fully and returns its blake2b-256 sum.
func Hash(r io.Reader) (Sum, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return Sum{}, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return Sum{}, err
	}
	var sum Sum
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// HashBytes is Hash for an in-memory buffer, used for modules already read
// into the PMM rather than streamed from a filesystem.
func HashBytes(data []byte) Sum {
	return Sum(blake2b.Sum256(data))
}
