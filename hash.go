package slabhash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashFunc is the hash functor contract from spec 6: a pure, deterministic
// function of the key producing a 32-bit value. The bucket index is
// HashFunc(key) mod num_buckets; Table takes care of the modulo.
type HashFunc[K any] func(K) uint32

// StringHash returns the default HashFunc for string keys, built on
// xxhash — the fast, non-cryptographic hash used for exactly this role by
// the corpus's preindex and turbo/database packages. seed folds in
// spec 6's optional construction-time seed.
func StringHash(seed uint64) HashFunc[string] {
	return func(s string) uint32 {
		h := xxhash.Sum64String(s) ^ seed
		return uint32(h) ^ uint32(h>>32)
	}
}

// BytesHash is StringHash for []byte keys.
func BytesHash(seed uint64) HashFunc[[]byte] {
	return func(b []byte) uint32 {
		h := xxhash.Sum64(b) ^ seed
		return uint32(h) ^ uint32(h>>32)
	}
}

// Uint64Hash is the default HashFunc for uint64 keys.
func Uint64Hash(seed uint64) HashFunc[uint64] {
	return func(k uint64) uint32 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], k)
		h := xxhash.Sum64(buf[:]) ^ seed
		return uint32(h) ^ uint32(h>>32)
	}
}

// Uint32Hash is the default HashFunc for uint32 keys.
func Uint32Hash(seed uint64) HashFunc[uint32] {
	return func(k uint32) uint32 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], k)
		h := xxhash.Sum64(buf[:]) ^ seed
		return uint32(h) ^ uint32(h>>32)
	}
}
