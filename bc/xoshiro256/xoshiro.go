// Package xoshiro256 implements the xoshiro256** pseudo-random
// number generator. The implementation is based on the public domain
// [C implementation].
//
// The generator is the shared source of randomness for the fountain
// encoder and decoder in [BCR-2020-005]: both ends seed it from the same
// bytes and must observe bit-identical sequences.
//
// [C implementation]: https://xoshiro.di.unimi.it/xoshiro256starstar.c
// [BCR-2020-005]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-005-ur.md
package xoshiro256

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

type Source struct {
	state [4]uint64
}

// New returns a source seeded with the SHA-256 digest of seed.
func New(seed []byte) *Source {
	s := new(Source)
	s.Seed(sha256.Sum256(seed))
	return s
}

func (s *Source) Seed(seed [32]byte) {
	s.state[0] = binary.BigEndian.Uint64(seed[0:8])
	s.state[1] = binary.BigEndian.Uint64(seed[8:16])
	s.state[2] = binary.BigEndian.Uint64(seed[16:24])
	s.state[3] = binary.BigEndian.Uint64(seed[24:32])
}

func (s *Source) Uint64() uint64 {
	result := rotl(s.state[1]*5, 7) * 9

	t := s.state[1] << 17

	s.state[2] ^= s.state[0]
	s.state[3] ^= s.state[1]
	s.state[1] ^= s.state[2]
	s.state[0] ^= s.state[3]

	s.state[2] ^= t

	s.state[3] = rotl(s.state[3], 45)

	return result
}

// Float64 returns a number in [0, 1).
func (s *Source) Float64() float64 {
	return float64(s.Uint64()) / (float64(math.MaxUint64) + 1)
}

// Intn returns a number in [0, n).
func (s *Source) Intn(n int) int {
	return int(s.Float64() * float64(n))
}

// IntRange returns a number in the closed interval [low, high].
func (s *Source) IntRange(low, high int) int {
	return int(math.Floor(s.Float64()*float64(high-low+1) + float64(low)))
}

// Bytes returns n pseudo-random bytes.
func (s *Source) Bytes(n int) []byte {
	b := make([]byte, n)
	s.Read(b)
	return b
}

// Read fills p with pseudo-random bytes. It never fails.
func (s *Source) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(s.IntRange(0, 255))
	}
	return len(p), nil
}

func rotl(x uint64, k int) uint64 {
	return (x << k) | (x >> (64 - k))
}
