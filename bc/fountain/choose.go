package fountain

import (
	"encoding/binary"
	"slices"

	"seedhammer.com/bcur/bc/xoshiro256"
)

// chooseFragments returns the indexes of the fragments mixed into the
// part with sequence number seqNum. The result is a pure function of its
// arguments; the encoder and decoder both rely on that.
//
// Mixed parts draw and remove degree random indexes from the ordered
// list 0..seqLen-1. Later draws never affect the first degree entries
// so the drawing stops there.
func chooseFragments(seqNum uint32, seqLen int, checksum uint32) []int {
	if seqNum <= uint32(seqLen) {
		return []int{int(seqNum - 1)}
	}
	seed := binary.BigEndian.AppendUint32(nil, seqNum)
	seed = binary.BigEndian.AppendUint32(seed, checksum)
	rng := xoshiro256.New(seed)
	degree := chooseDegree(seqLen, rng)
	remaining := newIndexSet(seqLen)
	chosen := make([]int, degree)
	for i := range chosen {
		chosen[i] = remaining.remove(rng.IntRange(0, seqLen-i-1))
	}
	return chosen
}

// indexSet is an ordered set of the indexes 0..n-1 backed by a
// Fenwick tree of membership counts.
type indexSet struct {
	tree []int
	// top is the largest power of two not exceeding len(tree)-1.
	top int
}

func newIndexSet(n int) *indexSet {
	tree := make([]int, n+1)
	for i := 1; i <= n; i++ {
		tree[i]++
		if j := i + i&-i; j <= n {
			tree[j] += tree[i]
		}
	}
	top := 1
	for top*2 <= n {
		top *= 2
	}
	return &indexSet{tree: tree, top: top}
}

// remove deletes and returns the k'th smallest index in the set.
func (s *indexSet) remove(k int) int {
	pos, rank := 0, k+1
	for step := s.top; step > 0; step /= 2 {
		if next := pos + step; next < len(s.tree) && s.tree[next] < rank {
			pos = next
			rank -= s.tree[next]
		}
	}
	for i := pos + 1; i < len(s.tree); i += i & -i {
		s.tree[i]--
	}
	return pos
}

// SeqNumFor searches for a seqNum that outputs the xor of fragments.
// It panics if no such seqNum exists.
func SeqNumFor(seqLen int, checksum uint32, fragments []int) int {
	want := slices.Clone(fragments)
	slices.Sort(want)
	for seqNum := uint32(1); seqNum != 0; seqNum++ {
		got := chooseFragments(seqNum, seqLen, checksum)
		slices.Sort(got)
		if slices.Equal(got, want) {
			return int(seqNum)
		}
	}
	panic("fountain: no sequence number mixes the requested fragments")
}
