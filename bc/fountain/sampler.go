package fountain

import "seedhammer.com/bcur/bc/xoshiro256"

// aliasTable samples a discrete distribution in constant time using
// Vose's alias method.
type aliasTable struct {
	probs   []float64
	aliases []int
}

func newAliasTable(weights []float64) aliasTable {
	var sum float64
	for _, w := range weights {
		sum += w
	}

	n := len(weights)
	P := make([]float64, n)
	for i, w := range weights {
		P[i] = w * float64(n) / sum
	}

	var S, L []int

	for i := n - 1; i >= 0; i-- {
		if P[i] < 1 {
			S = append(S, i)
		} else {
			L = append(L, i)
		}
	}

	t := aliasTable{
		probs:   make([]float64, n),
		aliases: make([]int, n),
	}
	for len(S) > 0 && len(L) > 0 {
		a := S[len(S)-1]
		S = S[:len(S)-1]
		g := L[len(L)-1]
		L = L[:len(L)-1]
		t.probs[a] = P[a]
		t.aliases[a] = g
		P[g] += P[a] - 1
		if P[g] < 1 {
			S = append(S, g)
		} else {
			L = append(L, g)
		}
	}

	// Leftover mass is 1 up to rounding.
	for _, g := range L {
		t.probs[g] = 1
	}
	for _, a := range S {
		t.probs[a] = 1
	}
	return t
}

// next draws an index. It consumes exactly two values from rng.
func (t aliasTable) next(rng *xoshiro256.Source) int {
	r1 := rng.Float64()
	r2 := rng.Float64()
	i := int(float64(len(t.probs)) * r1)
	if r2 < t.probs[i] {
		return i
	}
	return t.aliases[i]
}

// chooseDegree picks the number of fragments to mix into a part. Degree
// d is chosen with probability proportional to 1/d.
func chooseDegree(seqLen int, rng *xoshiro256.Source) int {
	weights := make([]float64, seqLen)
	for i := range weights {
		weights[i] = 1. / float64(i+1)
	}
	return newAliasTable(weights).next(rng) + 1
}
