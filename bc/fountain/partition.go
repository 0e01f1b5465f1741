package fountain

import "fmt"

// FragmentLength returns the fragment length for splitting a message of
// messageLen bytes. It picks the smallest number of fragments whose length
// is at most maxLen, considering at most ceil(messageLen/minLen) fragments.
func FragmentLength(messageLen, maxLen, minLen int) int {
	maxCount := (messageLen + minLen - 1) / minLen
	length := messageLen
	for count := 1; count <= maxCount; count++ {
		length = (messageLen + count - 1) / count
		if length <= maxLen {
			break
		}
	}
	return length
}

// partition splits message into fragments of fragmentLen bytes, zero
// padding the last fragment.
func partition(message []byte, fragmentLen int) ([][]byte, error) {
	if fragmentLen <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFragmentLength, fragmentLen)
	}
	n := (len(message) + fragmentLen - 1) / fragmentLen
	// One allocation backs every fragment.
	buf := make([]byte, n*fragmentLen)
	copy(buf, message)
	fragments := make([][]byte, n)
	for i := range fragments {
		fragments[i] = buf[i*fragmentLen : (i+1)*fragmentLen : (i+1)*fragmentLen]
	}
	return fragments, nil
}
