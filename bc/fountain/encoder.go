package fountain

import (
	"fmt"
	"math"
)

// Encoder generates the parts of a single message. The zero value is not
// usable; create encoders with NewEncoder.
type Encoder struct {
	message   []byte
	fragments [][]byte
	checksum  uint32
	seqNum    uint32
}

// NewEncoder creates an encoder for message, split into fragments of at
// most maxFragmentLen bytes. The first part produced by NextPart has
// sequence number firstSeqNum+1.
//
// A message that fits in maxFragmentLen bytes is encoded as a single
// part, the message itself.
func NewEncoder(message []byte, maxFragmentLen, minFragmentLen int, firstSeqNum uint32) (*Encoder, error) {
	if len(message) == 0 {
		return nil, ErrEmptyMessage
	}
	if minFragmentLen < 1 || maxFragmentLen < minFragmentLen {
		return nil, fmt.Errorf("%w: min %d, max %d", ErrInvalidFragmentLength, minFragmentLen, maxFragmentLen)
	}
	fragLen := len(message)
	if len(message) > maxFragmentLen {
		fragLen = FragmentLength(len(message), maxFragmentLen, minFragmentLen)
	}
	fragments, err := partition(message, fragLen)
	if err != nil {
		return nil, err
	}
	if len(fragments) > MaxSeqLen {
		return nil, fmt.Errorf("%w: %d bytes need %d fragments, more than %d",
			ErrInvalidFragmentLength, len(message), len(fragments), MaxSeqLen)
	}
	return &Encoder{
		message:   message,
		fragments: fragments,
		checksum:  Checksum(message),
		seqNum:    firstSeqNum,
	}, nil
}

// Encode a message split into exactly seqLen fragments and return the
// part with sequence number seqNum. The fragment length is
// ceil(len(message)/seqLen); fragments past the end of the message
// are all zeros. A seqLen of 1 returns the message itself. Encode panics
// if seqNum is out of range or seqLen exceeds the message length.
func Encode(message []byte, seqNum, seqLen int) []byte {
	if seqLen == 1 {
		return message
	}
	sn32 := uint32(seqNum)
	if int(sn32) != seqNum || sn32 == 0 {
		panic("seqNum out of range")
	}
	n := (len(message) + seqLen - 1) / seqLen
	buf := make([]byte, n*seqLen)
	copy(buf, message)
	e := &Encoder{
		message:   message,
		fragments: make([][]byte, seqLen),
		checksum:  Checksum(message),
	}
	for i := range e.fragments {
		e.fragments[i] = buf[i*n : (i+1)*n]
	}
	return e.encode(e.Part(sn32))
}

// NextPart advances the sequence number and returns the encoded
// part. The sequence number wraps around, skipping zero.
//
// For single-part messages NextPart returns the message itself, which
// is not a part a Decoder accepts. Framing layers such as package ur
// mark such messages and bypass the Decoder.
func (e *Encoder) NextPart() []byte {
	e.seqNum++
	if e.seqNum == 0 {
		e.seqNum++
	}
	if e.IsSinglePart() {
		return e.message
	}
	return e.encode(e.Part(e.seqNum))
}

func (e *Encoder) encode(p Part) []byte {
	b, err := p.Encode()
	if err != nil {
		// Valid by construction.
		panic(err)
	}
	return b
}

// Part returns the part for a sequence number without affecting
// the state of the encoder. Sequence numbers start at 1; Part panics
// if seqNum is zero.
func (e *Encoder) Part(seqNum uint32) Part {
	if seqNum == 0 {
		panic("fountain: zero sequence number")
	}
	data := make([]byte, e.FragmentLen())
	for _, idx := range chooseFragments(seqNum, e.SeqLen(), e.checksum) {
		xor(data, e.fragments[idx])
	}
	return Part{
		SeqNum:     seqNum,
		SeqLen:     e.SeqLen(),
		MessageLen: len(e.message),
		Checksum:   e.checksum,
		Data:       data,
	}
}

// AllParts returns ceil(SeqLen*(1+ratio)) parts starting from sequence
// number 1. The encoder's sequence number is left unchanged.
func (e *Encoder) AllParts(ratio float64) [][]byte {
	n := int(math.Ceil(float64(e.SeqLen()) * (1 + ratio)))
	saved := e.seqNum
	defer func() { e.seqNum = saved }()
	e.seqNum = 0
	parts := make([][]byte, n)
	for i := range parts {
		parts[i] = e.NextPart()
	}
	return parts
}

// IsComplete reports whether every fragment has been emitted as a
// part since the last reset.
func (e *Encoder) IsComplete() bool {
	return e.seqNum >= uint32(e.SeqLen())
}

func (e *Encoder) IsSinglePart() bool {
	return e.SeqLen() == 1
}

// Reset rewinds the sequence number to zero.
func (e *Encoder) Reset() {
	e.seqNum = 0
}

// SeqNum returns the sequence number of the most recent part.
func (e *Encoder) SeqNum() uint32 {
	return e.seqNum
}

func (e *Encoder) SeqLen() int {
	return len(e.fragments)
}

func (e *Encoder) FragmentLen() int {
	return len(e.fragments[0])
}

func (e *Encoder) MessageLen() int {
	return len(e.message)
}

func (e *Encoder) Checksum() uint32 {
	return e.checksum
}

func xor(dst, src []byte) {
	for i, b := range src {
		dst[i] ^= b
	}
}
