// Package fountain implements the fountain encoding used by
// the Uniform Resources (UR) format described in [BCR-2020-005].
//
// A message is split into equally sized fragments. An [Encoder] emits an
// unbounded sequence of parts where the first parts carry the fragments
// in order and later parts carry the XOR of a pseudo-randomly chosen set
// of fragments. A [Decoder] recovers the message from any sufficiently
// large subset of parts, in any order.
//
// [BCR-2020-005]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-005-ur.md
package fountain

import (
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrInvalidChecksum is reported when a decoded message doesn't
	// match the checksum announced by its parts.
	ErrInvalidChecksum = errors.New("fountain: invalid checksum")
	// ErrIncompatiblePart is reported for parts belonging to a
	// different message than the one being decoded.
	ErrIncompatiblePart = errors.New("fountain: incompatible part")
	// ErrDone is reported for parts received after decoding finished.
	ErrDone                  = errors.New("fountain: decoding already finished")
	ErrEmptyMessage          = errors.New("fountain: empty message")
	ErrInvalidFragmentLength = errors.New("fountain: invalid fragment length")
)

// Part is the unit of transmission. Every part of a message share
// the SeqLen, MessageLen and Checksum fields.
type Part struct {
	_ struct{} `cbor:",toarray"`
	// SeqNum is the 1-based sequence number of the part. Parts with
	// SeqNum <= SeqLen carry a single fragment.
	SeqNum uint32
	// SeqLen is the number of fragments of the message.
	SeqLen     int
	MessageLen int
	Checksum   uint32
	// Data is a fragment or the XOR of several fragments.
	Data []byte
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Encode the part as a CBOR array.
func (p Part) Encode() ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(p)
}

// ParsePart decodes and validates a CBOR encoded part.
func ParsePart(data []byte) (Part, error) {
	var p Part
	rest, err := decMode.UnmarshalFirst(data, &p)
	if err != nil {
		return Part{}, fmt.Errorf("fountain: failed to decode part: %w", err)
	}
	if len(rest) > 0 {
		return Part{}, fmt.Errorf("fountain: %d bytes of trailing data", len(rest))
	}
	if err := p.validate(); err != nil {
		return Part{}, err
	}
	return p, nil
}

// MaxSeqLen is the maximum number of fragments in a message. It bounds
// the work a single forged part can cause in a Decoder.
const MaxSeqLen = 1 << 16

func (p Part) validate() error {
	switch {
	case p.SeqNum == 0:
		return errors.New("fountain: zero sequence number")
	case p.SeqLen < 1 || p.SeqLen > MaxSeqLen:
		return fmt.Errorf("fountain: invalid sequence length %d", p.SeqLen)
	case p.MessageLen < p.SeqLen:
		return fmt.Errorf("fountain: invalid message length %d", p.MessageLen)
	case len(p.Data) == 0:
		return errors.New("fountain: empty fragment")
	case (p.MessageLen-1)/len(p.Data) >= p.SeqLen:
		return fmt.Errorf("fountain: %d fragments of %d bytes can't hold %d bytes",
			p.SeqLen, len(p.Data), p.MessageLen)
	}
	return nil
}

// Indexes returns the fragment indexes mixed into the part, in
// selection order.
func (p Part) Indexes() []int {
	return chooseFragments(p.SeqNum, p.SeqLen, p.Checksum)
}

// Checksum computes the CRC-32 (IEEE) message checksum.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ChecksumError describes a message that failed to match the
// checksum of its parts.
type ChecksumError struct {
	Want, Got uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("fountain: checksum mismatch (got %08x, expected %08x)", e.Got, e.Want)
}

func (e *ChecksumError) Unwrap() error {
	return ErrInvalidChecksum
}
