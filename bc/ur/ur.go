// Package ur implements the Uniform Resources (UR) encoding
// specified in [BCR-2020-005].
//
// [BCR-2020-005]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-005-ur.md
package ur

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"seedhammer.com/bcur/bc/bytewords"
	"seedhammer.com/bcur/bc/fountain"
)

var (
	ErrInvalid      = errors.New("ur: invalid UR")
	ErrIncompatible = errors.New("ur: incompatible fragment")
)

// Data describes a message to be split into m-of-n shares.
type Data struct {
	// Type is the UR type of the message. Empty means "bytes".
	Type      string
	Data      []byte
	Threshold int
	Shards    int
}

func (d Data) typ() string {
	if d.Type == "" {
		return "bytes"
	}
	return d.Type
}

// Split searches for the appropriate seqNum in the [UR] encoding
// that makes m-of-n backups recoverable regardless of
// which m-sized subset is used. To achieve that, we're exploiting the
// fact that the UR encoding of a fragment can contain multiple fragments,
// xor'ed together.
//
// Schemes are implemented for backups where m == n - 1 and for 3-of-5.
//
// For m == n - 1, the data is split into m parts (seqLen in UR parlor), and m shares have parts
// assigned as follows:
//
//	1, 2, ..., m
//
// The final share contains the xor of all m parts.
//
// The scheme can trivially recover the data when selecting the m shares each with 1
// part. For all other selections, one share will be missing, say k, but we'll have the
// final plate with every part xor'ed together. So, k is derived by xor'ing (canceling) every
// part other than k into the combined part.
//
// Example: a 2-of-3 setup will have data split into 2 parts, with the 3 shares assigned parts
// like so: 1, 2, 1 ⊕ 2. Selecting the first two plates, the data is trivially recovered;
// otherwise we have one part, say 1, and the combined part. The other part, 2, is then recovered
// by xor'ing the one part with the combination: 1 ⊕ 1 ⊕ 2 = 2.
//
// For 3-of-5, the data is split into 6 parts, and each share will have two parts assigned.
//
// The assignment is as follows, where p1 and p2 denotes the two parts assigned to each share.
//
//	share    |    p1     |        p2
//	 1            1         6 ⊕ 5 ⊕ 2
//	 2            2         6 ⊕ 1 ⊕ 3
//	 3            3         6 ⊕ 2 ⊕ 4
//	 4            4         6 ⊕ 3 ⊕ 5
//	 5            5         6 ⊕ 4 ⊕ 1
//
// That is, every share is assigned a part and the combination of the 6 part with the neighbour
// parts.
//
// [UR]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-005-ur.md
func Split(data Data, keyIdx int) (urs []string) {
	var shares [][]int
	var seqLen int
	n, m := data.Shards, data.Threshold
	switch {
	case n-m <= 1:
		// Optimal: 1 part per share, seqLen m.
		seqLen = m
		if keyIdx < m {
			shares = [][]int{{keyIdx}}
		} else {
			all := make([]int, 0, m)
			for i := range m {
				all = append(all, i)
			}
			shares = [][]int{all}
		}
	case n == 4 && m == 2:
		// Optimal, but 2 parts per share.
		seqLen = m * 2
		switch keyIdx {
		case 0:
			shares = [][]int{{0}, {1}}
		case 1:
			shares = [][]int{{2}, {3}}
		case 2:
			shares = [][]int{{0, 2}, {1, 3}}
		case 3:
			shares = [][]int{{0, 2, 1}, {1, 3, 2}}
		}
	case n == 5 && m == 3:
		// Optimal, but 2 parts per share. There doesn't seem to exist an
		// optimal scheme with 1 part per share.
		seqLen = m * 2
		second := []int{
			n,
			(keyIdx + n - 1) % n,
			(keyIdx + 1) % n,
		}
		shares = [][]int{{keyIdx}, second}
	default:
		// Fallback: every share contains the complete data. It's only optimal
		// for 1-of-n backups.
		seqLen = 1
		shares = [][]int{{0}}
	}
	check := fountain.Checksum(data.Data)
	for _, frag := range shares {
		seqNum := fountain.SeqNumFor(seqLen, check, frag)
		qr := strings.ToUpper(Encode(data.typ(), data.Data, seqNum, seqLen))
		urs = append(urs, qr)
	}
	return
}

// Encode the fragment seqNum of a message split into exactly seqLen
// fragments. A seqLen of 1 results in a single-part UR.
func Encode(_type string, message []byte, seqNum, seqLen int) string {
	if seqLen == 1 {
		return fmt.Sprintf("ur:%s/%s", _type, bytewords.Encode(message))
	}
	data := fountain.Encode(message, seqNum, seqLen)
	return fmt.Sprintf("ur:%s/%d-%d/%s", _type, seqNum, seqLen, bytewords.Encode(data))
}

// ValidType reports whether typ is a well-formed UR type: a non-empty
// string of lowercase letters, digits and dashes.
func ValidType(typ string) bool {
	if typ == "" {
		return false
	}
	for _, c := range typ {
		switch {
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

// Parse splits a UR into its type, sequence and bytewords payload.
// The UR is case insensitive and the returned components are lower case.
// The sequence number and length are zero for single-part URs.
func Parse(ur string) (typ string, seqNum, seqLen int, payload string, err error) {
	ur = strings.ToLower(ur)
	const prefix = "ur:"
	if !strings.HasPrefix(ur, prefix) {
		return "", 0, 0, "", fmt.Errorf("%w: missing ur: prefix", ErrInvalid)
	}
	parts := strings.Split(ur[len(prefix):], "/")
	switch len(parts) {
	case 2:
		typ, payload = parts[0], parts[1]
	case 3:
		typ, payload = parts[0], parts[2]
		seqNum, seqLen, err = parseSeq(parts[1])
		if err != nil {
			return "", 0, 0, "", err
		}
	default:
		return "", 0, 0, "", fmt.Errorf("%w: %d path components", ErrInvalid, len(parts))
	}
	if !ValidType(typ) {
		return "", 0, 0, "", fmt.Errorf("%w: invalid type %q", ErrInvalid, typ)
	}
	if payload == "" {
		return "", 0, 0, "", fmt.Errorf("%w: empty payload", ErrInvalid)
	}
	return typ, seqNum, seqLen, payload, nil
}

// parseSeq parses a "<seqNum>-<seqLen>" path component.
func parseSeq(s string) (int, int, error) {
	num, n, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid sequence %q", ErrInvalid, s)
	}
	seqNum, err1 := strconv.ParseUint(num, 10, 32)
	seqLen, err2 := strconv.ParseUint(n, 10, 32)
	if err1 != nil || err2 != nil || seqNum == 0 || seqLen == 0 || seqLen > fountain.MaxSeqLen {
		return 0, 0, fmt.Errorf("%w: invalid sequence %q", ErrInvalid, s)
	}
	return int(seqNum), int(seqLen), nil
}

// Encoder emits the URs of a message: a single UR if the message fits
// in one fragment, or an endless stream of fountain coded parts.
type Encoder struct {
	typ      string
	fountain *fountain.Encoder
}

func NewEncoder(typ string, message []byte, maxFragmentLen, minFragmentLen int, firstSeqNum uint32) (*Encoder, error) {
	if !ValidType(typ) {
		return nil, fmt.Errorf("%w: invalid type %q", ErrInvalid, typ)
	}
	f, err := fountain.NewEncoder(message, maxFragmentLen, minFragmentLen, firstSeqNum)
	if err != nil {
		return nil, err
	}
	return &Encoder{typ: typ, fountain: f}, nil
}

// NextPart returns the next UR in lower case.
func (e *Encoder) NextPart() string {
	part := e.fountain.NextPart()
	if e.fountain.IsSinglePart() {
		return fmt.Sprintf("ur:%s/%s", e.typ, bytewords.Encode(part))
	}
	return fmt.Sprintf("ur:%s/%d-%d/%s", e.typ, e.fountain.SeqNum(), e.fountain.SeqLen(), bytewords.Encode(part))
}

func (e *Encoder) Type() string {
	return e.typ
}

func (e *Encoder) IsSinglePart() bool {
	return e.fountain.IsSinglePart()
}

// IsComplete reports whether every pure fragment has been emitted.
func (e *Encoder) IsComplete() bool {
	return e.fountain.IsComplete()
}

func (e *Encoder) SeqNum() uint32 {
	return e.fountain.SeqNum()
}

func (e *Encoder) SeqLen() int {
	return e.fountain.SeqLen()
}

func (e *Encoder) Reset() {
	e.fountain.Reset()
}

// Decoder collects URs until their message is complete. The
// zero value is ready to use.
type Decoder struct {
	// Logger receives diagnostics about discarded fragments.
	Logger *zap.Logger

	typ  string
	data []byte

	fountain fountain.Decoder
}

// Progress estimates the completed fraction of the message.
func (d *Decoder) Progress() float32 {
	if d.data != nil {
		return 1
	}
	return float32(d.fountain.EstimatedPercentComplete())
}

// IsComplete reports whether decoding has finished, successfully or not.
func (d *Decoder) IsComplete() bool {
	return d.data != nil || d.fountain.IsDone()
}

// Type returns the UR type, or the empty string before
// the first accepted fragment.
func (d *Decoder) Type() string {
	return d.typ
}

// Fountain exposes the underlying fountain decoder.
func (d *Decoder) Fountain() *fountain.Decoder {
	return &d.fountain
}

// Result returns the UR type and message. The message is nil
// while decoding is incomplete.
func (d *Decoder) Result() (string, []byte, error) {
	if d.data != nil {
		return d.typ, d.data, nil
	}
	v, err := d.fountain.Result()
	if v == nil {
		return "", nil, err
	}
	return d.typ, v, err
}

func (d *Decoder) Add(ur string) error {
	if d.IsComplete() {
		return fmt.Errorf("ur: %w", fountain.ErrDone)
	}
	typ, seqNum, seqLen, payload, err := Parse(ur)
	if err != nil {
		return err
	}
	if d.typ != "" && d.typ != typ {
		return fmt.Errorf("%w: type %q, expected %q", ErrIncompatible, typ, d.typ)
	}
	enc, err := bytewords.Decode(payload)
	if err != nil {
		return fmt.Errorf("ur: invalid fragment: %w", err)
	}
	if seqLen == 0 {
		if d.fountain.ProcessedParts() > 0 {
			return fmt.Errorf("%w: single-part UR in a multi-part stream", ErrIncompatible)
		}
		d.typ = typ
		d.data = enc
		return nil
	}
	p, err := fountain.ParsePart(enc)
	if err != nil {
		return fmt.Errorf("ur: invalid fragment: %w", err)
	}
	if int(p.SeqNum) != seqNum || p.SeqLen != seqLen {
		return fmt.Errorf("%w: sequence %d-%d doesn't match fragment %d-%d",
			ErrIncompatible, seqNum, seqLen, p.SeqNum, p.SeqLen)
	}
	d.fountain.Logger = d.Logger
	if err := d.fountain.AddPart(p); err != nil {
		if errors.Is(err, fountain.ErrIncompatiblePart) {
			return fmt.Errorf("%w: %w", ErrIncompatible, err)
		}
		return err
	}
	d.typ = typ
	return nil
}
