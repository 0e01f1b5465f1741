package fountain

import (
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Decoder reconstructs a message from its parts. The zero value is
// ready to use. A Decoder is not safe for concurrent use.
//
// Every part is an equation over the unknown fragments of the message:
// the XOR of the fragments it mixes. The decoder keeps solved fragments
// (simple blocks) and unsolved equations (mixed blocks), and reduces
// equations against each other until every fragment is solved.
//
// Only multi-part messages pass through a Decoder. A single-part message
// is transmitted as is (see Encoder.NextPart) and is handled by the
// framing layer.
type Decoder struct {
	// Logger receives debug messages about rejected parts. Nil
	// disables logging.
	Logger *zap.Logger
	// MaxMixed caps the number of unsolved mixed blocks retained. Zero
	// means 4*SeqLen+16. Mixed parts beyond the cap are still used to
	// reduce retained blocks, but not stored themselves.
	MaxMixed int

	started bool
	header  header
	done    bool
	err     error
	result  []byte

	processed   int
	seen        []bool
	lastIndexes []int
	simple      map[int]*block
	mixed       map[string]*block
	queue       []*block
}

// header holds the fields shared by every part of a message.
type header struct {
	SeqLen      int
	MessageLen  int
	Checksum    uint32
	FragmentLen int
}

type block struct {
	// indexes is sorted.
	indexes []int
	data    []byte
}

// Receive adds an encoded part and reports whether it was accepted.
// Malformed parts and parts of other messages are ignored.
func (d *Decoder) Receive(data []byte) bool {
	return d.Add(data) == nil
}

// Add is like Receive but returns the reason for rejecting a part.
func (d *Decoder) Add(data []byte) error {
	if d.done {
		return ErrDone
	}
	p, err := ParsePart(data)
	if err != nil {
		d.logger().Debug("fountain: discarding malformed part", zap.Error(err))
		return err
	}
	return d.add(p)
}

// ReceivePart adds a parsed part and reports whether it was accepted.
func (d *Decoder) ReceivePart(p Part) bool {
	return d.AddPart(p) == nil
}

// AddPart is like ReceivePart but returns the reason for rejecting
// a part.
func (d *Decoder) AddPart(p Part) error {
	if d.done {
		return ErrDone
	}
	if err := p.validate(); err != nil {
		d.logger().Debug("fountain: discarding malformed part", zap.Error(err))
		return err
	}
	return d.add(p)
}

func (d *Decoder) add(p Part) error {
	h := header{
		SeqLen:      p.SeqLen,
		MessageLen:  p.MessageLen,
		Checksum:    p.Checksum,
		FragmentLen: len(p.Data),
	}
	if !d.started {
		d.started = true
		d.header = h
		d.seen = make([]bool, h.SeqLen)
		d.simple = make(map[int]*block)
		d.mixed = make(map[string]*block)
	}
	if h != d.header {
		d.logger().Debug("fountain: discarding part of another message",
			zap.Uint32("seq_num", p.SeqNum),
			zap.Int("seq_len", p.SeqLen),
			zap.Uint32("checksum", p.Checksum))
		return ErrIncompatiblePart
	}
	indexes := p.Indexes()
	slices.Sort(indexes)
	d.lastIndexes = indexes
	d.processed++
	d.queue = append(d.queue, &block{
		indexes: slices.Clone(indexes),
		data:    slices.Clone(p.Data),
	})
	d.processQueue()
	return nil
}

func (d *Decoder) processQueue() {
	for !d.done && len(d.queue) > 0 {
		b := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		for _, idx := range b.indexes {
			d.seen[idx] = true
		}
		if len(b.indexes) == 1 {
			d.processSimple(b)
		} else {
			d.processMixed(b)
		}
	}
	if d.done {
		d.queue = nil
	}
}

func (d *Decoder) processSimple(b *block) {
	idx := b.indexes[0]
	if _, dup := d.simple[idx]; dup {
		return
	}
	d.simple[idx] = b
	if len(d.simple) == d.header.SeqLen {
		d.finalize()
		return
	}
	d.reduceMixedBy(b)
}

func (d *Decoder) processMixed(b *block) {
	if _, dup := d.mixed[mixedKey(b.indexes)]; dup {
		return
	}
	for _, idx := range slices.Clone(b.indexes) {
		if s, ok := d.simple[idx]; ok {
			reduce(b, s)
		}
	}
	for _, k := range d.mixedKeys() {
		reduce(b, d.mixed[k])
	}
	if len(b.indexes) == 1 {
		d.queue = append(d.queue, b)
		return
	}
	d.reduceMixedBy(b)
	key := mixedKey(b.indexes)
	if _, dup := d.mixed[key]; dup {
		return
	}
	limit := d.MaxMixed
	if limit <= 0 {
		limit = 4*d.header.SeqLen + 16
	}
	if len(d.mixed) >= limit {
		d.logger().Debug("fountain: mixed block limit reached", zap.Int("limit", limit))
		return
	}
	d.mixed[key] = b
}

// reduceMixedBy reduces every mixed block by b, queueing the blocks that
// become simple.
func (d *Decoder) reduceMixedBy(b *block) {
	for _, k := range d.mixedKeys() {
		m, ok := d.mixed[k]
		if !ok || !reduce(m, b) {
			continue
		}
		delete(d.mixed, k)
		if len(m.indexes) == 1 {
			d.queue = append(d.queue, m)
			continue
		}
		if key := mixedKey(m.indexes); d.mixed[key] == nil {
			d.mixed[key] = m
		}
	}
}

func (d *Decoder) mixedKeys() []string {
	keys := make([]string, 0, len(d.mixed))
	for k := range d.mixed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// reduce subtracts b from a if the indexes of b is a strict subset
// of a's. It reports whether a was modified.
func reduce(a, b *block) bool {
	if len(b.indexes) >= len(a.indexes) {
		return false
	}
	var rest []int
	i := 0
	for _, idx := range a.indexes {
		if i < len(b.indexes) && b.indexes[i] == idx {
			i++
			continue
		}
		rest = append(rest, idx)
	}
	if i != len(b.indexes) {
		return false
	}
	a.indexes = rest
	xor(a.data, b.data)
	return true
}

func (d *Decoder) finalize() {
	msg := make([]byte, 0, d.header.SeqLen*d.header.FragmentLen)
	for i := range d.header.SeqLen {
		msg = append(msg, d.simple[i].data...)
	}
	msg = msg[:d.header.MessageLen]
	d.done = true
	if sum := Checksum(msg); sum != d.header.Checksum {
		d.err = &ChecksumError{Want: d.header.Checksum, Got: sum}
		d.logger().Debug("fountain: decoded message failed checksum", zap.Error(d.err))
		return
	}
	d.result = msg
}

// Result returns the decoded message. It returns nil and a nil error
// while decoding is in progress.
func (d *Decoder) Result() ([]byte, error) {
	if !d.done {
		return nil, nil
	}
	return d.result, d.err
}

// IsDone reports whether decoding finished, successfully or not.
func (d *Decoder) IsDone() bool {
	return d.done
}

func (d *Decoder) IsSuccessful() bool {
	return d.done && d.err == nil
}

// Err returns the error that ended decoding, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Progress returns the fraction of fragments solved. It doesn't account
// for information held by unsolved mixed parts.
func (d *Decoder) Progress() float64 {
	if !d.started {
		return 0
	}
	return float64(len(d.simple)) / float64(d.header.SeqLen)
}

// EstimatedPercentComplete returns a heuristic progress in [0, 1]
// based on the number of parts received, suitable for display.
func (d *Decoder) EstimatedPercentComplete() float64 {
	if d.done {
		return 1
	}
	if !d.started {
		return 0
	}
	estimated := float64(d.header.SeqLen) * 1.75
	return min(float64(d.processed)/estimated, 0.99)
}

// ProcessedParts returns the number of parts accepted, duplicates
// included.
func (d *Decoder) ProcessedParts() int {
	return d.processed
}

// ExpectedPartCount returns the number of fragments of the message,
// or zero before the first part.
func (d *Decoder) ExpectedPartCount() int {
	return d.header.SeqLen
}

// ReceivedIndexes returns the fragment indexes mixed into any
// part received so far.
func (d *Decoder) ReceivedIndexes() []int {
	var idxs []int
	for i, s := range d.seen {
		if s {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// SolvedIndexes returns the indexes of the solved fragments.
func (d *Decoder) SolvedIndexes() []int {
	idxs := make([]int, 0, len(d.simple))
	for i := range d.simple {
		idxs = append(idxs, i)
	}
	slices.Sort(idxs)
	return idxs
}

// LastIndexes returns the fragment indexes of the last accepted part.
func (d *Decoder) LastIndexes() []int {
	return slices.Clone(d.lastIndexes)
}

func (d *Decoder) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func mixedKey(ids []int) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.Itoa(id)
	}
	return strings.Join(strs, "|")
}
