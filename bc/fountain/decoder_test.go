package fountain

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"seedhammer.com/bcur/bc/xoshiro256"
)

func TestRoundtrip(t *testing.T) {
	tests := []struct {
		size, maxLen, minLen int
		loss                 float64
	}{
		{256, 30, 10, 0},
		{256, 30, 10, 0.5},
		{1, 1, 1, 0},
		{2, 1, 1, 0.3},
		{100, 7, 3, 0.2},
		{1024, 100, 10, 0.9},
		{1000, 1000, 10, 0},
		{12345, 1000, 10, 0.25},
		{5000, 50, 50, 0.4},
	}
	for _, test := range tests {
		name := fmt.Sprintf("%d-%d-%d-%v", test.size, test.maxLen, test.minLen, test.loss)
		t.Run(name, func(t *testing.T) {
			msg := makeMessage(test.size, name)
			e, err := NewEncoder(msg, test.maxLen, test.minLen, 0)
			if err != nil {
				t.Fatal(err)
			}
			if e.IsSinglePart() {
				// Single-part messages bypass the Decoder. Package ur
				// covers their roundtrip.
				if got := e.NextPart(); !bytes.Equal(got, msg) {
					t.Errorf("single part differs from message")
				}
				return
			}
			got, n := decode(t, e, xoshiro256.New([]byte(name)), test.loss)
			if !bytes.Equal(got, msg) {
				t.Errorf("decoded message differs")
			}
			if limit := 20*e.SeqLen() + 100; n > limit {
				t.Errorf("needed %d parts for %d fragments", n, e.SeqLen())
			}
		})
	}
}

// decode feeds parts from e to a decoder, dropping a fraction
// of them, and returns the result and the number of parts received.
func decode(t *testing.T, e *Encoder, rng *xoshiro256.Source, loss float64) ([]byte, int) {
	t.Helper()
	var d Decoder
	received := 0
	for !d.IsDone() {
		part := e.NextPart()
		if rng.Float64() < loss {
			continue
		}
		if !d.Receive(part) {
			t.Fatalf("part %d rejected", e.SeqNum())
		}
		received++
		if received > 100*e.SeqLen()+1000 {
			t.Fatalf("decoding didn't converge after %d parts", received)
		}
	}
	if !d.IsSuccessful() {
		t.Fatalf("decoding failed: %v", d.Err())
	}
	res, err := d.Result()
	if err != nil {
		t.Fatal(err)
	}
	if d.Progress() != 1 || d.EstimatedPercentComplete() != 1 {
		t.Errorf("finished with progress %v, estimated %v", d.Progress(), d.EstimatedPercentComplete())
	}
	return res, received
}

func TestMixedPartsOnly(t *testing.T) {
	msg := makeMessage(1024, "Wolf")
	for _, maxMixed := range []int{0, 1} {
		e, err := NewEncoder(msg, 100, 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		// Skip the pure parts.
		e.NextPart()
		for e.SeqNum() < uint32(e.SeqLen()) {
			e.NextPart()
		}
		d := Decoder{MaxMixed: maxMixed}
		for i := 0; !d.IsDone(); i++ {
			if i > 1000 {
				t.Fatalf("MaxMixed %d: decoding didn't converge", maxMixed)
			}
			d.Receive(e.NextPart())
			if maxMixed > 0 && len(d.mixed) > maxMixed {
				t.Fatalf("retained %d mixed blocks, limit %d", len(d.mixed), maxMixed)
			}
		}
		res, err := d.Result()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(res, msg) {
			t.Errorf("MaxMixed %d: decoded message differs", maxMixed)
		}
	}
}

func TestReverseOrder(t *testing.T) {
	msg := makeMessage(1024, "Wolf")
	e, err := NewEncoder(msg, 100, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	parts := e.AllParts(2)
	slices.Reverse(parts)
	var d Decoder
	for _, p := range parts {
		if d.IsDone() {
			break
		}
		d.Receive(p)
	}
	res, err := d.Result()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res, msg) {
		t.Errorf("decoded message differs")
	}
}

func TestDuplicateParts(t *testing.T) {
	msg := makeMessage(256, "Wolf")
	e, err := NewEncoder(msg, 30, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	parts := e.AllParts(1)
	var d Decoder
	// Part 1 is pure, part 10 mixes 6 fragments.
	for _, p := range [][]byte{parts[0], parts[0], parts[9], parts[9]} {
		if !d.Receive(p) {
			t.Fatal("part rejected")
		}
	}
	if got := d.ProcessedParts(); got != 4 {
		t.Errorf("ProcessedParts() = %d, want 4", got)
	}
	if got := d.SolvedIndexes(); !slices.Equal(got, []int{0}) {
		t.Errorf("SolvedIndexes() = %v, want [0]", got)
	}
	if got := len(d.mixed); got != 1 {
		t.Errorf("%d mixed blocks, want 1", got)
	}
	if got, want := d.ReceivedIndexes(), []int{0, 2, 3, 5, 6, 8}; !slices.Equal(got, want) {
		t.Errorf("ReceivedIndexes() = %v, want %v", got, want)
	}
	if got, want := d.LastIndexes(), []int{0, 2, 3, 5, 6, 8}; !slices.Equal(got, want) {
		t.Errorf("LastIndexes() = %v, want %v", got, want)
	}
	for _, p := range parts[1:9] {
		d.Receive(p)
	}
	res, err := d.Result()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res, msg) {
		t.Errorf("decoded message differs")
	}
}

func TestChecksumMismatch(t *testing.T) {
	msg := makeMessage(256, "Wolf")
	e, err := NewEncoder(msg, 30, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	var d Decoder
	for seqNum := uint32(1); seqNum <= 9; seqNum++ {
		p := e.Part(seqNum)
		if seqNum == 1 {
			p.Data[0] ^= 0x01
		}
		enc, err := p.Encode()
		if err != nil {
			t.Fatal(err)
		}
		if !d.Receive(enc) {
			t.Fatalf("part %d rejected", seqNum)
		}
	}
	if !d.IsDone() || d.IsSuccessful() {
		t.Fatalf("corrupt message decoded successfully")
	}
	res, err := d.Result()
	if res != nil || !errors.Is(err, ErrInvalidChecksum) {
		t.Errorf("Result() = %x, %v, want ErrInvalidChecksum", res, err)
	}
	var cerr *ChecksumError
	if !errors.As(d.Err(), &cerr) || cerr.Want != e.Checksum() {
		t.Errorf("Err() = %v, want a ChecksumError expecting %#x", d.Err(), e.Checksum())
	}
	if d.Receive(e.NextPart()) {
		t.Errorf("part accepted after decoding failed")
	}
	if err := d.Add(e.NextPart()); !errors.Is(err, ErrDone) {
		t.Errorf("Add after failure returned %v, want ErrDone", err)
	}
}

func TestCrossTalk(t *testing.T) {
	msg1 := makeMessage(1024, "first")
	msg2 := makeMessage(1024, "second")
	e1, err := NewEncoder(msg1, 100, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := NewEncoder(msg2, 100, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	var d Decoder
	for i := 0; !d.IsDone(); i++ {
		if i > 1000 {
			t.Fatal("decoding didn't converge")
		}
		// Skip every third part of the locked message.
		if p := e1.NextPart(); i%3 != 2 && !d.Receive(p) {
			t.Fatalf("part %d rejected", e1.SeqNum())
		}
		if err := d.Add(e2.NextPart()); !d.IsDone() && !errors.Is(err, ErrIncompatiblePart) {
			t.Fatalf("foreign part returned %v, want ErrIncompatiblePart", err)
		}
	}
	res, err := d.Result()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res, msg1) {
		t.Errorf("decoded message differs")
	}
}

func TestMalformedParts(t *testing.T) {
	msg := makeMessage(256, "Wolf")
	e, err := NewEncoder(msg, 30, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	good := e.NextPart()
	valid := e.Part(2)
	mutate := func(f func(p *Part)) []byte {
		p := valid
		p.Data = slices.Clone(valid.Data)
		f(&p)
		b, err := encMode.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	tests := [][]byte{
		nil,
		{},
		{0x00},
		{0x84, 0x01, 0x09, 0x19, 0x01, 0x00},
		append(slices.Clone(good), 0x00),
		good[:len(good)-1],
		mutate(func(p *Part) { p.SeqNum = 0 }),
		mutate(func(p *Part) { p.SeqLen = 0 }),
		mutate(func(p *Part) { p.SeqLen = -1 }),
		mutate(func(p *Part) { p.MessageLen = 0 }),
		mutate(func(p *Part) { p.MessageLen = 1000 }),
		mutate(func(p *Part) { p.Data = nil }),
		mutate(func(p *Part) { p.SeqLen = MaxSeqLen + 1 }),
	}
	core, logs := observer.New(zap.DebugLevel)
	d := Decoder{Logger: zap.New(core)}
	for i, data := range tests {
		if d.Receive(data) {
			t.Errorf("malformed part %d (%x) accepted", i, data)
		}
	}
	if got := logs.FilterMessage("fountain: discarding malformed part").Len(); got != len(tests) {
		t.Errorf("logged %d malformed parts, want %d", got, len(tests))
	}
	if d.ProcessedParts() != 0 || d.ExpectedPartCount() != 0 || d.EstimatedPercentComplete() != 0 {
		t.Errorf("malformed parts changed the decoder state")
	}
	// The decoder is still usable.
	if !d.Receive(good) {
		t.Errorf("valid part rejected")
	}
}

func TestIncompatibleHeader(t *testing.T) {
	msg := makeMessage(256, "Wolf")
	e, err := NewEncoder(msg, 30, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	var d Decoder
	if !d.ReceivePart(e.Part(1)) {
		t.Fatal("part rejected")
	}
	p := e.Part(2)
	other := []Part{p, p, p, p}
	other[0].Checksum++
	other[1].MessageLen--
	other[2].Data = append(slices.Clone(p.Data), 0)
	other[3].SeqLen = 10
	for i, o := range other {
		if d.ReceivePart(o) {
			t.Errorf("incompatible part %d accepted", i)
		}
	}
	if got := d.ProcessedParts(); got != 1 {
		t.Errorf("ProcessedParts() = %d, want 1", got)
	}
}

func TestProgress(t *testing.T) {
	msg := makeMessage(256, "Wolf")
	e, err := NewEncoder(msg, 30, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	var d Decoder
	if d.Progress() != 0 || d.EstimatedPercentComplete() != 0 {
		t.Errorf("progress before any part")
	}
	for range 3 {
		d.Receive(e.NextPart())
	}
	if got, want := d.Progress(), 3./9; got != want {
		t.Errorf("Progress() = %v, want %v", got, want)
	}
	if got, want := d.EstimatedPercentComplete(), 3/(9*1.75); got != want {
		t.Errorf("EstimatedPercentComplete() = %v, want %v", got, want)
	}
	// Duplicates count towards the estimate, but never reach 1.
	p := e.Part(1)
	for range 100 {
		d.ReceivePart(p)
	}
	if got := d.EstimatedPercentComplete(); got != 0.99 {
		t.Errorf("EstimatedPercentComplete() = %v, want 0.99", got)
	}
	if res, err := d.Result(); res != nil || err != nil {
		t.Errorf("Result() = %x, %v while incomplete", res, err)
	}
}

func TestLargestSeqLen(t *testing.T) {
	// A tiny mixed part announcing the largest fragment count.
	p := Part{
		SeqNum:     MaxSeqLen + 1,
		SeqLen:     MaxSeqLen,
		MessageLen: MaxSeqLen,
		Checksum:   0x12345678,
		Data:       []byte{0},
	}
	data, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var d Decoder
	start := time.Now()
	for i := range 4 {
		p.SeqNum = MaxSeqLen + 1 + uint32(i)
		if !d.ReceivePart(p) {
			t.Fatalf("part %d rejected", p.SeqNum)
		}
	}
	if !d.Receive(data) {
		t.Fatal("encoded part rejected")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("receiving 5 parts of %d fragments took %v", MaxSeqLen, elapsed)
	}
	if d.IsDone() {
		t.Error("decoder finished without fragments")
	}
}
