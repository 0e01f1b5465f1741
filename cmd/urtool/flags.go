package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"seedhammer.com/bcur/bc/ur"
	"seedhammer.com/bcur/bc/urtypes"
	"seedhammer.com/bcur/internal/logging"
)

// encoderFlags are shared by the commands that produce URs.
func encoderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "type", Usage: "UR type (default bytes)"},
		&cli.IntFlag{Name: "max", Usage: "maximum fragment length (default 200)"},
		&cli.IntFlag{Name: "min", Usage: "minimum fragment length (default 10)"},
		&cli.Uint64Flag{Name: "first-seq", Usage: "sequence number preceding the first part"},
		&cli.Float64Flag{Name: "ratio", Usage: "fraction of extra parts beyond the fragment count"},
		&cli.IntFlag{Name: "count", Usage: "number of parts, overriding --ratio"},
		&cli.BoolFlag{Name: "upper", Usage: "upper case output"},
		&cli.BoolFlag{Name: "hex", Usage: "input is hex encoded"},
		&cli.BoolFlag{Name: "cbor", Usage: "input is the CBOR payload, also for the bytes type"},
	}
}

// env is the configuration shared by the commands.
type env struct {
	cfg Config
	log *zap.Logger
	reg *urtypes.Registry
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	if err := applyFlags(c, &cfg); err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	if err := cfg.validate(); err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	log, err := logging.New(c.App.ErrWriter, cfg.Log.Level)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return &env{cfg: cfg, log: log, reg: urtypes.Default()}, nil
}

// applyFlags overrides config values with the flags set on the
// command line.
func applyFlags(c *cli.Context, cfg *Config) error {
	if c.IsSet("type") {
		cfg.Type = c.String("type")
	}
	if c.IsSet("max") {
		cfg.MaxFragmentLength = c.Int("max")
	}
	if c.IsSet("min") {
		cfg.MinFragmentLength = c.Int("min")
	}
	if c.IsSet("first-seq") {
		seq := c.Uint64("first-seq")
		if seq > math.MaxUint32 {
			return fmt.Errorf("--first-seq %d out of range", seq)
		}
		cfg.FirstSeqNum = uint32(seq)
	}
	if c.IsSet("ratio") {
		cfg.Ratio = c.Float64("ratio")
	}
	if c.IsSet("upper") {
		cfg.Uppercase = c.Bool("upper")
	}
	if c.IsSet("level") {
		cfg.QR.Level = c.String("level")
	}
	if c.IsSet("scale") {
		cfg.QR.Scale = c.Int("scale")
	}
	if c.IsSet("state") {
		cfg.Decode.State = c.String("state")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	return nil
}

// readInput reads the message from r.
func readInput(r io.Reader, isHex bool) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !isHex {
		return data, nil
	}
	data, err = hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return data, nil
}

// readLines returns the non-empty lines of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for s.Scan() {
		if l := strings.TrimSpace(s.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, s.Err()
}

// payload converts a message to the CBOR payload of a UR. Messages
// of the bytes type are wrapped in a CBOR byte string unless isCBOR
// is set. Payloads of registered types are validated.
func (e *env) payload(msg []byte, isCBOR bool) ([]byte, error) {
	typ := e.cfg.Type
	if typ == "bytes" && !isCBOR {
		return e.reg.Encode(typ, msg)
	}
	if _, ok := e.reg.ByType(typ); ok {
		if _, err := e.reg.Parse(typ, msg); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// encoder reads the message and creates its encoder.
func (e *env) encoder(c *cli.Context) (*ur.Encoder, error) {
	msg, err := readInput(c.App.Reader, c.Bool("hex"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	payload, err := e.payload(msg, c.Bool("cbor"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	enc, err := ur.NewEncoder(e.cfg.Type, payload, e.cfg.MaxFragmentLength, e.cfg.MinFragmentLength, e.cfg.FirstSeqNum)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	e.log.Debug("encoding message",
		zap.String("type", e.cfg.Type),
		zap.Int("message_len", len(payload)),
		zap.Int("seq_len", enc.SeqLen()))
	return enc, nil
}

// emit calls fn with the parts of enc: the --count flag if set, and
// otherwise the fragment count scaled by the configured ratio.
func (e *env) emit(c *cli.Context, enc *ur.Encoder, fn func(seqNum uint32, part string) error) error {
	n := c.Int("count")
	if n <= 0 {
		n = int(math.Ceil(float64(enc.SeqLen()) * (1 + e.cfg.Ratio)))
	}
	if enc.IsSinglePart() {
		n = 1
	}
	for range n {
		part := enc.NextPart()
		if e.cfg.Uppercase {
			part = strings.ToUpper(part)
		}
		seqNum := enc.SeqNum()
		if enc.IsSinglePart() {
			seqNum = 1
		}
		if err := fn(seqNum, part); err != nil {
			return err
		}
	}
	return nil
}
