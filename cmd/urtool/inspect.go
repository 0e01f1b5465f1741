package main

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/fxamacker/cbor/v2"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
	"seedhammer.com/bcur/bc/bytewords"
	"seedhammer.com/bcur/bc/fountain"
	"seedhammer.com/bcur/bc/ur"
	"seedhammer.com/bcur/bc/urtypes"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Describe a single UR",
		ArgsUsage: "ur",
		Action:    inspectAction,
	}
}

// report is the YAML description of a UR.
type report struct {
	Type       string         `yaml:"type"`
	SeqNum     uint32         `yaml:"seq_num,omitempty"`
	SeqLen     int            `yaml:"seq_len,omitempty"`
	MessageLen int            `yaml:"message_len,omitempty"`
	Checksum   string         `yaml:"checksum,omitempty"`
	Fragments  []int          `yaml:"fragments,flow,omitempty"`
	Payload    string         `yaml:"payload"`
	Value      string         `yaml:"value,omitempty"`
	Fields     map[string]any `yaml:"fields,omitempty"`
}

func inspectAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return cli.Exit("inspect: specify exactly one UR", 1)
	}
	r, err := inspect(e.reg, c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect: %v", err), 1)
	}
	out := yaml.NewEncoder(c.App.Writer)
	out.SetIndent(2)
	if err := out.Encode(r); err != nil {
		return err
	}
	return out.Close()
}

func inspect(reg *urtypes.Registry, s string) (*report, error) {
	typ, seqNum, seqLen, payload, err := ur.Parse(s)
	if err != nil {
		return nil, err
	}
	enc, err := bytewords.Decode(payload)
	if err != nil {
		return nil, err
	}
	r := &report{Type: typ}
	if seqLen > 0 {
		p, err := fountain.ParsePart(enc)
		if err != nil {
			return nil, err
		}
		if int(p.SeqNum) != seqNum || p.SeqLen != seqLen {
			return nil, fmt.Errorf("sequence %d-%d doesn't match part %d-%d", seqNum, seqLen, p.SeqNum, p.SeqLen)
		}
		r.SeqNum = p.SeqNum
		r.SeqLen = p.SeqLen
		r.MessageLen = p.MessageLen
		r.Checksum = fmt.Sprintf("%08x", p.Checksum)
		r.Fragments = p.Indexes()
		slices.Sort(r.Fragments)
		r.Payload = hex.EncodeToString(p.Data)
		return r, nil
	}
	r.Payload = hex.EncodeToString(enc)
	it, ok := reg.ByType(typ)
	if !ok {
		return r, nil
	}
	v, err := reg.Parse(typ, enc)
	if err != nil {
		return nil, err
	}
	r.Value, err = describe(v)
	if err != nil {
		return nil, err
	}
	if len(it.KeyMap) > 0 {
		fields, err := reg.Fields(typ, enc)
		if err != nil {
			return nil, err
		}
		r.Fields = hexify(fields).(map[string]any)
	}
	return r, nil
}

// describe formats a decoded value for humans.
func describe(v any) (string, error) {
	switch v := v.(type) {
	case []byte:
		return hex.EncodeToString(v), nil
	case urtypes.PSBT:
		return hex.EncodeToString(v), nil
	case urtypes.Seed:
		return hex.EncodeToString(v.Payload), nil
	case urtypes.HDKey:
		return v.String(), nil
	case urtypes.ECKey:
		pub, err := v.PublicKey()
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(pub.SerializeCompressed()), nil
	case urtypes.KeyPath:
		return urtypes.Path(pathIndexes(v.Components)).String(), nil
	}
	return "", nil
}

// pathIndexes returns the child indexes of comps,
// skipping wildcards and ranges.
func pathIndexes(comps []urtypes.Derivation) []uint32 {
	var p []uint32
	for _, d := range comps {
		if d.Type != urtypes.ChildDerivation {
			continue
		}
		idx := d.Index
		if d.Hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		p = append(p, idx)
	}
	return p
}

// hexify replaces byte strings in v with their hex encoding.
func hexify(v any) any {
	switch v := v.(type) {
	case []byte:
		return hex.EncodeToString(v)
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = hexify(e)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[fmt.Sprint(k)] = hexify(e)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, e := range v {
			s[i] = hexify(e)
		}
		return s
	case cbor.Tag:
		return map[string]any{
			"tag":     v.Number,
			"content": hexify(v.Content),
		}
	}
	return v
}
