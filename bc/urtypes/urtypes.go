// Package urtypes implements a registry of the UR types specified in
// [BCR-2020-006], with decoders for the types carrying seeds, keys and
// partially signed transactions.
//
// [BCR-2020-006]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-006-urtypes.md
package urtypes

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/fxamacker/cbor/v2"
)

// Seed is a crypto-seed as described in [BCR-2020-006].
//
// [BCR-2020-006]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-006-urtypes.md
type Seed struct {
	Payload []byte `cbor:"1,keyasint"`
}

// PSBT is a partially signed bitcoin transaction as described
// in BIP 174.
type PSBT []byte

var psbtMagic = []byte("psbt\xff")

// ECKey is an elliptic curve key as described in [BCR-2020-008].
//
// [BCR-2020-008]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-008-eckey.md
type ECKey struct {
	// Curve is 0 for secp256k1, the only supported curve.
	Curve     int    `cbor:"1,keyasint,omitempty"`
	IsPrivate bool   `cbor:"2,keyasint,omitempty"`
	Data      []byte `cbor:"3,keyasint"`
}

// PublicKey returns the public key of k, derived from the
// private key if k is private.
func (k ECKey) PublicKey() (*btcec.PublicKey, error) {
	if k.IsPrivate {
		if err := checkPrivateKey(k.Data); err != nil {
			return nil, err
		}
		_, pub := btcec.PrivKeyFromBytes(k.Data)
		return pub, nil
	}
	return btcec.ParsePubKey(k.Data)
}

func checkPrivateKey(data []byte) error {
	if len(data) != btcec.PrivKeyBytesLen {
		return fmt.Errorf("private key is %d bytes, expected %d", len(data), btcec.PrivKeyBytesLen)
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(data); overflow || s.IsZero() {
		return errors.New("private key out of range")
	}
	return nil
}

// HDKey is a crypto-hdkey as described in [BCR-2020-007].
//
// [BCR-2020-007]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-007-hdkey.md
type HDKey struct {
	Network           *chaincfg.Params
	IsMaster          bool
	IsPrivate         bool
	MasterFingerprint uint32
	DerivationPath    Path
	Children          []Derivation
	// KeyData is the 33 byte key. Private keys are prefixed
	// by a zero byte.
	KeyData           []byte
	ChainCode         []byte
	ParentFingerprint uint32
}

type Derivation struct {
	Type DerivationType
	// Index is the child index, without the hardening offset.
	// For RangeDerivations, Index is the start of the range.
	Index    uint32
	Hardened bool
	// End represents the end of a RangeDerivation.
	End uint32
}

type DerivationType int

const (
	ChildDerivation DerivationType = iota
	WildcardDerivation
	RangeDerivation
)

// KeyPath is a crypto-keypath.
type KeyPath struct {
	Components        []Derivation
	SourceFingerprint uint32
	Depth             int
}

// ExtendedKey converts k to its BIP 32 form.
func (k HDKey) ExtendedKey() *hdkeychain.ExtendedKey {
	var fp [4]byte
	binary.BigEndian.PutUint32(fp[:], k.ParentFingerprint)
	childNum := uint32(0)
	if len(k.DerivationPath) > 0 {
		childNum = k.DerivationPath[len(k.DerivationPath)-1]
	}
	version, key := k.Network.HDPublicKeyID[:], k.KeyData
	if k.IsPrivate {
		version, key = k.Network.HDPrivateKeyID[:], k.KeyData[1:]
	}
	return hdkeychain.NewExtendedKey(
		version, key, k.ChainCode, fp[:], uint8(len(k.DerivationPath)),
		childNum, k.IsPrivate,
	)
}

func (k HDKey) String() string {
	return k.ExtendedKey().String()
}

func (k HDKey) toCBOR() hdKey {
	var children []any
	for _, c := range k.Children {
		switch c.Type {
		case ChildDerivation:
			children = append(children, c.Index, c.Hardened)
		case RangeDerivation:
			children = append(children, []any{c.Index, c.End}, c.Hardened)
		case WildcardDerivation:
			children = append(children, []any{}, c.Hardened)
		}
	}
	network := mainnet
	if k.Network == &chaincfg.TestNet3Params {
		network = testnet
	}
	return hdKey{
		IsMaster:  k.IsMaster,
		IsPrivate: k.IsPrivate,
		UseInfo: useInfo{
			Network: network,
		},
		KeyData:           k.KeyData,
		ChainCode:         k.ChainCode,
		ParentFingerprint: k.ParentFingerprint,
		Origin: keyPath{
			Fingerprint: k.MasterFingerprint,
			Components:  k.DerivationPath.components(),
		},
		Children: keyPath{
			Components: children,
		},
	}
}

// Encode the key in the format described by [BCR-2020-007].
//
// [BCR-2020-007]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-007-hdkey.md
func (k HDKey) Encode() []byte {
	b, err := encMode.Marshal(k.toCBOR())
	if err != nil {
		// Always valid by construction.
		panic(err)
	}
	return b
}

// Path is a BIP 32 derivation path. Hardened indexes include
// the hardening offset.
type Path []uint32

func (p Path) components() []any {
	var comp []any
	for _, c := range p {
		hard := c >= hdkeychain.HardenedKeyStart
		if hard {
			c -= hdkeychain.HardenedKeyStart
		}
		comp = append(comp, c, hard)
	}
	return comp
}

func (p Path) String() string {
	var d strings.Builder
	d.WriteRune('m')
	for _, p := range p {
		d.WriteByte('/')
		idx := p
		if p >= hdkeychain.HardenedKeyStart {
			idx -= hdkeychain.HardenedKeyStart
		}
		d.WriteString(strconv.Itoa(int(idx)))
		if p >= hdkeychain.HardenedKeyStart {
			d.WriteRune('h')
		}
	}
	return d.String()
}

// hdKey is the CBOR representation of a crypto-hdkey.
type hdKey struct {
	IsMaster          bool    `cbor:"1,keyasint,omitempty"`
	IsPrivate         bool    `cbor:"2,keyasint,omitempty"`
	KeyData           []byte  `cbor:"3,keyasint"`
	ChainCode         []byte  `cbor:"4,keyasint,omitempty"`
	UseInfo           useInfo `cbor:"5,keyasint,omitempty"`
	Origin            keyPath `cbor:"6,keyasint,omitempty"`
	Children          keyPath `cbor:"7,keyasint,omitempty"`
	ParentFingerprint uint32  `cbor:"8,keyasint,omitempty"`
}

type useInfo struct {
	Type    uint32 `cbor:"1,keyasint,omitempty"`
	Network int    `cbor:"2,keyasint,omitempty"`
}

type keyPath struct {
	Components  []any  `cbor:"1,keyasint,omitempty"`
	Fingerprint uint32 `cbor:"2,keyasint,omitempty"`
	Depth       uint8  `cbor:"3,keyasint,omitempty"`
}

const (
	tagSeed    = 300
	tagHDKey   = 303
	tagKeyPath = 304
	tagUseInfo = 305
	tagECKey   = 306
	tagPSBT    = 310
)

const (
	mainnet = 0
	testnet = 1
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	tags := cbor.NewTagSet()
	if err := tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional}, reflect.TypeOf(hdKey{}), tagHDKey); err != nil {
		panic(err)
	}
	if err := tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional, EncTag: cbor.EncTagRequired}, reflect.TypeOf(keyPath{}), tagKeyPath); err != nil {
		panic(err)
	}
	if err := tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional, EncTag: cbor.EncTagRequired}, reflect.TypeOf(useInfo{}), tagUseInfo); err != nil {
		panic(err)
	}
	em, err := cbor.CoreDetEncOptions().EncModeWithTags(tags)
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{}.DecModeWithTags(tags)
	if err != nil {
		panic(err)
	}
	decMode = dm
}

func decodeBytes(enc []byte) (any, error) {
	var content []byte
	if err := decMode.Unmarshal(enc, &content); err != nil {
		return nil, err
	}
	return content, nil
}

func encodeBytes(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%T is not a byte slice", v)
	}
	return encMode.Marshal(b)
}

// encodeValue encodes values of type T or *T.
func encodeValue[T any](v any) ([]byte, error) {
	switch v := v.(type) {
	case T:
		return encMode.Marshal(v)
	case *T:
		return encMode.Marshal(v)
	}
	return nil, fmt.Errorf("%T is not a %T", v, *new(T))
}

func decodeSeed(enc []byte) (any, error) {
	var s Seed
	if err := decMode.Unmarshal(enc, &s); err != nil {
		return nil, err
	}
	if len(s.Payload) == 0 {
		return nil, errors.New("empty seed")
	}
	return s, nil
}

func decodePSBT(enc []byte) (any, error) {
	var p []byte
	if err := decMode.Unmarshal(enc, &p); err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(p, psbtMagic) {
		return nil, errors.New("missing psbt magic")
	}
	return PSBT(p), nil
}

func encodePSBT(v any) ([]byte, error) {
	p, ok := v.(PSBT)
	if !ok {
		return nil, fmt.Errorf("%T is not a PSBT", v)
	}
	if !bytes.HasPrefix(p, psbtMagic) {
		return nil, errors.New("missing psbt magic")
	}
	return encMode.Marshal([]byte(p))
}

func decodeECKey(enc []byte) (any, error) {
	var k ECKey
	if err := decMode.Unmarshal(enc, &k); err != nil {
		return nil, err
	}
	if k.Curve != 0 {
		return nil, fmt.Errorf("unsupported curve %d", k.Curve)
	}
	if _, err := k.PublicKey(); err != nil {
		return nil, err
	}
	return k, nil
}

func decodeHDKey(enc []byte) (any, error) {
	return parseHDKey(enc)
}

func encodeHDKey(v any) ([]byte, error) {
	switch k := v.(type) {
	case HDKey:
		return k.Encode(), nil
	case *HDKey:
		return k.Encode(), nil
	}
	return nil, fmt.Errorf("%T is not a HDKey", v)
}

func decodeKeyPath(enc []byte) (any, error) {
	var p keyPath
	if err := decMode.Unmarshal(enc, &p); err != nil {
		return nil, err
	}
	comps, err := parseKeypath(p.Components)
	if err != nil {
		return nil, err
	}
	return KeyPath{
		Components:        comps,
		SourceFingerprint: p.Fingerprint,
		Depth:             int(p.Depth),
	}, nil
}

func parseHDKey(enc []byte) (HDKey, error) {
	var k hdKey
	if err := decMode.Unmarshal(enc, &k); err != nil {
		return HDKey{}, err
	}
	const cointypeBTC = 0
	if k.UseInfo.Type != cointypeBTC {
		return HDKey{}, fmt.Errorf("unsupported coin type %d", k.UseInfo.Type)
	}
	children, err := parseKeypath(k.Children.Components)
	if err != nil {
		return HDKey{}, err
	}
	if len(k.KeyData) != 33 {
		return HDKey{}, fmt.Errorf("key is %d bytes, expected 33", len(k.KeyData))
	}
	if k.IsPrivate {
		if k.KeyData[0] != 0 {
			return HDKey{}, errors.New("private key without zero prefix")
		}
		if err := checkPrivateKey(k.KeyData[1:]); err != nil {
			return HDKey{}, err
		}
	} else if _, err := btcec.ParsePubKey(k.KeyData); err != nil {
		return HDKey{}, err
	}
	if len(k.ChainCode) != 32 {
		return HDKey{}, fmt.Errorf("chain code is %d bytes, expected 32", len(k.ChainCode))
	}
	var net *chaincfg.Params
	switch n := k.UseInfo.Network; n {
	case mainnet:
		net = &chaincfg.MainNetParams
	case testnet:
		net = &chaincfg.TestNet3Params
	default:
		return HDKey{}, fmt.Errorf("unknown coininfo network %d", n)
	}
	comps, err := parseKeypath(k.Origin.Components)
	if err != nil {
		return HDKey{}, err
	}
	var devPath Path
	for _, d := range comps {
		if d.Type != ChildDerivation {
			return HDKey{}, errors.New("wildcards or ranges not allowed in origin path")
		}
		idx := d.Index
		if d.Hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		devPath = append(devPath, idx)
	}
	if depth := k.Origin.Depth; depth != 0 && int(depth) != len(devPath) {
		return HDKey{}, fmt.Errorf("origin depth is %d but expected %d", depth, len(devPath))
	}
	return HDKey{
		Network:           net,
		IsMaster:          k.IsMaster,
		IsPrivate:         k.IsPrivate,
		MasterFingerprint: k.Origin.Fingerprint,
		DerivationPath:    devPath,
		Children:          children,
		KeyData:           k.KeyData,
		ChainCode:         k.ChainCode,
		ParentFingerprint: k.ParentFingerprint,
	}, nil
}

func parseKeypath(comp []any) ([]Derivation, error) {
	if len(comp)%2 == 1 {
		return nil, errors.New("odd number of components")
	}
	var path []Derivation
	for i := 0; i < len(comp); i += 2 {
		d, h := comp[i], comp[i+1]
		var deriv Derivation
		switch d := d.(type) {
		case uint64:
			if d >= hdkeychain.HardenedKeyStart {
				return nil, errors.New("child index out of range")
			}
			deriv = Derivation{
				Type:  ChildDerivation,
				Index: uint32(d),
			}
		case []any:
			switch len(d) {
			case 0:
				deriv = Derivation{
					Type: WildcardDerivation,
				}
			case 2:
				start, ok1 := d[0].(uint64)
				end, ok2 := d[1].(uint64)
				if !ok1 || !ok2 || start > math.MaxUint32 || end > math.MaxUint32 || start > end {
					return nil, errors.New("invalid range derivation")
				}
				deriv = Derivation{
					Type:  RangeDerivation,
					Index: uint32(start),
					End:   uint32(end),
				}
			default:
				return nil, errors.New("invalid wildcard derivation")
			}
		default:
			return nil, errors.New("unknown component type")
		}
		hardened, ok := h.(bool)
		if !ok {
			return nil, errors.New("invalid hardened flag")
		}
		deriv.Hardened = hardened
		path = append(path, deriv)
	}
	return path, nil
}
