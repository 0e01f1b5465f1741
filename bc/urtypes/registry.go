package urtypes

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// Item describes a registered UR type.
type Item struct {
	// Tag is the CBOR tag of the type when embedded in other
	// items. Zero for untagged types such as bytes.
	Tag uint64
	// Type is the UR type name.
	Type string
	// KeyMap names the integer keys of map encoded items.
	KeyMap map[int]string
	// Decode parses the untagged CBOR encoding of an item.
	Decode func(enc []byte) (any, error)
	// Encode is the inverse of Decode. Nil if the type can't
	// be encoded.
	Encode func(v any) ([]byte, error)
}

// Registry maps UR types and CBOR tags to items. A Registry
// must not be modified concurrently with lookups.
type Registry struct {
	byTag  map[uint64]Item
	byType map[string]Item
}

// NewRegistry creates a registry of items. It panics if
// items conflict.
func NewRegistry(items ...Item) *Registry {
	r := &Registry{
		byTag:  make(map[uint64]Item),
		byType: make(map[string]Item),
	}
	for _, it := range items {
		if err := r.Register(it); err != nil {
			panic(err)
		}
	}
	return r
}

// Default returns a new registry of the standard items.
func Default() *Registry {
	return NewRegistry(
		Item{
			Type:   "bytes",
			Decode: decodeBytes,
			Encode: encodeBytes,
		},
		Item{
			Tag:    tagSeed,
			Type:   "crypto-seed",
			KeyMap: map[int]string{1: "payload", 2: "birthdate"},
			Decode: decodeSeed,
			Encode: encodeValue[Seed],
		},
		Item{
			Tag:    tagHDKey,
			Type:   "crypto-hdkey",
			KeyMap: map[int]string{1: "is-master", 2: "is-private", 3: "key-data", 4: "chain-code", 5: "use-info", 6: "origin", 7: "children", 8: "parent-fingerprint"},
			Decode: decodeHDKey,
			Encode: encodeHDKey,
		},
		Item{
			Tag:    tagKeyPath,
			Type:   "crypto-keypath",
			KeyMap: map[int]string{1: "components", 2: "source-fingerprint", 3: "depth"},
			Decode: decodeKeyPath,
		},
		Item{
			Tag:    tagECKey,
			Type:   "crypto-eckey",
			KeyMap: map[int]string{1: "curve", 2: "is-private", 3: "data"},
			Decode: decodeECKey,
			Encode: encodeValue[ECKey],
		},
		Item{
			Tag:    tagPSBT,
			Type:   "crypto-psbt",
			Decode: decodePSBT,
			Encode: encodePSBT,
		},
	)
}

// Register adds an item. It is an error to register a type or
// non-zero tag twice.
func (r *Registry) Register(it Item) error {
	if it.Type == "" || it.Decode == nil {
		return fmt.Errorf("urtypes: incomplete item %q", it.Type)
	}
	if _, dup := r.byType[it.Type]; dup {
		return fmt.Errorf("urtypes: type %q already registered", it.Type)
	}
	if _, dup := r.byTag[it.Tag]; dup && it.Tag != 0 {
		return fmt.Errorf("urtypes: tag %d already registered", it.Tag)
	}
	r.byType[it.Type] = it
	if it.Tag != 0 {
		r.byTag[it.Tag] = it
	}
	return nil
}

func (r *Registry) ByTag(tag uint64) (Item, bool) {
	it, ok := r.byTag[tag]
	return it, ok
}

func (r *Registry) ByType(typ string) (Item, bool) {
	it, ok := r.byType[typ]
	return it, ok
}

// Types lists the registered types in sorted order.
func (r *Registry) Types() []string {
	return slices.Sorted(maps.Keys(r.byType))
}

// Parse decodes the CBOR payload of a UR of type typ.
func (r *Registry) Parse(typ string, enc []byte) (any, error) {
	it, ok := r.byType[typ]
	if !ok {
		return nil, fmt.Errorf("urtypes: unknown type %q", typ)
	}
	v, err := it.Decode(enc)
	if err != nil {
		return nil, fmt.Errorf("urtypes: %s: %w", typ, err)
	}
	return v, nil
}

// ParseTagged decodes a tagged item such as an element of
// a UR payload.
func (r *Registry) ParseTagged(enc []byte) (Item, any, error) {
	var raw cbor.RawTag
	if err := decMode.Unmarshal(enc, &raw); err != nil {
		return Item{}, nil, fmt.Errorf("urtypes: %w", err)
	}
	it, ok := r.byTag[raw.Number]
	if !ok {
		return Item{}, nil, fmt.Errorf("urtypes: unknown tag %d", raw.Number)
	}
	v, err := it.Decode(raw.Content)
	if err != nil {
		return Item{}, nil, fmt.Errorf("urtypes: %s: %w", it.Type, err)
	}
	return it, v, nil
}

// Encode v as the CBOR payload of a UR of type typ.
func (r *Registry) Encode(typ string, v any) ([]byte, error) {
	it, ok := r.byType[typ]
	if !ok {
		return nil, fmt.Errorf("urtypes: unknown type %q", typ)
	}
	if it.Encode == nil {
		return nil, fmt.Errorf("urtypes: %s: encoding not supported", typ)
	}
	enc, err := it.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("urtypes: %s: %w", typ, err)
	}
	return enc, nil
}

// Fields decodes a map encoded item into a map keyed by
// the field names of its KeyMap. Unnamed keys are formatted
// as decimal numbers.
func (r *Registry) Fields(typ string, enc []byte) (map[string]any, error) {
	it, ok := r.byType[typ]
	if !ok {
		return nil, fmt.Errorf("urtypes: unknown type %q", typ)
	}
	var m map[int]any
	if err := decMode.Unmarshal(enc, &m); err != nil {
		return nil, fmt.Errorf("urtypes: %s: %w", typ, err)
	}
	fields := make(map[string]any, len(m))
	for k, v := range m {
		name, ok := it.KeyMap[k]
		if !ok {
			name = strconv.Itoa(k)
		}
		fields[name] = v
	}
	return fields, nil
}
