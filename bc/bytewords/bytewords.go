// Package bytewords implements the the bytewords standard
// as described in [BCR-2020-012].
//
// [BCR-2020-012]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-012-bytewords.md
package bytewords

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
)

// Style selects the textual form of encoded bytes.
type Style int

const (
	// Standard separates whole words with spaces.
	Standard Style = iota
	// URI separates whole words with dashes.
	URI
	// Minimal concatenates the first and last letter of
	// every word. It is the form used by UR payloads.
	Minimal
)

var (
	ErrTruncated   = errors.New("bytewords: truncated input")
	ErrTooShort    = errors.New("bytewords: input too short")
	ErrInvalidWord = errors.New("bytewords: invalid word")
	ErrChecksum    = errors.New("bytewords: crc32 checksum mismatch")
)

type byteview interface {
	~string | ~[]byte
}

func (s Style) String() string {
	switch s {
	case Standard:
		return "standard"
	case URI:
		return "uri"
	case Minimal:
		return "minimal"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

// ParseStyle is the inverse of [Style.String].
func ParseStyle(name string) (Style, error) {
	for _, s := range []Style{Standard, URI, Minimal} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("bytewords: unknown style %q", name)
}

func (s Style) separator() string {
	if s == URI {
		return "-"
	}
	return " "
}

// Encode data and its checksum in the minimal style.
func Encode(data []byte) string {
	return EncodeStyle(Minimal, data)
}

// EncodeStyle encodes data followed by its big-endian CRC-32
// checksum. It panics if style is not one of the defined styles.
func EncodeStyle(style Style, data []byte) string {
	full := binary.BigEndian.AppendUint32(data[:len(data):len(data)], crc32.ChecksumIEEE(data))
	var buf strings.Builder
	switch style {
	case Minimal:
		buf.Grow(len(full) * 2)
		for _, b := range full {
			w := word(b)
			buf.WriteByte(w[0])
			buf.WriteByte(w[3])
		}
	case Standard, URI:
		buf.Grow(len(full) * 5)
		for i, b := range full {
			if i > 0 {
				buf.WriteString(style.separator())
			}
			buf.WriteString(word(b))
		}
	default:
		panic(fmt.Sprintf("bytewords: unknown style %d", style))
	}
	return buf.String()
}

// Decode minimal style bytewords and verify their checksum.
func Decode[T byteview](src T) ([]byte, error) {
	if len(src)%2 == 1 {
		return nil, ErrTruncated
	}
	dst := make([]byte, len(src)/2)
	if len(dst) < 4 {
		return nil, ErrTooShort
	}
	for i := range dst {
		w, ok := lookup(src[i*2], src[i*2+1])
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrInvalidWord, string(src[i*2:i*2+2]))
		}
		dst[i] = w
	}
	return verify(dst)
}

// DecodeStyle decodes src in the given style and verifies
// its checksum.
func DecodeStyle(style Style, src string) ([]byte, error) {
	switch style {
	case Minimal:
		return Decode(src)
	case Standard, URI:
	default:
		return nil, fmt.Errorf("bytewords: unknown style %d", style)
	}
	if src == "" {
		return nil, ErrTooShort
	}
	words := strings.Split(src, style.separator())
	dst := make([]byte, len(words))
	for i, w := range words {
		b, ok := lookupWord(w)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrInvalidWord, w)
		}
		dst[i] = b
	}
	return verify(dst)
}

func verify(dst []byte) ([]byte, error) {
	if len(dst) < 4 {
		return nil, ErrTooShort
	}
	res := dst[:len(dst)-4]
	got := binary.BigEndian.Uint32(dst[len(dst)-4:])
	if want := crc32.ChecksumIEEE(res); got != want {
		return nil, fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, got, want)
	}
	return res, nil
}

func word(b byte) string {
	i := int(b) * 4
	return wordlist[i : i+4]
}

// lookupWord finds a whole word by binary search in the
// alphabetically ordered word list.
func lookupWord(w string) (byte, bool) {
	if len(w) != 4 {
		return 0, false
	}
	i := sort.Search(256, func(i int) bool {
		return word(byte(i)) >= w
	})
	if i == 256 || word(byte(i)) != w {
		return 0, false
	}
	return byte(i), true
}

// lookup finds a word by its first and last letter.
func lookup(l1, l2 byte) (byte, bool) {
	idx := l1 - 'a'
	if int(idx) >= len(firstLetters) {
		return 0, false
	}
	for i := int(firstLetters[idx]); i < 256; i++ {
		w := word(byte(i))
		if w[0] != l1 {
			break
		}
		if w[3] == l2 {
			return byte(i), true
		}
	}
	return 0, false
}

// firstLetters maps a letter to the index of the first
// word starting with it.
var firstLetters [26]uint8

func init() {
	var letter byte = 'a' - 1
	for i := range 256 {
		if l1 := word(byte(i))[0]; l1 != letter {
			letter = l1
			firstLetters[letter-'a'] = uint8(i)
		}
	}
}

const wordlist = "" +
	"ableacidalsoapexaquaarchatomauntawayaxisbackbaldbarnbeltbetabias" +
	"bluebodybragbrewbulbbuzzcalmcashcatschefcityclawcodecolacookcost" +
	"cruxcurlcuspcyandarkdatadaysdelidicedietdoordowndrawdropdrumdull" +
	"dutyeacheasyechoedgeepicevenexamexiteyesfactfairfernfigsfilmfish" +
	"fizzflapflewfluxfoxyfreefrogfuelfundgalagamegeargemsgiftgirlglow" +
	"goodgraygrimgurugushgyrohalfhanghardhawkheathelphighhillholyhope" +
	"hornhutsicedideaidleinchinkyintoirisironitemjadejazzjoinjoltjowl" +
	"judojugsjumpjunkjurykeepkenokeptkeyskickkilnkingkitekiwiknoblamb" +
	"lavalazyleaflegsliarlimplionlistlogoloudloveluaulucklungmainmany" +
	"mathmazememomenumeowmildmintmissmonknailnavyneednewsnextnoonnote" +
	"numbobeyoboeomitonyxopenovalowlspaidpartpeckplaypluspoempoolpose" +
	"puffpumapurrquadquizraceramprealredorichroadrockroofrubyruinruns" +
	"rustsafesagascarsetssilkskewslotsoapsolosongstubsurfswantacotask" +
	"taxitenttiedtimetinytoiltombtoystriptunatwinuglyundouniturgeuser" +
	"vastveryvetovialvibeviewvisavoidvowswallwandwarmwaspwavewaxywebs" +
	"whatwhenwhizwolfworkyankyawnyellyogayurtzapszerozestzinczonezoom"

