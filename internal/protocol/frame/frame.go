package frame

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/danmuck/rosctl/internal/protocol"
)

// Length prefix tiers. Each tier's top bits mark its width.
const (
	maxLen1 = 0x80
	maxLen2 = 0x4000
	maxLen3 = 0x200000
	maxLen4 = 0x10000000

	markLen2 = 0x8000
	markLen3 = 0xC00000
	markLen4 = 0xE0000000
	markLen5 = 0xF0

	firstControl = 0xF8
)

// MaxPrefixLen is the widest length prefix on the wire.
const MaxPrefixLen = 5

var (
	ErrCantEncodeContent          = errors.New("frame: word content is not valid utf-8")
	ErrWordTooLarge               = errors.New("frame: word too large")
	ErrUnexpectedEndOfWordLength  = errors.New("frame: unexpected end of word length")
	ErrUnexpectedEndOfWordContent = errors.New("frame: unexpected end of word content")
	ErrUnexpectedControlByte      = errors.New("frame: unexpected control byte")
	ErrUnexpectedFirstByte        = errors.New("frame: unexpected first byte")
	ErrCantDecodeWordContent      = errors.New("frame: can't decode word content")
)

// Limits constrains word encode/decode memory use.
type Limits struct {
	MaxWordBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxWordBytes: 16 * 1024 * 1024,
	}
}

func (l Limits) allows(n uint32) bool {
	return l.MaxWordBytes == 0 || n <= l.MaxWordBytes
}

// EncodeLength returns the variable-width size prefix for a word of n bytes.
func EncodeLength(n uint32) []byte {
	return AppendLength(nil, n)
}

func AppendLength(dst []byte, n uint32) []byte {
	switch {
	case n < maxLen1:
		return append(dst, byte(n))
	case n < maxLen2:
		v := n | markLen2
		return append(dst, byte(v>>8), byte(v))
	case n < maxLen3:
		v := n | markLen3
		return append(dst, byte(v>>16), byte(v>>8), byte(v))
	case n < maxLen4:
		v := n | markLen4
		return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	default:
		return append(dst, markLen5, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

// prefixWidth returns the total prefix width announced by the first byte.
func prefixWidth(first byte) (int, error) {
	switch {
	case first < 0x80:
		return 1, nil
	case first < 0xC0:
		return 2, nil
	case first < 0xE0:
		return 3, nil
	case first < 0xF0:
		return 4, nil
	case first == markLen5:
		return 5, nil
	case first >= firstControl:
		return 0, fmt.Errorf("%w: 0x%02X", ErrUnexpectedControlByte, first)
	default:
		return 0, fmt.Errorf("%w: 0x%02X", ErrUnexpectedFirstByte, first)
	}
}

// DecodeLength reads one size prefix from the front of b and reports how
// many bytes it used.
func DecodeLength(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrUnexpectedEndOfWordLength
	}
	width, err := prefixWidth(b[0])
	if err != nil {
		return 0, 0, err
	}
	if len(b) < width {
		return 0, 0, ErrUnexpectedEndOfWordLength
	}
	return lengthFromPrefix(b[:width]), width, nil
}

// lengthFromPrefix assumes a complete prefix of the width announced by p[0].
func lengthFromPrefix(p []byte) uint32 {
	switch len(p) {
	case 1:
		return uint32(p[0])
	case 2:
		return (uint32(p[0])<<8 | uint32(p[1])) ^ markLen2
	case 3:
		return (uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2])) ^ markLen3
	case 4:
		return (uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])) ^ markLen4
	default:
		return uint32(p[1])<<24 | uint32(p[2])<<16 | uint32(p[3])<<8 | uint32(p[4])
	}
}

// AppendWord frames one word text onto dst.
func AppendWord(dst []byte, text string, limits Limits) ([]byte, error) {
	if !utf8.ValidString(text) {
		return dst, fmt.Errorf("%w: %q", ErrCantEncodeContent, text)
	}
	n := len(text)
	if uint64(n) > uint64(^uint32(0)) || !limits.allows(uint32(n)) {
		return dst, fmt.Errorf("%w: %d bytes", ErrWordTooLarge, n)
	}
	dst = AppendLength(dst, uint32(n))
	return append(dst, text...), nil
}

// Encode frames every word of every sentence, terminators included.
func Encode(sentences ...protocol.Sentence) ([]byte, error) {
	return EncodeWithLimits(DefaultLimits(), sentences...)
}

func EncodeWithLimits(limits Limits, sentences ...protocol.Sentence) ([]byte, error) {
	size := 0
	for _, s := range sentences {
		for _, w := range s.Words {
			size += len(w.Name) + len(w.Value) + 2 + MaxPrefixLen
		}
	}
	out := make([]byte, 0, size)
	var err error
	for _, s := range sentences {
		for _, w := range s.Words {
			out, err = AppendWord(out, w.String(), limits)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
