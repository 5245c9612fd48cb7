package protocol

import (
	"fmt"
	"strings"
)

// WordKind identifies the role of one protocol word.
type WordKind uint8

const (
	KindEmpty WordKind = iota
	KindCommand
	KindReply
	KindAttribute
	KindAPIAttribute
	KindQuery
)

// Text prefixes for each word kind. Empty words have no text at all.
const (
	PrefixCommand      = '/'
	PrefixReply        = '!'
	PrefixAttribute    = '='
	PrefixAPIAttribute = '.'
	PrefixQuery        = '?'
)

func (k WordKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindCommand:
		return "command"
	case KindReply:
		return "reply"
	case KindAttribute:
		return "attribute"
	case KindAPIAttribute:
		return "api_attribute"
	case KindQuery:
		return "query"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Word is one atomic protocol token.
//
// Name holds the command path, reply name, query expression or attribute
// key depending on Kind. Value and HasValue are only meaningful for
// attributes; an API attribute always has a value.
type Word struct {
	Kind     WordKind
	Name     string
	Value    string
	HasValue bool
}

// Command creates an outbound instruction word, e.g. "interface/print".
func Command(path string) Word {
	return Word{Kind: KindCommand, Name: path}
}

// Reply creates a reply status word, e.g. "done".
func Reply(name string) Word {
	return Word{Kind: KindReply, Name: name}
}

// Attribute creates a named parameter. An empty value is the same as no
// value on the wire, so it yields a Flag.
func Attribute(key, value string) Word {
	if value == "" {
		return Flag(key)
	}
	return Word{Kind: KindAttribute, Name: key, Value: value, HasValue: true}
}

// Flag creates a presence-only attribute.
func Flag(key string) Word {
	return Word{Kind: KindAttribute, Name: key}
}

// APIAttribute creates a client-side parameter such as ".tag=7".
func APIAttribute(key, value string) Word {
	return Word{Kind: KindAPIAttribute, Name: key, Value: value, HasValue: true}
}

// Query creates a filter expression word.
func Query(expr string) Word {
	return Word{Kind: KindQuery, Name: expr}
}

// Empty creates the zero-length sentence terminator.
func Empty() Word {
	return Word{}
}

func (w Word) IsEmpty() bool {
	return w.Kind == KindEmpty
}

// Tag returns the value of a ".tag" API attribute.
func (w Word) Tag() (string, bool) {
	if w.Kind != KindAPIAttribute || w.Name != TagKey {
		return "", false
	}
	return w.Value, true
}

// String renders the canonical wire text of the word.
func (w Word) String() string {
	switch w.Kind {
	case KindCommand:
		return string(PrefixCommand) + w.Name
	case KindReply:
		return string(PrefixReply) + w.Name
	case KindAttribute:
		return string(PrefixAttribute) + w.Name + "=" + w.Value
	case KindAPIAttribute:
		return string(PrefixAPIAttribute) + w.Name + "=" + w.Value
	case KindQuery:
		return string(PrefixQuery) + w.Name
	default:
		return ""
	}
}

// ParseWord is the inverse of Word.String.
func ParseWord(text string) (Word, error) {
	if text == "" {
		return Empty(), nil
	}
	rest := text[1:]
	switch text[0] {
	case PrefixCommand:
		return Command(rest), nil
	case PrefixReply:
		return Reply(rest), nil
	case PrefixAttribute:
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			return Word{}, fmt.Errorf("%w: attribute without '=': %q", ErrUnrecognizedWord, text)
		}
		return Attribute(key, value), nil
	case PrefixAPIAttribute:
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			return Word{}, fmt.Errorf("%w: api attribute without '=': %q", ErrUnrecognizedWord, text)
		}
		return APIAttribute(key, value), nil
	case PrefixQuery:
		return Query(rest), nil
	default:
		return Word{}, fmt.Errorf("%w: %q", ErrUnrecognizedWord, text)
	}
}
