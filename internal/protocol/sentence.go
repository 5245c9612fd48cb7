package protocol

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// TagKey is the API attribute key used to correlate requests and replies.
const TagKey = "tag"

// Reply names sent by the router.
const (
	ReplyDone  = "done"
	ReplyRe    = "re"
	ReplyTrap  = "trap"
	ReplyFatal = "fatal"
	ReplyEmpty = "empty"
)

// Sentence is one command or reply line. Sentences read off the wire keep
// their trailing Empty word.
type Sentence struct {
	Words []Word
}

func NewSentence(words ...Word) Sentence {
	return Sentence{Words: slices.Clone(words)}
}

func (s Sentence) Equal(other Sentence) bool {
	return slices.Equal(s.Words, other.Words)
}

func (s Sentence) Len() int {
	return len(s.Words)
}

// Terminated returns a copy ending with exactly one Empty word.
func (s Sentence) Terminated() Sentence {
	words := s.body()
	out := make([]Word, 0, len(words)+1)
	out = append(out, words...)
	out = append(out, Empty())
	return Sentence{Words: out}
}

// WithTag returns a terminated copy carrying ".tag=<tag>" before the terminator.
// An existing tag is replaced.
func (s Sentence) WithTag(tag int) Sentence {
	words := s.body()
	out := make([]Word, 0, len(words)+2)
	for _, w := range words {
		if _, ok := w.Tag(); ok {
			continue
		}
		out = append(out, w)
	}
	out = append(out, APIAttribute(TagKey, strconv.Itoa(tag)), Empty())
	return Sentence{Words: out}
}

func (s Sentence) body() []Word {
	end := len(s.Words)
	for end > 0 && s.Words[end-1].IsEmpty() {
		end--
	}
	return s.Words[:end]
}

// Tag returns the numeric ".tag" API attribute of the sentence.
func (s Sentence) Tag() (int, bool) {
	for _, w := range s.Words {
		raw, ok := w.Tag()
		if !ok {
			continue
		}
		tag, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false
		}
		return tag, true
	}
	return 0, false
}

// Reply returns the reply name when the sentence leads with a reply word.
func (s Sentence) Reply() (string, bool) {
	if len(s.Words) == 0 || s.Words[0].Kind != KindReply {
		return "", false
	}
	return s.Words[0].Name, true
}

// IsTerminal reports whether no further sentences follow for the same tag.
func (s Sentence) IsTerminal() bool {
	reply, ok := s.Reply()
	if !ok {
		return false
	}
	return IsTerminalReply(reply)
}

func IsTerminalReply(name string) bool {
	switch name {
	case ReplyDone, ReplyTrap, ReplyFatal:
		return true
	}
	return false
}

// Attr returns the value of attribute key. Flags report "" and true.
func (s Sentence) Attr(key string) (string, bool) {
	for _, w := range s.Words {
		if w.Kind == KindAttribute && w.Name == key {
			return w.Value, true
		}
	}
	return "", false
}

// Attributes collects all "=" attributes of the sentence.
func (s Sentence) Attributes() map[string]string {
	out := make(map[string]string)
	for _, w := range s.Words {
		if w.Kind == KindAttribute {
			out[w.Name] = w.Value
		}
	}
	return out
}

// Message returns the "message" attribute carried by trap and fatal replies.
func (s Sentence) Message() string {
	msg, _ := s.Attr("message")
	return msg
}

func (s Sentence) String() string {
	parts := make([]string, 0, len(s.Words))
	for _, w := range s.body() {
		parts = append(parts, w.String())
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, " "))
}
