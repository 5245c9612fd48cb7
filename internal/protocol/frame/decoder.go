package frame

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/danmuck/rosctl/internal/protocol"
)

// Decoder reassembles sentences from arbitrary byte chunks.
//
// A chunk may end inside a length prefix or inside word content; that state
// is carried into the next Feed. Only sentences closed by an empty word are
// returned.
type Decoder struct {
	limits Limits

	prefix     [MaxPrefixLen]byte
	prefixLen  int
	prefixWant int

	haveLength bool
	length     uint32
	content    []byte

	current []protocol.Word
}

func NewDecoder(limits Limits) *Decoder {
	return &Decoder{limits: limits}
}

// Feed consumes chunk and returns the sentences it completed. On error the
// decoder drops its partial state; sentences completed before the failing
// word are still returned.
func (d *Decoder) Feed(chunk []byte) ([]protocol.Sentence, error) {
	var out []protocol.Sentence
	for {
		if !d.haveLength {
			if len(chunk) == 0 {
				return out, nil
			}
			b := chunk[0]
			chunk = chunk[1:]
			if d.prefixLen == 0 {
				width, err := prefixWidth(b)
				if err != nil {
					d.Reset()
					return out, err
				}
				d.prefixWant = width
			}
			d.prefix[d.prefixLen] = b
			d.prefixLen++
			if d.prefixLen < d.prefixWant {
				continue
			}
			n := lengthFromPrefix(d.prefix[:d.prefixLen])
			d.prefixLen = 0
			if !d.limits.allows(n) {
				d.Reset()
				return out, fmt.Errorf("%w: %d bytes", ErrWordTooLarge, n)
			}
			d.length = n
			d.haveLength = true
			d.content = make([]byte, 0, min(int(n), 64*1024))
		}

		if need := int(d.length) - len(d.content); need > 0 {
			if len(chunk) == 0 {
				return out, nil
			}
			take := min(need, len(chunk))
			d.content = append(d.content, chunk[:take]...)
			chunk = chunk[take:]
			if len(d.content) < int(d.length) {
				return out, nil
			}
		}

		word, err := d.completeWord()
		if err != nil {
			d.Reset()
			return out, err
		}
		d.current = append(d.current, word)
		if word.IsEmpty() {
			out = append(out, protocol.Sentence{Words: d.current})
			d.current = nil
		}
	}
}

func (d *Decoder) completeWord() (protocol.Word, error) {
	content := d.content
	d.haveLength = false
	d.length = 0
	d.content = nil
	if !utf8.Valid(content) {
		return protocol.Word{}, ErrCantDecodeWordContent
	}
	return protocol.ParseWord(string(content))
}

// Pending reports whether any partial prefix, word or sentence is buffered.
func (d *Decoder) Pending() bool {
	return d.prefixLen > 0 || d.haveLength || len(d.current) > 0
}

// Reset drops all partial state.
func (d *Decoder) Reset() {
	d.prefixLen = 0
	d.prefixWant = 0
	d.haveLength = false
	d.length = 0
	d.content = nil
	d.current = nil
}

// end reports end of input: a partial word is an error, a partial
// sentence is handed back.
func (d *Decoder) end() (protocol.Sentence, bool, error) {
	if d.prefixLen > 0 {
		d.Reset()
		return protocol.Sentence{}, false, ErrUnexpectedEndOfWordLength
	}
	if d.haveLength {
		d.Reset()
		return protocol.Sentence{}, false, ErrUnexpectedEndOfWordContent
	}
	if len(d.current) == 0 {
		return protocol.Sentence{}, false, nil
	}
	s := protocol.Sentence{Words: d.current}
	d.current = nil
	return s, true, nil
}

// Decode decodes one complete byte run. A trailing sentence without its
// terminator is returned as the last element.
func Decode(data []byte) ([]protocol.Sentence, error) {
	return DecodeWithLimits(data, DefaultLimits())
}

func DecodeWithLimits(data []byte, limits Limits) ([]protocol.Sentence, error) {
	d := NewDecoder(limits)
	out, err := d.Feed(data)
	if err != nil {
		return nil, err
	}
	tail, ok, err := d.end()
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, tail)
	}
	return out, nil
}

// Reader reads whole sentences from a byte stream.
type Reader struct {
	r       io.Reader
	dec     *Decoder
	buf     []byte
	backlog []protocol.Sentence
	err     error
}

func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{
		r:   r,
		dec: NewDecoder(limits),
		buf: make([]byte, 4096),
	}
}

// ReadSentence blocks until one terminated sentence is available. EOF in
// the middle of a word reports the matching end-of-word error.
func (r *Reader) ReadSentence() (protocol.Sentence, error) {
	for len(r.backlog) == 0 {
		if r.err != nil {
			err := r.err
			r.err = nil
			return protocol.Sentence{}, err
		}
		n, err := r.r.Read(r.buf)
		if n > 0 {
			sentences, decErr := r.dec.Feed(r.buf[:n])
			r.backlog = append(r.backlog, sentences...)
			if decErr != nil {
				r.err = decErr
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if _, _, endErr := r.dec.end(); endErr != nil {
				err = endErr
			}
		}
		if len(r.backlog) > 0 {
			if r.err == nil {
				r.err = err
			}
			break
		}
		if r.err != nil {
			decErr := r.err
			r.err = err
			return protocol.Sentence{}, decErr
		}
		return protocol.Sentence{}, err
	}
	s := r.backlog[0]
	r.backlog = r.backlog[1:]
	return s, nil
}

// WriteSentence frames s and writes it with a single Write call.
func WriteSentence(w io.Writer, s protocol.Sentence, limits Limits) error {
	buf, err := EncodeWithLimits(limits, s)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
