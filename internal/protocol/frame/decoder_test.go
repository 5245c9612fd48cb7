package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/danmuck/rosctl/internal/protocol"
	"github.com/danmuck/rosctl/internal/testutil/testlog"
)

func sampleReplies() []protocol.Sentence {
	return []protocol.Sentence{
		protocol.NewSentence(
			protocol.Reply(protocol.ReplyRe),
			protocol.Attribute("name", "ether1"),
			protocol.Attribute("comment", strings.Repeat("c", 300)),
			protocol.APIAttribute(protocol.TagKey, "7"),
			protocol.Empty(),
		),
		protocol.NewSentence(
			protocol.Reply(protocol.ReplyDone),
			protocol.APIAttribute(protocol.TagKey, "7"),
			protocol.Empty(),
		),
	}
}

func TestDecoderByteAtATimeMatchesWhole(t *testing.T) {
	testlog.Start(t)
	in := sampleReplies()
	encoded, err := Encode(in...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	whole, err := NewDecoder(DefaultLimits()).Feed(encoded)
	if err != nil {
		t.Fatalf("feed whole: %v", err)
	}
	assertSentences(t, whole, in)

	d := NewDecoder(DefaultLimits())
	var split []protocol.Sentence
	for i := range encoded {
		out, err := d.Feed(encoded[i : i+1])
		if err != nil {
			t.Fatalf("feed byte %d: %v", i, err)
		}
		split = append(split, out...)
	}
	assertSentences(t, split, whole)
	if d.Pending() {
		t.Fatalf("decoder should be idle after full sentences")
	}
}

func TestDecoderEverySplitPoint(t *testing.T) {
	testlog.Start(t)
	in := sampleReplies()
	encoded, err := Encode(in...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for cut := 0; cut <= len(encoded); cut++ {
		d := NewDecoder(DefaultLimits())
		first, err := d.Feed(encoded[:cut])
		if err != nil {
			t.Fatalf("cut=%d first feed: %v", cut, err)
		}
		second, err := d.Feed(encoded[cut:])
		if err != nil {
			t.Fatalf("cut=%d second feed: %v", cut, err)
		}
		assertSentences(t, append(first, second...), in)
	}
}

func TestDecoderRetainsUnterminatedSentence(t *testing.T) {
	testlog.Start(t)
	in := sampleReplies()[1]
	encoded, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	body := encoded[:len(encoded)-1]
	d := NewDecoder(DefaultLimits())
	out, err := d.Feed(body)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("unterminated sentence emitted: %v", out)
	}
	if !d.Pending() {
		t.Fatalf("expected pending sentence")
	}
	out, err = d.Feed([]byte{0x00})
	if err != nil {
		t.Fatalf("feed terminator: %v", err)
	}
	assertSentences(t, out, []protocol.Sentence{in})
}

func TestDecoderControlByte(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(DefaultLimits())
	out, err := d.Feed([]byte{0xF8, 0x01, 0x02})
	if !errors.Is(err, ErrUnexpectedControlByte) {
		t.Fatalf("expected ErrUnexpectedControlByte, got %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("unexpected sentences: %v", out)
	}
	if d.Pending() {
		t.Fatalf("decoder must reset after error")
	}

	if _, err := Decode([]byte{0xF8}); !errors.Is(err, ErrUnexpectedControlByte) {
		t.Fatalf("expected ErrUnexpectedControlByte, got %v", err)
	}
	if _, err := Decode([]byte{0xF3}); !errors.Is(err, ErrUnexpectedFirstByte) {
		t.Fatalf("expected ErrUnexpectedFirstByte, got %v", err)
	}
}

func TestDecoderReturnsSentencesBeforeError(t *testing.T) {
	testlog.Start(t)
	good := protocol.NewSentence(protocol.Reply(protocol.ReplyDone), protocol.Empty())
	encoded, err := Encode(good)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := NewDecoder(DefaultLimits()).Feed(append(encoded, 0xFF))
	if !errors.Is(err, ErrUnexpectedControlByte) {
		t.Fatalf("expected ErrUnexpectedControlByte, got %v", err)
	}
	assertSentences(t, out, []protocol.Sentence{good})
}

func TestDecodeTruncated(t *testing.T) {
	testlog.Start(t)
	if _, err := Decode([]byte{0x85, 'a', 'b'}); !errors.Is(err, ErrUnexpectedEndOfWordContent) {
		t.Fatalf("expected ErrUnexpectedEndOfWordContent, got %v", err)
	}
	if _, err := Decode([]byte{0xE0, 0x00}); !errors.Is(err, ErrUnexpectedEndOfWordLength) {
		t.Fatalf("expected ErrUnexpectedEndOfWordLength, got %v", err)
	}
}

func TestDecodeReturnsTrailingUnterminatedSentence(t *testing.T) {
	testlog.Start(t)
	raw, err := Encode(protocol.NewSentence(protocol.Reply(protocol.ReplyRe), protocol.Attribute("name", "ether1")))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Len() != 2 {
		t.Fatalf("unexpected sentences: %v", out)
	}
}

func TestDecodeInvalidContent(t *testing.T) {
	testlog.Start(t)
	if _, err := Decode([]byte{0x02, 0xC3, 0x28, 0x00}); !errors.Is(err, ErrCantDecodeWordContent) {
		t.Fatalf("expected ErrCantDecodeWordContent, got %v", err)
	}
	if _, err := Decode([]byte{0x03, 'a', 'b', 'c', 0x00}); !errors.Is(err, protocol.ErrUnrecognizedWord) {
		t.Fatalf("expected ErrUnrecognizedWord, got %v", err)
	}
}

func TestDecoderWordLimit(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(Limits{MaxWordBytes: 8})
	if _, err := d.Feed(EncodeLength(9)); !errors.Is(err, ErrWordTooLarge) {
		t.Fatalf("expected ErrWordTooLarge, got %v", err)
	}
}

func TestReaderReadsAcrossChunks(t *testing.T) {
	testlog.Start(t)
	in := sampleReplies()
	encoded, err := Encode(in...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r := NewReader(io.MultiReader(
		bytes.NewReader(encoded[:5]),
		bytes.NewReader(encoded[5:120]),
		bytes.NewReader(encoded[120:]),
	), DefaultLimits())

	for i := range in {
		s, err := r.ReadSentence()
		if err != nil {
			t.Fatalf("read sentence %d: %v", i, err)
		}
		if !s.Equal(in[i]) {
			t.Fatalf("sentence %d got=%v want=%v", i, s, in[i])
		}
	}
	if _, err := r.ReadSentence(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReaderTruncatedStream(t *testing.T) {
	testlog.Start(t)
	r := NewReader(bytes.NewReader([]byte{0x05, '!', 'd'}), DefaultLimits())
	if _, err := r.ReadSentence(); !errors.Is(err, ErrUnexpectedEndOfWordContent) {
		t.Fatalf("expected ErrUnexpectedEndOfWordContent, got %v", err)
	}
}

func TestUnlimitedDecoderAcceptsFiveBytePrefixWord(t *testing.T) {
	testlog.Start(t)
	if testing.Short() {
		t.Skip("allocates a word over 256MiB")
	}
	const n = 0x10000001
	prefix := EncodeLength(n)
	if len(prefix) != MaxPrefixLen || prefix[0] != 0xF0 {
		t.Fatalf("unexpected prefix: % X", prefix)
	}
	if got, used, err := DecodeLength(prefix); err != nil || got != n || used != MaxPrefixLen {
		t.Fatalf("DecodeLength got=0x%X used=%d err=%v", got, used, err)
	}
	if DefaultLimits().allows(n) {
		t.Fatalf("default limits must reject 0x%X", n)
	}

	dec := NewDecoder(Limits{MaxWordBytes: 0})
	feed := func(chunk []byte) []protocol.Sentence {
		t.Helper()
		out, err := dec.Feed(chunk)
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		return out
	}
	feed(prefix)
	feed([]byte("=k="))
	filler := bytes.Repeat([]byte{'a'}, 1<<20)
	for left := n - 3; left > 0; left -= len(filler) {
		if out := feed(filler[:min(left, len(filler))]); len(out) != 0 {
			t.Fatalf("sentence completed early")
		}
	}
	out := feed(EncodeLength(0))
	if len(out) != 1 || len(out[0].Words) != 2 {
		t.Fatalf("unexpected sentences: %d", len(out))
	}
	w := out[0].Words[0]
	if w.Kind != protocol.KindAttribute || w.Name != "k" || len(w.Value) != n-3 {
		t.Fatalf("unexpected word kind=%v name=%q len=%d", w.Kind, w.Name, len(w.Value))
	}
	if dec.Pending() {
		t.Fatalf("decoder still pending")
	}
}
