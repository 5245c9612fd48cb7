package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/rosctl/internal/protocol"
	"github.com/danmuck/rosctl/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestRetryHoldsOffUntilDelayPasses(t *testing.T) {
	testlog.Start(t)
	r := NewRetry(BackoffConfig{InitialDelay: time.Second, Multiplier: 2}, nil)
	now := time.Unix(1700000000, 0)
	if !r.Ready(now) {
		t.Fatalf("fresh retry must be ready")
	}
	if d := r.Fail(now); d != time.Second {
		t.Fatalf("first failure delay=%v", d)
	}
	if r.Ready(now.Add(500 * time.Millisecond)) {
		t.Fatalf("retry ready before delay passed")
	}
	if d := r.Fail(now.Add(time.Second)); d != 2*time.Second {
		t.Fatalf("second failure delay=%v", d)
	}
	if r.Failures() != 2 {
		t.Fatalf("unexpected failures=%d", r.Failures())
	}
	r.Reset()
	if !r.Ready(now) || r.Failures() != 0 {
		t.Fatalf("reset must clear hold-off")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{Host: " 192.168.88.1 "}.WithDefaults()
	if cfg.Host != "192.168.88.1" || cfg.Port != DefaultPort {
		t.Fatalf("unexpected host/port: %q %d", cfg.Host, cfg.Port)
	}
	if cfg.Address() != "192.168.88.1:8728" {
		t.Fatalf("unexpected address: %q", cfg.Address())
	}
	if cfg.ConnectTimeout <= 0 || cfg.ReadBufferSize <= 0 || cfg.Limits.MaxWordBytes == 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if got := (Config{Host: "fe80::1", Port: 8729}).Address(); got != "[fe80::1]:8729" {
		t.Fatalf("unexpected v6 address: %q", got)
	}
}

func TestPendingTableLifecycle(t *testing.T) {
	testlog.Start(t)
	tbl := NewPendingTable()
	now := time.Unix(1700000000, 0)
	if err := tbl.Register(1, func([]protocol.Sentence) {}, now); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tbl.Register(1, func([]protocol.Sentence) {}, now); !errors.Is(err, ErrDuplicateTag) {
		t.Fatalf("expected ErrDuplicateTag, got %v", err)
	}

	row := protocol.NewSentence(protocol.Reply(protocol.ReplyRe), protocol.APIAttribute(protocol.TagKey, "1"), protocol.Empty())
	if _, done := tbl.Append(1, row); done {
		t.Fatalf("!re must not complete the request")
	}
	if _, done := tbl.Append(2, row); done {
		t.Fatalf("unknown tag must be ignored")
	}
	item, ok := tbl.Get(1)
	if !ok || len(item.Sentences) != 1 {
		t.Fatalf("unexpected pending item: %+v ok=%v", item, ok)
	}

	fin := protocol.NewSentence(protocol.Reply(protocol.ReplyDone), protocol.APIAttribute(protocol.TagKey, "1"), protocol.Empty())
	req, done := tbl.Append(1, fin)
	if !done || req.Tag != 1 || len(req.Sentences) != 2 {
		t.Fatalf("unexpected completion: %+v done=%v", req, done)
	}
	if tbl.Len() != 0 {
		t.Fatalf("completed request must be removed")
	}
}

func TestPendingTableDrainCloses(t *testing.T) {
	testlog.Start(t)
	tbl := NewPendingTable()
	for _, tag := range []int{3, 1, 2} {
		if err := tbl.Register(tag, func([]protocol.Sentence) {}, time.Now()); err != nil {
			t.Fatalf("register %d: %v", tag, err)
		}
	}
	if !tbl.Remove(2) || tbl.Remove(2) {
		t.Fatalf("remove must report presence once")
	}
	drained := tbl.Drain()
	if len(drained) != 2 || drained[0].Tag != 1 || drained[1].Tag != 3 {
		t.Fatalf("unexpected drain order: %+v", drained)
	}
	if err := tbl.Register(4, func([]protocol.Sentence) {}, time.Now()); !errors.Is(err, ErrMissingSocket) {
		t.Fatalf("expected ErrMissingSocket after drain, got %v", err)
	}
}

func TestResponseError(t *testing.T) {
	testlog.Start(t)
	done := protocol.NewSentence(protocol.Reply(protocol.ReplyDone), protocol.Empty())
	row := protocol.NewSentence(protocol.Reply(protocol.ReplyRe), protocol.Empty())
	trap := protocol.NewSentence(
		protocol.Reply(protocol.ReplyTrap),
		protocol.Attribute("category", "2"),
		protocol.Attribute("message", "no such item"),
		protocol.Empty(),
	)

	if err := ResponseError([]protocol.Sentence{row, done}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ResponseError([]protocol.Sentence{row}); !errors.Is(err, ErrIncompleteResponse) {
		t.Fatalf("expected ErrIncompleteResponse, got %v", err)
	}
	if err := ResponseError(nil); !errors.Is(err, ErrIncompleteResponse) {
		t.Fatalf("expected ErrIncompleteResponse, got %v", err)
	}
	var replyErr *ReplyError
	if err := ResponseError([]protocol.Sentence{trap}); !errors.As(err, &replyErr) {
		t.Fatalf("expected ReplyError, got %v", err)
	}
	if replyErr.Category != "2" || replyErr.Message != "no such item" {
		t.Fatalf("unexpected reply error: %+v", replyErr)
	}
}
