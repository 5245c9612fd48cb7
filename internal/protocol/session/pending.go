package session

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/rosctl/internal/protocol"
)

// ResponseHandler receives every sentence delivered for one tag.
type ResponseHandler func(resp []protocol.Sentence)

// PendingRequest tracks one tagged request awaiting a terminal reply.
type PendingRequest struct {
	Tag       int
	Sentences []protocol.Sentence
	Handler   ResponseHandler
	SentAt    time.Time
}

// PendingTable stores pending requests by tag for one connection. Once
// drained it rejects new registrations.
type PendingTable struct {
	mu     sync.Mutex
	items  map[int]*PendingRequest
	closed bool
}

func NewPendingTable() *PendingTable {
	return &PendingTable{
		items: make(map[int]*PendingRequest),
	}
}

func (t *PendingTable) Register(tag int, handler ResponseHandler, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrMissingSocket
	}
	if _, ok := t.items[tag]; ok {
		return ErrDuplicateTag
	}
	t.items[tag] = &PendingRequest{Tag: tag, Handler: handler, SentAt: at}
	return nil
}

// Append records s for its tag. When s carries a terminal reply the request
// is removed and returned with ok=true. Unknown tags are ignored.
func (t *PendingTable) Append(tag int, s protocol.Sentence) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[tag]
	if !ok {
		return PendingRequest{}, false
	}
	item.Sentences = append(item.Sentences, s)
	if !s.IsTerminal() {
		return PendingRequest{}, false
	}
	delete(t.items, tag)
	return *item, true
}

func (t *PendingTable) Remove(tag int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.items[tag]; !ok {
		return false
	}
	delete(t.items, tag)
	return true
}

// Drain removes every request in tag order and closes the table.
func (t *PendingTable) Drain() []PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	out := make([]PendingRequest, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, *item)
	}
	clear(t.items)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tag < out[j].Tag
	})
	return out
}

func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

func (t *PendingTable) Get(tag int) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[tag]
	if !ok {
		return PendingRequest{}, false
	}
	return *item, true
}
