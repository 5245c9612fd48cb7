package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/rosctl/internal/protocol"
)

var (
	ErrMissingSocket      = errors.New("session: missing socket")
	ErrAlreadyConnected   = errors.New("session: already connected")
	ErrHostRequired       = errors.New("session: host required")
	ErrDuplicateTag       = errors.New("session: duplicate tag")
	ErrIncompleteResponse = errors.New("session: connection closed before response completed")
)

// ConnectionError wraps a transport failure.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ReplyError reports a !trap or !fatal reply.
type ReplyError struct {
	Reply    string
	Category string
	Message  string
}

func (e *ReplyError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("session: !%s category=%s: %s", e.Reply, e.Category, e.Message)
	}
	return fmt.Sprintf("session: !%s: %s", e.Reply, e.Message)
}

// ResponseError inspects a completed response. It returns nil for !done,
// a *ReplyError for the first !trap or !fatal and ErrIncompleteResponse when
// no terminal reply arrived.
func ResponseError(resp []protocol.Sentence) error {
	for _, s := range resp {
		reply, ok := s.Reply()
		if !ok {
			continue
		}
		switch reply {
		case protocol.ReplyTrap, protocol.ReplyFatal:
			category, _ := s.Attr("category")
			return &ReplyError{Reply: reply, Category: category, Message: s.Message()}
		}
	}
	if len(resp) == 0 || !resp[len(resp)-1].IsTerminal() {
		return ErrIncompleteResponse
	}
	return nil
}
