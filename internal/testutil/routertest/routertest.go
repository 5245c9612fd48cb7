// Package routertest runs an in-process router speaking the RouterOS API
// wire format on a loopback TCP listener.
package routertest

import (
	"errors"
	"net"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/rosctl/internal/protocol"
	"github.com/danmuck/rosctl/internal/protocol/frame"
)

// Handler answers one request sentence. Returned sentences are written in
// order; the router does not add tags on its own.
type Handler func(req protocol.Sentence) []protocol.Sentence

type Router struct {
	t  testing.TB
	ln net.Listener

	mu      sync.Mutex
	conn    net.Conn
	handler Handler
	accepts int

	conns    chan net.Conn
	received chan protocol.Sentence
	done     chan struct{}
}

func New(t testing.TB) *Router {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("routertest listen: %v", err)
	}
	r := &Router{
		t:        t,
		ln:       ln,
		conns:    make(chan net.Conn, 8),
		received: make(chan protocol.Sentence, 256),
		done:     make(chan struct{}),
	}
	go r.acceptLoop()
	t.Cleanup(r.Close)
	return r
}

func (r *Router) Host() string {
	host, _, _ := net.SplitHostPort(r.ln.Addr().String())
	return host
}

func (r *Router) Port() int {
	_, port, _ := net.SplitHostPort(r.ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

func (r *Router) Addr() string {
	return r.ln.Addr().String()
}

// Handle installs an automatic responder for every following request.
func (r *Router) Handle(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Accepts returns how many connections were accepted so far.
func (r *Router) Accepts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepts
}

func (r *Router) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		if r.conn != nil {
			_ = r.conn.Close()
		}
		r.conn = conn
		r.accepts++
		r.mu.Unlock()
		select {
		case r.conns <- conn:
		default:
		}
		go r.serve(conn)
	}
}

func (r *Router) serve(conn net.Conn) {
	rd := frame.NewReader(conn, frame.DefaultLimits())
	for {
		req, err := rd.ReadSentence()
		if err != nil {
			return
		}
		select {
		case r.received <- req:
		default:
		}
		r.mu.Lock()
		h := r.handler
		r.mu.Unlock()
		if h == nil {
			continue
		}
		replies := h(req)
		if len(replies) == 0 {
			continue
		}
		buf, err := frame.Encode(terminate(replies)...)
		if err != nil {
			r.t.Errorf("routertest encode replies: %v", err)
			return
		}
		if _, err := conn.Write(buf); err != nil {
			return
		}
	}
}

// WaitConn blocks until a client connects.
func (r *Router) WaitConn(timeout time.Duration) {
	r.t.Helper()
	select {
	case <-r.conns:
	case <-time.After(timeout):
		r.t.Fatalf("routertest: no connection within %v", timeout)
	}
}

// Next returns the next request sentence received from the client.
func (r *Router) Next(timeout time.Duration) protocol.Sentence {
	r.t.Helper()
	select {
	case s := <-r.received:
		return s
	case <-time.After(timeout):
		r.t.Fatalf("routertest: no sentence within %v", timeout)
		return protocol.Sentence{}
	}
}

// Reply writes sentences to the current connection in one write.
func (r *Router) Reply(sentences ...protocol.Sentence) {
	r.t.Helper()
	buf, err := frame.Encode(terminate(sentences)...)
	if err != nil {
		r.t.Fatalf("routertest encode: %v", err)
	}
	r.WriteRaw(buf)
}

// WriteRaw writes bytes verbatim to the current connection.
func (r *Router) WriteRaw(b []byte) {
	r.t.Helper()
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		r.t.Fatalf("routertest: no connection")
	}
	if _, err := conn.Write(b); err != nil {
		r.t.Fatalf("routertest write: %v", err)
	}
}

// Drop closes the current connection; the client sees EOF.
func (r *Router) Drop() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (r *Router) Close() {
	select {
	case <-r.done:
		return
	default:
		close(r.done)
	}
	if err := r.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		r.t.Logf("routertest close listener: %v", err)
	}
	r.Drop()
}

func terminate(in []protocol.Sentence) []protocol.Sentence {
	out := make([]protocol.Sentence, 0, len(in))
	for _, s := range in {
		out = append(out, s.Terminated())
	}
	return out
}

// Respond builds a reply carrying the tag of req, if any.
func Respond(req protocol.Sentence, words ...protocol.Word) protocol.Sentence {
	s := protocol.NewSentence(words...)
	if tag, ok := req.Tag(); ok {
		return s.WithTag(tag)
	}
	return s.Terminated()
}

// Tagged builds a reply carrying tag.
func Tagged(tag int, words ...protocol.Word) protocol.Sentence {
	return protocol.NewSentence(words...).WithTag(tag)
}

// Command returns the command path of req without the leading slash.
func Command(req protocol.Sentence) string {
	for _, w := range req.Words {
		if w.Kind == protocol.KindCommand {
			return w.Name
		}
	}
	return ""
}

// Interface is one row served for /interface/print.
type Interface map[string]string

// RouterOS returns a Handler that accepts logins listed in users and
// answers /interface/print with one !re row per interface.
func RouterOS(users map[string]string, interfaces []Interface) Handler {
	return func(req protocol.Sentence) []protocol.Sentence {
		switch Command(req) {
		case "login":
			name, _ := req.Attr("name")
			password, _ := req.Attr("password")
			if want, ok := users[name]; ok && want == password {
				return []protocol.Sentence{Respond(req, protocol.Reply(protocol.ReplyDone))}
			}
			return []protocol.Sentence{
				Respond(req, protocol.Reply(protocol.ReplyTrap), protocol.Attribute("message", "invalid user name or password (6)")),
				Respond(req, protocol.Reply(protocol.ReplyDone)),
			}
		case "interface/print":
			out := make([]protocol.Sentence, 0, len(interfaces)+1)
			for i, iface := range interfaces {
				words := []protocol.Word{protocol.Reply(protocol.ReplyRe), protocol.Attribute(".id", "*"+strconv.Itoa(i+1))}
				keys := make([]string, 0, len(iface))
				for key := range iface {
					keys = append(keys, key)
				}
				slices.Sort(keys)
				for _, key := range keys {
					words = append(words, protocol.Attribute(key, iface[key]))
				}
				out = append(out, Respond(req, words...))
			}
			return append(out, Respond(req, protocol.Reply(protocol.ReplyDone)))
		default:
			return []protocol.Sentence{
				Respond(req, protocol.Reply(protocol.ReplyTrap), protocol.Attribute("message", "no such command")),
				Respond(req, protocol.Reply(protocol.ReplyDone)),
			}
		}
	}
}
