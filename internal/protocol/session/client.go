package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/rosctl/internal/logging"
	"github.com/danmuck/rosctl/internal/protocol"
	"github.com/danmuck/rosctl/internal/protocol/frame"
)

// State is the connection lifecycle phase of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateLoggedIn:
		return "logged_in"
	default:
		return "disconnected"
	}
}

// ReceiveHandler observes every inbound sentence, tagged or not.
type ReceiveHandler func(s protocol.Sentence)

// ErrorHandler observes decode failures and transport read errors.
type ErrorHandler func(err error)

// DialFunc opens the transport.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type Option func(*Client)

func WithReceiveHandler(h ReceiveHandler) Option {
	return func(c *Client) { c.onReceive = h }
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Client) { c.onError = h }
}

func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Client multiplexes tagged requests over one RouterOS API connection.
//
// Responses are delivered on the reader goroutine. Handlers must not block
// for long and must not call Close; use CloseAsync there.
type Client struct {
	cfg       Config
	dial      DialFunc
	onReceive ReceiveHandler
	onError   ErrorHandler
	metrics   Metrics

	connectMu sync.Mutex
	mu        sync.Mutex
	cur       *link

	// writeMu serializes tag allocation, registration and the wire write so
	// a tag is always registered before its bytes leave.
	writeMu sync.Mutex
	lastTag int
}

// link is the state of one live connection. The reader goroutine owns it
// together with the client; it never refers back to the Client.
type link struct {
	conn     net.Conn
	addr     string
	pending  *PendingTable
	done     chan struct{}
	closed   atomic.Bool
	closing  atomic.Bool
	loggedIn atomic.Bool
}

// abort marks the link disconnected and closes the transport. The reader
// then flushes pending requests.
func (l *link) abort() {
	l.closing.Store(true)
	l.loggedIn.Store(false)
	l.closed.Store(true)
	_ = l.conn.Close()
}

func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg.WithDefaults(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
		c.dial = dialer.DialContext
	}
	return c
}

func (c *Client) Address() string {
	return c.cfg.Address()
}

func (c *Client) current() *link {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.closed.Load() {
		return nil
	}
	return c.cur
}

func (c *Client) State() State {
	l := c.current()
	switch {
	case l == nil:
		return StateDisconnected
	case l.loggedIn.Load():
		return StateLoggedIn
	default:
		return StateConnected
	}
}

func (c *Client) IsConnected() bool {
	return c.State() != StateDisconnected
}

func (c *Client) IsLoggedIn() bool {
	return c.State() == StateLoggedIn
}

// Connect dials the router and starts the reader goroutine.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Host == "" {
		return ErrHostRequired
	}
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	if c.current() != nil {
		return ErrAlreadyConnected
	}

	addr := c.cfg.Address()
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := c.dial(dialCtx, "tcp", addr)
	if err != nil {
		logging.Warnf("session.Client.Connect dial addr=%q err=%v", addr, err)
		return &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}

	l := &link{
		conn:    conn,
		addr:    addr,
		pending: NewPendingTable(),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	c.cur = l
	c.mu.Unlock()
	r := &reader{
		link:      l,
		dec:       frame.NewDecoder(c.cfg.Limits),
		bufSize:   c.cfg.ReadBufferSize,
		onReceive: c.onReceive,
		onError:   c.onError,
		metrics:   c.metrics,
	}
	go r.run()
	logging.Debugf("session.Client.Connect connected addr=%q", addr)
	return nil
}

// Send writes one sentence. With a handler the sentence is tagged and the
// handler fires once: on a terminal reply or when the connection drops.
func (c *Client) Send(s protocol.Sentence, onResponse ResponseHandler) error {
	l := c.current()
	if l == nil {
		return ErrMissingSocket
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tag := 0
	if onResponse != nil {
		c.lastTag++
		tag = c.lastTag
		s = s.WithTag(tag)
		if err := l.pending.Register(tag, onResponse, time.Now()); err != nil {
			return err
		}
		c.metrics.PendingChanged(l.pending.Len())
	} else {
		s = s.Terminated()
	}

	buf, err := frame.EncodeWithLimits(c.cfg.Limits, s)
	if err != nil {
		c.unregister(l, tag)
		return err
	}
	if c.cfg.WriteTimeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if _, err := l.conn.Write(buf); err != nil {
		c.unregister(l, tag)
		logging.Warnf("session.Client.Send write addr=%q err=%v", l.addr, err)
		// Part of the frame may be on the wire; the stream cannot be resynced.
		l.abort()
		return &ConnectionError{Op: "write", Addr: l.addr, Err: err}
	}
	c.metrics.SentenceSent()
	return nil
}

func (c *Client) unregister(l *link, tag int) {
	if tag == 0 {
		return
	}
	if l.pending.Remove(tag) {
		c.metrics.PendingChanged(l.pending.Len())
	}
}

// LogIn sends /login with name and password. A response leading with !done
// moves the connection to StateLoggedIn before onResponse runs.
func (c *Client) LogIn(username, password string, onResponse ResponseHandler) error {
	l := c.current()
	if l == nil {
		return ErrMissingSocket
	}
	s := protocol.NewSentence(
		protocol.Command("login"),
		protocol.Attribute("name", username),
		protocol.Attribute("password", password),
	)
	return c.Send(s, func(resp []protocol.Sentence) {
		if loginAccepted(resp) && !l.closed.Load() {
			l.loggedIn.Store(true)
		}
		if onResponse != nil {
			onResponse(resp)
		}
	})
}

func loginAccepted(resp []protocol.Sentence) bool {
	if len(resp) == 0 {
		return false
	}
	reply, ok := resp[0].Reply()
	return ok && reply == protocol.ReplyDone
}

// Call sends s and waits for its response. Giving up on ctx leaves the
// request pending until it completes or the connection drops.
func (c *Client) Call(ctx context.Context, s protocol.Sentence) ([]protocol.Sentence, error) {
	ch := make(chan []protocol.Sentence, 1)
	if err := c.Send(s, func(resp []protocol.Sentence) { ch <- resp }); err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		return resp, ResponseError(resp)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the transport and waits for the reader to flush pending
// requests. Safe to call repeatedly.
func (c *Client) Close() error {
	l, err := c.shutdown()
	if l != nil {
		<-l.done
	}
	return err
}

// CloseAsync closes the transport without waiting for the reader. Use it
// from response handlers.
func (c *Client) CloseAsync() error {
	_, err := c.shutdown()
	return err
}

func (c *Client) shutdown() (*link, error) {
	c.mu.Lock()
	l := c.cur
	c.mu.Unlock()
	if l == nil || l.closing.Swap(true) {
		return l, nil
	}
	err := l.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return l, err
}

type reader struct {
	link      *link
	dec       *frame.Decoder
	bufSize   int
	onReceive ReceiveHandler
	onError   ErrorHandler
	metrics   Metrics
}

func (r *reader) run() {
	buf := make([]byte, r.bufSize)
	for {
		n, err := r.link.conn.Read(buf)
		if n > 0 {
			r.consume(buf[:n])
		}
		if err != nil {
			r.stop(err)
			return
		}
	}
}

func (r *reader) consume(chunk []byte) {
	sentences, err := r.dec.Feed(chunk)
	for _, s := range sentences {
		r.dispatch(s)
	}
	if err != nil {
		r.metrics.DecodeError()
		logging.Warnf("session.reader decode addr=%q err=%v", r.link.addr, err)
		r.report(err)
	}
}

func (r *reader) dispatch(s protocol.Sentence) {
	r.metrics.SentenceReceived()
	if r.onReceive != nil {
		r.onReceive(s)
	}
	tag, ok := s.Tag()
	if !ok {
		return
	}
	req, complete := r.link.pending.Append(tag, s)
	if !complete {
		return
	}
	r.metrics.RequestCompleted(time.Since(req.SentAt))
	r.metrics.PendingChanged(r.link.pending.Len())
	req.Handler(req.Sentences)
}

// stop detaches the connection, then flushes every pending request with
// whatever it accumulated.
func (r *reader) stop(err error) {
	l := r.link
	l.loggedIn.Store(false)
	l.closed.Store(true)
	_ = l.conn.Close()

	local := l.closing.Load() || errors.Is(err, net.ErrClosed)
	switch {
	case errors.Is(err, io.EOF):
		logging.Infof("session.reader closed by peer addr=%q", l.addr)
	case local:
		logging.Debugf("session.reader closed locally addr=%q", l.addr)
	default:
		logging.Warnf("session.reader read addr=%q err=%v", l.addr, err)
		r.report(&ConnectionError{Op: "read", Addr: l.addr, Err: err})
	}

	flushed := l.pending.Drain()
	r.metrics.PendingChanged(0)
	for _, req := range flushed {
		req.Handler(req.Sentences)
	}
	close(l.done)
}

func (r *reader) report(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}
