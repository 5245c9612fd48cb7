// Package poller keeps one API client per configured router, logs in and
// polls interface statistics on a fixed interval.
package poller

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danmuck/rosctl/internal/logging"
	"github.com/danmuck/rosctl/internal/protocol"
	"github.com/danmuck/rosctl/internal/protocol/session"
)

// Poll outcomes reported to Metrics.
const (
	OutcomeOK            = "ok"
	OutcomeTrap          = "trap"
	OutcomeIncomplete    = "incomplete"
	OutcomeSendError     = "send_error"
	OutcomeConnectError  = "connect_error"
	OutcomeLoginRejected = "login_rejected"
)

// Metrics receives per-router observations.
type Metrics interface {
	Session(routerID string) session.Metrics
	PollResult(routerID, outcome string)
	Interfaces(routerID string, stats []InterfaceStats)
}

type nopMetrics struct{}

func (nopMetrics) Session(string) session.Metrics      { return nil }
func (nopMetrics) PollResult(string, string)           {}
func (nopMetrics) Interfaces(string, []InterfaceStats) {}

type Option func(*Poller)

func WithMetrics(m Metrics) Option {
	return func(p *Poller) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithStore(s *Store) Option {
	return func(p *Poller) {
		if s != nil {
			p.store = s
		}
	}
}

func WithDialer(dial session.DialFunc) Option {
	return func(p *Poller) { p.dial = dial }
}

type Poller struct {
	cfg     Config
	store   *Store
	metrics Metrics
	dial    session.DialFunc
}

func New(cfg Config, opts ...Option) (*Poller, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Poller{
		cfg:     cfg,
		store:   NewStore(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, r := range cfg.Routers {
		p.store.Set(Snapshot{
			RouterID: r.ID,
			Name:     r.Label(),
			Address:  cfg.sessionConfig(r).Address(),
			State:    session.StateDisconnected.String(),
		})
	}
	return p, nil
}

func (p *Poller) Store() *Store {
	return p.store
}

func (p *Poller) Routers() []Router {
	return append([]Router(nil), p.cfg.Routers...)
}

// Run polls every router until ctx is done, then closes all clients.
func (p *Poller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range p.cfg.Routers {
		w := p.newWorker(r, int64(i))
		g.Go(func() error {
			return w.run(gctx, p.cfg.Interval)
		})
	}
	return g.Wait()
}

func (p *Poller) newWorker(r Router, seed int64) *worker {
	opts := []session.Option{
		session.WithErrorHandler(func(err error) {
			logging.Warnf("poller.worker router=%q err=%v", r.ID, err)
		}),
	}
	if m := p.metrics.Session(r.ID); m != nil {
		opts = append(opts, session.WithMetrics(m))
	}
	if p.dial != nil {
		opts = append(opts, session.WithDialer(p.dial))
	}
	cfg := p.cfg.sessionConfig(r)
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + seed))
	return &worker{
		router:  r,
		client:  session.NewClient(cfg, opts...),
		retry:   session.NewRetry(cfg.Backoff, rng),
		store:   p.store,
		metrics: p.metrics,
	}
}

// worker drives one router. tick runs on the loop goroutine; response
// handlers run on the client's reader goroutine.
type worker struct {
	router  Router
	client  *session.Client
	retry   *session.Retry
	store   *Store
	metrics Metrics

	loggingIn atomic.Bool
	polling   atomic.Bool
}

func (w *worker) run(ctx context.Context, interval time.Duration) error {
	defer w.close()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			w.tick(ctx, now)
		}
	}
}

func (w *worker) close() {
	if err := w.client.Close(); err != nil {
		logging.Debugf("poller.worker.close router=%q err=%v", w.router.ID, err)
	}
	w.setState(nil)
}

func (w *worker) tick(ctx context.Context, now time.Time) {
	switch w.client.State() {
	case session.StateLoggedIn:
		w.poll()
	case session.StateConnected:
		w.login()
	default:
		if !w.retry.Ready(now) {
			return
		}
		if err := w.client.Connect(ctx); err != nil {
			delay := w.retry.Fail(now)
			logging.Warnf("poller.worker.tick connect router=%q failures=%d retry_in=%s err=%v",
				w.router.ID, w.retry.Failures(), delay, err)
			w.metrics.PollResult(w.router.ID, OutcomeConnectError)
			w.setState(err)
			return
		}
		w.retry.Reset()
		logging.Infof("poller.worker.tick connected router=%q addr=%q", w.router.ID, w.client.Address())
		w.setState(nil)
		w.login()
	}
}

func (w *worker) login() {
	if !w.loggingIn.CompareAndSwap(false, true) {
		return
	}
	err := w.client.LogIn(w.router.Username, w.router.Password, func(resp []protocol.Sentence) {
		defer w.loggingIn.Store(false)
		if err := session.ResponseError(resp); err != nil {
			logging.Warnf("poller.worker.login router=%q user=%q err=%v", w.router.ID, w.router.Username, err)
			w.metrics.PollResult(w.router.ID, OutcomeLoginRejected)
			w.setState(err)
			return
		}
		logging.Infof("poller.worker.login router=%q user=%q", w.router.ID, w.router.Username)
		w.setState(nil)
		w.poll()
	})
	if err != nil {
		w.loggingIn.Store(false)
		logging.Warnf("poller.worker.login send router=%q err=%v", w.router.ID, err)
		w.metrics.PollResult(w.router.ID, OutcomeSendError)
	}
}

func (w *worker) poll() {
	if !w.polling.CompareAndSwap(false, true) {
		return
	}
	req := protocol.NewSentence(protocol.Command("interface/print"), protocol.Flag("stats"))
	if err := w.client.Send(req, w.onStats); err != nil {
		w.polling.Store(false)
		logging.Warnf("poller.worker.poll send router=%q err=%v", w.router.ID, err)
		w.metrics.PollResult(w.router.ID, OutcomeSendError)
	}
}

func (w *worker) onStats(resp []protocol.Sentence) {
	defer w.polling.Store(false)
	if err := session.ResponseError(resp); err != nil {
		outcome := OutcomeTrap
		if errors.Is(err, session.ErrIncompleteResponse) {
			outcome = OutcomeIncomplete
		}
		logging.Warnf("poller.worker.onStats router=%q outcome=%s err=%v", w.router.ID, outcome, err)
		w.metrics.PollResult(w.router.ID, outcome)
		w.setState(err)
		return
	}

	stats := ParseStats(resp)
	logging.Debugf("poller.worker.onStats router=%q interfaces=%d", w.router.ID, len(stats))
	w.metrics.Interfaces(w.router.ID, stats)
	w.metrics.PollResult(w.router.ID, OutcomeOK)
	w.store.Update(w.router.ID, func(s *Snapshot) {
		s.State = w.client.State().String()
		s.Interfaces = stats
		s.UpdatedAt = time.Now()
		s.LastError = ""
	})
}

func (w *worker) setState(err error) {
	w.store.Update(w.router.ID, func(s *Snapshot) {
		s.State = w.client.State().String()
		s.LastError = ""
		if err != nil {
			s.LastError = err.Error()
		}
	})
}
