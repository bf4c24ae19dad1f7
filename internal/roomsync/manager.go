// Package roomsync keeps a local membership view of one game room in step
// with the server. A Manager owns one streaming connection at a time; when
// it drops, the manager waits, reconciles from a snapshot and reconnects.
package roomsync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pickup-room-sync/internal/room"
	"github.com/DoyleJ11/pickup-room-sync/internal/snapshot"
	"github.com/DoyleJ11/pickup-room-sync/internal/stomp"
	"github.com/DoyleJ11/pickup-room-sync/internal/store"
)

var (
	ErrClosed        = errors.New("room sync closed")
	ErrAlreadyOpen   = errors.New("room sync already open")
	ErrMissingRoomID = errors.New("room id is required")
)

const defaultWriteTimeout = 3 * time.Second

type Config struct {
	RoomID  string
	URL     string // websocket endpoint of the streaming channel
	Fetcher snapshot.Fetcher
	Dialer  Dialer // defaults to WebsocketDialer

	// TokenSource, when set, is sent as a bearer token on the handshake.
	TokenSource snapshot.TokenSource

	Backoff     Backoff
	MaxAttempts int // consecutive failed recoveries before giving up; 0 retries forever

	// SkipInitialFetch opens straight onto the stream without a cold start snapshot.
	SkipInitialFetch bool
	Initial          room.State

	ReadTimeout  time.Duration // 0 waits forever for the next frame
	WriteTimeout time.Duration
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

// WithStateHook is called from the manager loop on every transition. It must
// not block. Calling Close from the hook is allowed; it starts teardown and
// returns without waiting for the loop.
func WithStateHook(fn func(old, new ConnState)) Option {
	return func(m *Manager) { m.onState = fn }
}

type Manager struct {
	cfg     Config
	log     *zap.Logger
	store   *store.Store
	onState func(old, new ConnState)

	inbox  chan msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	wg      sync.WaitGroup
	mu      sync.Mutex
	opened  bool
	closed  bool
	current atomic.Int32
	inHook  atomic.Bool

	// Owned by the loop goroutine.
	gen        uint64
	attempts   int
	gotFrame   bool
	transport  Transport
	attempt    context.Context
	connCancel context.CancelFunc
	timer      *time.Timer
}

func New(cfg Config, opts ...Option) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		log:    zap.NewNop(),
		store:  store.New(cfg.Initial),
		inbox:  make(chan msg, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.With(zap.String("room", cfg.RoomID))
	return m
}

// Store is the read side for views.
func (m *Manager) Store() *store.Store { return m.store }

func (m *Manager) RoomID() string { return m.cfg.RoomID }

func (m *Manager) State() ConnState { return ConnState(m.current.Load()) }

// Done is closed once the manager reaches StateClosed.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Open starts the state machine. It returns immediately; progress is
// observable through Store and State.
func (m *Manager) Open() error {
	if m.cfg.RoomID == "" {
		return ErrMissingRoomID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.opened {
		return ErrAlreadyOpen
	}
	m.opened = true

	go m.loop()
	return nil
}

// Close tears the connection down, cancels any pending recovery and waits
// for the loop to exit. No store write happens after Close returns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.waitDone()
		return nil
	}
	m.closed = true
	opened := m.opened
	m.mu.Unlock()

	m.cancel()
	if opened {
		m.waitDone()
		return nil
	}

	m.store.Seal()
	m.current.Store(int32(StateClosed))
	close(m.done)
	return nil
}

type msg interface{ isMsg() }

type fetched struct {
	gen  uint64
	snap room.Snapshot
	err  error
}

type dialed struct {
	gen uint64
	t   Transport
	err error
}

type received struct {
	gen  uint64
	data []byte
}

type readFailed struct {
	gen uint64
	err error
}

type recoveryDue struct{ gen uint64 }

func (fetched) isMsg()     {}
func (dialed) isMsg()      {}
func (received) isMsg()    {}
func (readFailed) isMsg()  {}
func (recoveryDue) isMsg() {}

func (m *Manager) loop() {
	defer close(m.done)
	defer m.teardown()

	m.begin(!m.cfg.SkipInitialFetch)

	for {
		select {
		case <-m.ctx.Done():
			return

		case in := <-m.inbox:
			if m.ctx.Err() != nil {
				return
			}
			m.handle(in)
			if m.State() == StateClosed {
				return
			}
		}
	}
}

func (m *Manager) handle(in msg) {
	switch ev := in.(type) {
	case fetched:
		if ev.gen != m.gen {
			return
		}
		if ev.err != nil {
			// Keep the last known state and reconnect anyway.
			m.log.Warn("snapshot fetch failed", zap.Error(ev.err))
		} else {
			m.store.Replace(ev.snap)
			m.log.Info("state reconciled from snapshot",
				zap.Int("participants", len(ev.snap.Participants)),
				zap.Int("waitlist", len(ev.snap.Waitlist)))
		}
		m.dial()

	case dialed:
		if ev.gen != m.gen {
			if ev.t != nil {
				_ = ev.t.Close()
			}
			return
		}
		if ev.err != nil {
			m.disconnected(ev.err)
			return
		}
		m.subscribe(ev.t)

	case received:
		if ev.gen != m.gen {
			return
		}
		if !m.gotFrame {
			m.gotFrame = true
			m.attempts = 0
		}
		m.applyFrames(ev.data)

	case readFailed:
		if ev.gen != m.gen {
			return
		}
		m.disconnected(ev.err)

	case recoveryDue:
		if ev.gen != m.gen {
			return
		}
		m.timer = nil
		m.fetch()
	}
}

// begin starts the first attempt from Disconnected.
func (m *Manager) begin(fetchFirst bool) {
	m.newAttempt()
	m.transition(StateConnecting)
	if fetchFirst {
		m.fetch()
		return
	}
	m.dial()
}

// newAttempt cancels whatever the previous attempt still has in flight and
// bumps the generation so its late results are dropped.
func (m *Manager) newAttempt() {
	if m.connCancel != nil {
		m.connCancel()
	}
	m.gen++
	m.gotFrame = false
	m.attempt, m.connCancel = context.WithCancel(m.ctx)
}

func (m *Manager) fetch() {
	if m.cfg.Fetcher == nil {
		m.dial()
		return
	}
	gen, ctx := m.gen, m.attempt
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		snap, err := m.cfg.Fetcher.Fetch(ctx, m.cfg.RoomID)
		m.post(fetched{gen: gen, snap: snap, err: err})
	}()
}

func (m *Manager) dial() {
	m.transition(StateConnecting)
	gen, ctx := m.gen, m.attempt
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		header := http.Header{}
		if m.cfg.TokenSource != nil {
			tok, err := m.cfg.TokenSource(ctx)
			if err != nil {
				m.post(dialed{gen: gen, err: err})
				return
			}
			if tok != "" {
				header.Set("Authorization", "Bearer "+tok)
			}
		}

		t, err := m.cfg.Dialer.Dial(ctx, m.cfg.URL, header)
		if !m.post(dialed{gen: gen, t: t, err: err}) && t != nil {
			_ = t.Close()
		}
	}()
}

// subscribe sends CONNECT then SUBSCRIBE and starts reading.
func (m *Manager) subscribe(t Transport) {
	m.transport = t
	for _, frame := range [][]byte{stomp.Connect(), stomp.Subscribe(m.cfg.RoomID)} {
		ctx, cancel := context.WithTimeout(m.attempt, m.cfg.WriteTimeout)
		err := t.Write(ctx, frame)
		cancel()
		if err != nil {
			m.disconnected(err)
			return
		}
	}

	m.transition(StateSubscribed)
	m.wg.Add(1)
	go m.readLoop(m.attempt, m.gen, t)
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, t Transport) {
	defer m.wg.Done()
	for {
		rctx, cancel := ctx, context.CancelFunc(func() {})
		if m.cfg.ReadTimeout > 0 {
			rctx, cancel = context.WithTimeout(ctx, m.cfg.ReadTimeout)
		}
		data, err := t.Read(rctx)
		cancel()
		if err != nil {
			m.post(readFailed{gen: gen, err: err})
			return
		}
		if !m.post(received{gen: gen, data: data}) {
			return
		}
	}
}

func (m *Manager) applyFrames(data []byte) {
	for _, raw := range stomp.Split(data) {
		e, err := stomp.DecodeEvent(raw)
		if err != nil {
			if errors.Is(err, stomp.ErrNotMessage) {
				if f, ferr := stomp.Decode(raw); ferr == nil && f.Command == stomp.CmdError {
					text, _ := f.Get("message")
					m.log.Warn("server sent ERROR frame", zap.String("message", text))
				}
				continue
			}
			m.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}

		if m.store.Apply(e) {
			m.log.Debug("event applied", zap.String("type", string(e.Type)), zap.String("user", e.Data.User))
		}
	}
}

// disconnected normalises any transport failure into a close and schedules
// recovery.
func (m *Manager) disconnected(cause error) {
	t := m.transport
	m.transport = nil
	m.newAttempt()
	if t != nil {
		if err := t.Close(); err != nil {
			m.log.Debug("transport close", zap.Error(err))
		}
	}
	m.transition(StateDisconnected)

	m.attempts++
	if m.cfg.MaxAttempts > 0 && m.attempts > m.cfg.MaxAttempts {
		m.log.Error("giving up on room stream",
			zap.Int("attempts", m.attempts-1), zap.Error(cause))
		m.transition(StateClosed)
		return
	}

	delay := m.cfg.Backoff.Delay(m.attempts)
	m.log.Warn("room stream lost, scheduling recovery",
		zap.Error(cause), zap.Duration("delay", delay), zap.Int("attempt", m.attempts))

	gen := m.gen
	m.transition(StateRecovering)
	m.timer = time.AfterFunc(delay, func() { m.post(recoveryDue{gen: gen}) })
}

func (m *Manager) teardown() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.log.Debug("transport close", zap.Error(err))
		}
		m.transport = nil
	}

	// Cancelling the root context stops every helper; once they are gone,
	// anything left in the inbox is stale, but a dialed transport must still
	// be closed.
	m.cancel()
	m.wg.Wait()
	for {
		select {
		case in := <-m.inbox:
			if d, ok := in.(dialed); ok && d.t != nil {
				_ = d.t.Close()
			}
			continue
		default:
		}
		break
	}

	m.store.Seal()
	m.transition(StateClosed)

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Manager) post(in msg) bool {
	select {
	case m.inbox <- in:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// waitDone blocks until the loop exits, unless the caller is the loop itself
// running the state hook.
func (m *Manager) waitDone() {
	if m.inHook.Load() {
		return
	}
	<-m.done
}

func (m *Manager) transition(next ConnState) {
	prev := ConnState(m.current.Swap(int32(next)))
	if prev == next {
		return
	}
	m.log.Info("state change", zap.Stringer("from", prev), zap.Stringer("to", next))
	if m.onState != nil {
		m.inHook.Store(true)
		defer m.inHook.Store(false)
		m.onState(prev, next)
	}
}
