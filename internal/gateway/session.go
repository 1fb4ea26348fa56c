package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/EgorLis/presencebot/internal/logging"
)

var gwLog = logging.ForComponent(logging.CompGateway)

// DefaultURL — адрес шлюза.
const DefaultURL = "wss://gateway.discord.gg/?v=9&encoding=json"

var (
	ErrNotConnected = errors.New("gateway: not connected")
	ErrClosed       = errors.New("gateway: connection closed")
	ErrReadyTimeout = errors.New("gateway: READY not received in time")
	ErrStopped      = errors.New("gateway: session stopped")
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Identifying
	Ready
)

func (st State) String() string {
	switch st {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Identifying:
		return "IDENTIFYING"
	case Ready:
		return "READY"
	}
	return fmt.Sprintf("State(%d)", int32(st))
}

type Options struct {
	URL string
	// Identity вызывается перед каждым identify
	Identity func() Identity

	// SettleDelay — пауза между открытием соединения и identify
	SettleDelay time.Duration
	// ReadyTimeout — сколько ждать READY после открытия
	ReadyTimeout time.Duration
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
	// SendLimiter — бюджет исходящих событий для Send (identify и пульс
	// его не тратят). По умолчанию 120 событий в минуту: больше платформа
	// не принимает и закрывает соединение.
	SendLimiter *rate.Limiter

	// Хуки вызываются из горутины сессии: не блокировать и не звать
	// методы Session синхронно.
	OnReady func()
	OnClose func(err error)
	OnError func(err error)
}

func (o *Options) setDefaults() {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.Identity == nil {
		o.Identity = func() Identity { return Identity{} }
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = time.Second
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendLimiter == nil {
		o.SendLimiter = rate.NewLimiter(rate.Every(500*time.Millisecond), 120)
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
}

// Session — единственный владелец соединения со шлюзом. Все изменения
// указателя на соединение происходят в горутине run; остальные общаются с
// ней через events.
type Session struct {
	opts Options

	events   chan event
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	state atomic.Int32 // зеркало для State(); пишет только run

	// ниже — состояние актора, трогать только из run
	conn       *conn
	gen        uint64
	waiters    []chan error
	readyTimer *time.Timer
	hbCancel   context.CancelFunc
	dialCancel context.CancelFunc
}

// New создаёт сессию и запускает её горутину. Соединение не открывается,
// пока кто-нибудь не вызовет EnsureConnected.
func New(opts Options) *Session {
	opts.setDefaults()
	s := &Session{
		opts:   opts,
		events: make(chan event, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// State — текущее состояние.
func (s *Session) State() State {
	return State(s.state.Load())
}

// EnsureConnected возвращает nil, когда сессия в READY. Если соединения нет —
// открывает его; параллельные вызовы ждут одну и ту же попытку.
func (s *Session) EnsureConnected(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.request(ctx, ensureEvent{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Send пишет payload в текущее соединение. Без READY — ErrNotConnected;
// упавшая запись закрывает соединение. Ждёт SendLimiter.
func (s *Session) Send(ctx context.Context, p Payload) error {
	if err := s.opts.SendLimiter.Wait(ctx); err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := s.request(ctx, sendEvent{payload: p, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Disconnect закрывает текущее соединение (если есть); сессия остаётся
// рабочей и переподключится по следующему EnsureConnected.
func (s *Session) Disconnect() {
	reply := make(chan error, 1)
	if err := s.request(context.Background(), disconnectEvent{reply: reply}); err != nil {
		return
	}
	select {
	case <-reply:
	case <-s.done:
	}
}

// Close останавливает сессию навсегда.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Session) request(ctx context.Context, ev event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// post — для внутренних горутин (read loop, таймеры): не блокируется после
// остановки сессии.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// ========================= actor =========================

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			s.teardown(ErrStopped)
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case ensureEvent:
		switch s.State() {
		case Ready:
			ev.reply <- nil
		case Connecting, Identifying:
			s.waiters = append(s.waiters, ev.reply)
		default:
			s.waiters = append(s.waiters, ev.reply)
			s.startDial()
		}

	case sendEvent:
		if s.conn == nil || s.State() != Ready {
			ev.reply <- ErrNotConnected
			return
		}
		if err := s.conn.writeJSON(ev.payload); err != nil {
			ev.reply <- fmt.Errorf("gateway send: %w", err)
			s.teardown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		ev.reply <- nil

	case disconnectEvent:
		s.teardown(ErrClosed)
		ev.reply <- nil

	case dialedEvent:
		if ev.gen != s.gen || s.State() != Connecting {
			// соединение больше никому не нужно
			if ev.conn != nil {
				ev.conn.close()
			}
			return
		}
		s.dialCancel = nil
		if ev.err != nil {
			s.reportError(fmt.Errorf("dial gateway: %w", ev.err))
			s.setState(Disconnected)
			s.failWaiters(fmt.Errorf("dial gateway: %w", ev.err))
			return
		}
		s.conn = ev.conn
		gwLog.Info("websocket_connected", "gen", ev.gen)
		go s.readLoop(ev.conn)

		gen := ev.gen
		time.AfterFunc(s.opts.SettleDelay, func() { s.post(identifyDueEvent{gen: gen}) })
		s.readyTimer = time.AfterFunc(s.opts.ReadyTimeout, func() { s.post(readyTimeoutEvent{gen: gen}) })

	case identifyDueEvent:
		if !s.current(ev.gen) || s.State() != Connecting {
			return
		}
		if err := s.conn.writeJSON(IdentifyPayload(s.opts.Identity())); err != nil {
			s.teardown(fmt.Errorf("%w: identify: %v", ErrClosed, err))
			return
		}
		s.setState(Identifying)

	case helloEvent:
		if !s.current(ev.gen) {
			return
		}
		s.startHeartbeat(ev.interval)

	case readyEvent:
		if !s.current(ev.gen) {
			return
		}
		if s.readyTimer != nil {
			s.readyTimer.Stop()
			s.readyTimer = nil
		}
		s.setState(Ready)
		gwLog.Info("ready", "gen", ev.gen, "session_id", ev.sessionID, "user_id", ev.userID)
		s.replyWaiters(nil)
		if s.opts.OnReady != nil {
			s.opts.OnReady()
		}

	case readyTimeoutEvent:
		if !s.current(ev.gen) || s.State() == Ready {
			return
		}
		gwLog.Warn("ready_timeout", "gen", ev.gen, "timeout", s.opts.ReadyTimeout)
		s.teardown(ErrReadyTimeout)

	case dropEvent:
		if !s.current(ev.gen) {
			return
		}
		gwLog.Info("server_requested_drop", "gen", ev.gen, "op", ev.op)
		s.teardown(fmt.Errorf("%w: server sent op %d", ErrClosed, ev.op))

	case closedEvent:
		if !s.current(ev.gen) {
			return
		}
		err := ErrClosed
		if ev.err != nil {
			err = fmt.Errorf("%w: %v", ErrClosed, ev.err)
		}
		s.teardown(err)

	case errorEvent:
		s.reportError(ev.err)
	}
}

func (s *Session) current(gen uint64) bool {
	return s.conn != nil && s.conn.gen == gen
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		gwLog.Debug("state", "from", prev.String(), "to", st.String(), "gen", s.gen)
	}
}

func (s *Session) startDial() {
	s.gen++
	gen := s.gen
	s.setState(Connecting)

	ctx, cancel := context.WithCancel(context.Background())
	s.dialCancel = cancel
	go func() {
		c, err := s.dial(ctx, gen)
		select {
		case s.events <- dialedEvent{gen: gen, conn: c, err: err}:
		case <-s.done:
			if c != nil {
				c.close()
			}
		}
	}()
}

// startHeartbeat гасит предыдущий пульс (если был) и запускает новый.
func (s *Session) startHeartbeat(interval time.Duration) {
	if s.hbCancel != nil {
		s.hbCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.hbCancel = cancel
	gwLog.Debug("heartbeat_start", "gen", s.conn.gen, "interval", interval)
	go s.conn.heartbeat(ctx, interval)
}

// teardown закрывает текущее соединение и будит всех ждущих с err.
func (s *Session) teardown(err error) {
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	if s.hbCancel != nil {
		s.hbCancel()
		s.hbCancel = nil
	}
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	wasOpen := s.conn != nil
	if wasOpen {
		s.conn.close()
		s.conn = nil
	}
	s.setState(Disconnected)
	s.failWaiters(err)

	if wasOpen {
		gwLog.Info("websocket_closed", "reason", err)
		if s.opts.OnClose != nil {
			s.opts.OnClose(err)
		}
	}
}

func (s *Session) failWaiters(err error) {
	if err == nil {
		err = ErrClosed
	}
	s.replyWaiters(err)
}

func (s *Session) replyWaiters(err error) {
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

func (s *Session) reportError(err error) {
	gwLog.Warn("websocket_error", "error", err)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// ========================= events =========================

type event any

type ensureEvent struct{ reply chan error }

type sendEvent struct {
	payload Payload
	reply   chan error
}

type disconnectEvent struct{ reply chan error }

type dialedEvent struct {
	gen  uint64
	conn *conn
	err  error
}

type identifyDueEvent struct{ gen uint64 }

type helloEvent struct {
	gen      uint64
	interval time.Duration
}

type readyEvent struct {
	gen       uint64
	sessionID string
	userID    string
}

type readyTimeoutEvent struct{ gen uint64 }

type dropEvent struct {
	gen uint64
	op  int
}

type closedEvent struct {
	gen uint64
	err error
}

type errorEvent struct{ err error }
