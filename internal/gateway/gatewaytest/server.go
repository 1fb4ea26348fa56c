// Package gatewaytest — поддельный шлюз для тестов: отдаёт hello, на
// identify отвечает READY и записывает всё, что прислал клиент.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame — кадр, полученный от клиента.
type Frame struct {
	Conn int
	Op   int
	D    json.RawMessage
	Raw  []byte
	At   time.Time
}

type Server struct {
	*httptest.Server
	// URL — ws:// адрес для клиента
	URL string

	// NoReady — не отвечать READY на identify
	NoReady atomic.Bool

	upgrader    websocket.Upgrader
	heartbeatMs atomic.Int32

	mu       sync.Mutex
	conns    []*peer
	frames   []Frame
	notify   chan struct{}
	connects atomic.Int32
}

type peer struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

func (p *peer) write(v string) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.ws.WriteMessage(websocket.TextMessage, []byte(v))
}

func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{notify: make(chan struct{}, 1)}
	s.heartbeatMs.Store(45000)
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + strings.TrimPrefix(s.Server.URL, "http")
	t.Cleanup(func() {
		s.DropAll()
		s.Server.Close()
	})
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	idx := int(s.connects.Add(1))
	pc := &peer{ws: ws}
	s.mu.Lock()
	s.conns = append(s.conns, pc)
	s.mu.Unlock()

	if err := pc.write(fmt.Sprintf(`{"op":10,"d":{"heartbeat_interval":%d}}`, s.heartbeatMs.Load())); err != nil {
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var p struct {
			Op int             `json:"op"`
			D  json.RawMessage `json:"d"`
		}
		_ = json.Unmarshal(data, &p)

		s.mu.Lock()
		s.frames = append(s.frames, Frame{Conn: idx, Op: p.Op, D: p.D, Raw: data, At: time.Now()})
		s.mu.Unlock()
		select {
		case s.notify <- struct{}{}:
		default:
		}

		if p.Op == 2 && !s.NoReady.Load() {
			_ = pc.write(`{"op":0,"s":1,"t":"READY","d":{"session_id":"sess-1","user":{"id":"42"}}}`)
		}
	}
}

// SetHeartbeatInterval — интервал (мс), который уйдёт в следующих hello.
func (s *Server) SetHeartbeatInterval(ms int) {
	s.heartbeatMs.Store(int32(ms))
}

// Connects — сколько раз клиент подключался.
func (s *Server) Connects() int {
	return int(s.connects.Load())
}

// Frames — полученные кадры с данным op (op < 0 — все).
func (s *Server) Frames(op int) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Frame
	for _, f := range s.frames {
		if op < 0 || f.Op == op {
			out = append(out, f)
		}
	}
	return out
}

// WaitFrames ждёт, пока придёт хотя бы n кадров с op.
func (s *Server) WaitFrames(t testing.TB, op, n int, timeout time.Duration) []Frame {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if fs := s.Frames(op); len(fs) >= n {
			return fs
		}
		select {
		case <-s.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("gatewaytest: want %d frames with op %d, got %d", n, op, len(s.Frames(op)))
			return nil
		}
	}
}

// Send пишет произвольный кадр во все открытые соединения.
func (s *Server) Send(raw string) {
	s.mu.Lock()
	conns := append([]*peer(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.write(raw)
	}
}

// DropAll рвёт все соединения со стороны сервера.
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}
