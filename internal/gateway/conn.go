package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ========================= low-level =========================

// conn — одно websocket-соединение. gen отличает его от предыдущих, чтобы
// запоздавшие события старого соединения не трогали новое.
type conn struct {
	ws  *websocket.Conn
	gen uint64

	wmu          sync.Mutex // сериализует запись в websocket
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func (s *Session) dial(ctx context.Context, gen uint64) (*conn, error) {
	ws, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(16 << 20)
	return &conn{ws: ws, gen: gen, writeTimeout: s.opts.WriteTimeout}, nil
}

// writeJSON — запись строго через один мьютекс + write-deadline.
func (c *conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// close безопасно закрывает соединение; повторный вызов ничего не делает.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		c.wmu.Unlock()
		_ = c.ws.Close()
	})
}

// heartbeat шлёт {"op":1,"d":null} сразу и затем каждые interval, пока
// отправка не упадёт или не отменят ctx.
func (c *conn) heartbeat(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := c.writeJSON(HeartbeatPayload()); err != nil {
			gwLog.Debug("heartbeat_stopped", "gen", c.gen, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
