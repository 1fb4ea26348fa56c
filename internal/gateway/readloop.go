package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// readLoop читает кадры, пока соединение живо, и переводит интересные нам
// опкоды в события актора. Каждое websocket-сообщение — целый payload.
func (s *Session) readLoop(c *conn) {
	var rerr error
	defer func() {
		s.post(closedEvent{gen: c.gen, err: rerr})
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			rerr = err
			return
		}

		var p inbound
		if err := json.Unmarshal(data, &p); err != nil {
			s.post(errorEvent{err: fmt.Errorf("decode payload: %w", err)})
			continue
		}

		switch p.Op {
		case OpHello:
			var h helloData
			if err := json.Unmarshal(p.D, &h); err != nil || h.HeartbeatInterval <= 0 {
				s.post(errorEvent{err: fmt.Errorf("bad hello: %s", string(p.D))})
				continue
			}
			s.post(helloEvent{gen: c.gen, interval: time.Duration(h.HeartbeatInterval) * time.Millisecond})

		case OpDispatch:
			if p.T != "READY" {
				continue
			}
			var r readyData
			_ = json.Unmarshal(p.D, &r)
			s.post(readyEvent{gen: c.gen, sessionID: r.SessionID, userID: r.User.ID})

		case OpHeartbeat:
			// сервер просит пульс немедленно
			if err := c.writeJSON(HeartbeatPayload()); err != nil {
				rerr = err
				return
			}

		case OpReconnect, OpInvalidSession:
			s.post(dropEvent{gen: c.gen, op: p.Op})

		default:
			// остальное нам не нужно
		}
	}
}
