// Package presence выставляет статус аккаунта через сессию шлюза.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/EgorLis/presencebot/internal/config"
	"github.com/EgorLis/presencebot/internal/gateway"
	"github.com/EgorLis/presencebot/internal/logging"
)

var presLog = logging.ForComponent(logging.CompPresence)

// Source — откуда берём status и customStatus.
type Source interface {
	Snapshot() config.Config
}

// Session — то, что нужно от сессии шлюза.
type Session interface {
	EnsureConnected(ctx context.Context) error
	Send(ctx context.Context, p gateway.Payload) error
}

type Updater struct {
	src  Source
	sess Session

	// SettleDelay — пауза перед повторной попыткой
	SettleDelay time.Duration
}

func New(src Source, sess Session) *Updater {
	return &Updater{src: src, sess: sess, SettleDelay: time.Second}
}

// UpdateStatus шлёт op 3 с текущими настройками. Если отправка не прошла
// (в том числе когда соединения нет), ждёт SettleDelay, поднимает
// соединение и пробует ещё ровно один раз.
func (u *Updater) UpdateStatus(ctx context.Context) error {
	cfg := u.src.Snapshot()
	p := gateway.PresenceUpdatePayload(cfg.Status, cfg.CustomStatus)

	err := u.sess.Send(ctx, p)
	if err == nil {
		presLog.Info("presence_updated", "status", cfg.Status)
		return nil
	}
	presLog.Info("presence_retry", "status", cfg.Status, "error", err)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(u.SettleDelay):
	}

	if err := u.sess.EnsureConnected(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}
	if err := u.sess.Send(ctx, p); err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	presLog.Info("presence_updated", "status", cfg.Status, "retried", true)
	return nil
}
