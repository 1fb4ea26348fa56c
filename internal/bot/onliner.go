package bot

import (
	"context"
	"time"
)

// onlinerLoop раз в onlinerInterval проверяет, что сессия шлюза жива, и
// поднимает её, если нет.
func (b *Bot) onlinerLoop(ctx context.Context) error {
	t := time.NewTicker(b.onlinerInterval)
	defer t.Stop()
	for {
		if err := b.gw.EnsureConnected(ctx); err != nil && ctx.Err() == nil {
			botLog.Warn("onliner_connect_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
