package bot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (b *Bot) dmResponderLoop(ctx context.Context) error {
	t := time.NewTicker(b.dmInterval)
	defer t.Stop()
	for {
		b.respondToDMs(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// respondToDMs отвечает в каждый личный канал, где последнее сообщение
// написал не этот аккаунт. Возвращает число отправленных ответов.
func (b *Bot) respondToDMs(ctx context.Context) int {
	cfg := b.cfg.Snapshot()
	if strings.TrimSpace(cfg.DMResponse) == "" {
		botLog.Debug("dm_response_empty")
		return 0
	}

	me, err := b.api.CurrentUser(ctx)
	if err != nil {
		if ctx.Err() == nil {
			botLog.Warn("current_user_failed", "error", err)
		}
		return 0
	}
	chs, err := b.api.DMChannels(ctx)
	if err != nil {
		if ctx.Err() == nil {
			botLog.Warn("dm_channels_failed", "error", err)
		}
		return 0
	}

	replied := 0
	for _, ch := range chs {
		if ctx.Err() != nil {
			return replied
		}
		msgs, err := b.api.ChannelMessages(ctx, ch.ID, 1)
		if err != nil {
			botLog.Warn("dm_messages_failed", "channel", ch.ID, "error", err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		last := msgs[0]
		if last.Author.ID == me.ID {
			continue
		}

		if err := b.api.PostMessage(ctx, ch.ID, cfg.DMResponse); err != nil {
			botLog.Warn("dm_reply_failed", "channel", ch.ID, "error", err)
			continue
		}
		replied++
		botLog.Info("dm_replied", "channel", ch.ID, "to", last.Author.ID)

		if cfg.WebhookEnabled() {
			note := fmt.Sprintf("Auto DM Replied to %s (%s)", last.Author.Tag(), last.Author.ID)
			if err := b.api.PostWebhook(ctx, cfg.Webhook, cfg.WebhookPing, note); err != nil {
				botLog.Warn("webhook_failed", "error", err)
			}
		}
	}
	return replied
}
