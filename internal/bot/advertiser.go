package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EgorLis/presencebot/internal/config"
)

// advertiserLoop: проход по каналам, после каждой отправки пауза
// channelSpacing (от конца отправки, а не от начала), затем пауза delay
// секунд, и так до отмены. Каналы и текст перечитываются из конфига перед
// каждым проходом.
func (b *Bot) advertiserLoop(ctx context.Context) error {
	start := time.Now()

	for {
		cfg := b.cfg.Snapshot()
		for _, ch := range cfg.Channels {
			ch = strings.TrimSpace(ch)
			if ch == "" {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			b.advertise(ctx, cfg, ch, start)
			if !sleep(ctx, b.channelSpacing) {
				return nil
			}
		}

		if !sleep(ctx, b.sweepDelay(cfg)) {
			return nil
		}
	}
}

func (b *Bot) advertise(ctx context.Context, cfg config.Config, channelID string, start time.Time) {
	if err := b.api.PostMessage(ctx, channelID, cfg.Message); err != nil {
		if ctx.Err() == nil {
			botLog.Warn("advertise_failed", "channel", channelID, "error", err)
		}
		return
	}
	botLog.Info("advertised", "channel", channelID)

	if cfg.WebhookEnabled() {
		note := fmt.Sprintf("%s Sent message to channel <#%s>", elapsedStamp(time.Since(start)), channelID)
		if err := b.api.PostWebhook(ctx, cfg.Webhook, cfg.WebhookPing, note); err != nil && ctx.Err() == nil {
			botLog.Warn("webhook_failed", "error", err)
		}
	}
}

func (b *Bot) sweepDelay(cfg config.Config) time.Duration {
	n, err := cfg.DelaySeconds()
	if err != nil {
		// руками испорченный конфиг — берём дефолт
		n, _ = config.Defaults().DelaySeconds()
		botLog.Warn("bad_delay", "delay", cfg.Delay, "fallback", n)
	}
	return time.Duration(n) * b.delayUnit
}

// elapsedStamp — "[01:02:03s]".
func elapsedStamp(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("[%02d:%02d:%02ds]", h, m, s)
}
