package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EgorLis/presencebot/internal/config"
	"github.com/EgorLis/presencebot/internal/gateway"
	"github.com/EgorLis/presencebot/internal/logging"
	"github.com/EgorLis/presencebot/internal/presence"
	"github.com/EgorLis/presencebot/internal/rest"
	"github.com/EgorLis/presencebot/internal/supervisor"
)

var botLog = logging.ForComponent(logging.CompBot)

// имена фоновых циклов
const (
	LoopAdvertiser  = "advertiser"
	LoopDMResponder = "dm-responder"
	LoopOnliner     = "onliner"
)

// API — вызовы REST, которые нужны циклам.
type API interface {
	CurrentUser(ctx context.Context) (rest.User, error)
	DMChannels(ctx context.Context) ([]rest.Channel, error)
	ChannelMessages(ctx context.Context, channelID string, limit int) ([]rest.Message, error)
	PostMessage(ctx context.Context, channelID, content string) error
	PostWebhook(ctx context.Context, webhookURL, ping, content string) error
	DeleteChannel(ctx context.Context, channelID string) error
}

// Gateway — сессия шлюза.
type Gateway interface {
	EnsureConnected(ctx context.Context) error
	Send(ctx context.Context, p gateway.Payload) error
	State() gateway.State
}

type Bot struct {
	cfg      *config.Store
	api      API
	gw       Gateway
	presence *presence.Updater
	sup      *supervisor.Supervisor

	// тайминги; тесты их укорачивают
	channelSpacing  time.Duration
	delayUnit       time.Duration
	dmInterval      time.Duration
	onlinerInterval time.Duration
}

// New собирает бота. ctx — время жизни всех фоновых циклов.
func New(ctx context.Context, cfg *config.Store, api API, gw Gateway) *Bot {
	return &Bot{
		cfg:             cfg,
		api:             api,
		gw:              gw,
		presence:        presence.New(cfg, gw),
		sup:             supervisor.New(ctx),
		channelSpacing:  500 * time.Millisecond,
		delayUnit:       time.Second,
		dmInterval:      time.Second,
		onlinerInterval: time.Second,
	}
}

// Identity — identify для шлюза из текущего конфига.
func Identity(cfg *config.Store) func() gateway.Identity {
	return func() gateway.Identity {
		c := cfg.Snapshot()
		return gateway.Identity{Token: c.Token, Status: c.Status, CustomStatus: c.CustomStatus}
	}
}

// Config — хранилище настроек.
func (b *Bot) Config() *config.Store { return b.cfg }

// ========================= advertiser =========================

func (b *Bot) StartAdvertiser() error {
	return b.sup.Start(LoopAdvertiser, b.advertiserLoop)
}

func (b *Bot) StopAdvertiser() bool {
	return b.sup.Stop(LoopAdvertiser)
}

// ========================= auto DM =========================

// ToggleAutoDM включает автоответ, если он выключен, и наоборот.
// Возвращает новое состояние.
func (b *Bot) ToggleAutoDM() (bool, error) {
	if b.sup.Stop(LoopDMResponder) {
		return false, nil
	}
	if err := b.sup.Start(LoopDMResponder, b.dmResponderLoop); err != nil {
		return false, err
	}
	return true, nil
}

// ========================= onliner =========================

// StartOnliner запускает цикл, держащий сессию шлюза живой.
func (b *Bot) StartOnliner() error {
	return b.sup.Start(LoopOnliner, b.onlinerLoop)
}

// GatewayState — состояние сессии шлюза.
func (b *Bot) GatewayState() gateway.State {
	return b.gw.State()
}

// UpdatePresence выставляет статус из конфига.
func (b *Bot) UpdatePresence(ctx context.Context) error {
	return b.presence.UpdateStatus(ctx)
}

// ========================= misc =========================

// Running — запущен ли цикл name.
func (b *Bot) Running(name string) bool {
	return b.sup.Running(name)
}

// CloseDMs закрывает все личные каналы; возвращает, сколько закрыто.
func (b *Bot) CloseDMs(ctx context.Context) (int, error) {
	chs, err := b.api.DMChannels(ctx)
	if err != nil {
		return 0, fmt.Errorf("list DM channels: %w", err)
	}
	var errs []error
	closed := 0
	for _, ch := range chs {
		if err := b.api.DeleteChannel(ctx, ch.ID); err != nil {
			botLog.Warn("close_dm_failed", "channel", ch.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}

// Stop гасит все циклы и ждёт их.
func (b *Bot) Stop() {
	b.sup.StopAll()
}

// sleep ждёт d или отмену ctx; false — отменили.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
