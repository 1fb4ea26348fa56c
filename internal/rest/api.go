package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ========================= пользователь =========================

// FetchCurrentUser всегда ходит в API (GET /users/@me).
func (c *Client) FetchCurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/users/@me", nil, &u)
	return u, err
}

// CurrentUser — закэшированный /users/@me; параллельные промахи кэша
// схлопываются в один запрос.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	c.mu.RLock()
	if c.me != nil {
		u := *c.me
		c.mu.RUnlock()
		return u, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.meSf.Do("me", func() (any, error) {
		// повторная проверка: кэш мог заполниться, пока ждали
		c.mu.RLock()
		if c.me != nil {
			u := *c.me
			c.mu.RUnlock()
			return u, nil
		}
		c.mu.RUnlock()

		u, err := c.FetchCurrentUser(ctx)
		if err != nil {
			return User{}, err
		}
		c.mu.Lock()
		c.me = &u
		c.mu.Unlock()
		return u, nil
	})
	if err != nil {
		return User{}, err
	}
	return v.(User), nil
}

// ValidateToken — true, если /users/@me ответил 200; false, nil — токен
// отвергнут (401/403). Остальные ответы (429, 5xx, сеть) возвращаются ошибкой:
// токен по ним не проверить.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	_, err := c.FetchCurrentUser(ctx)
	if err == nil {
		return true, nil
	}
	var se *StatusError
	if errors.Is(err, ErrUnauthorized) || (errors.As(err, &se) && se.Code == http.StatusForbidden) {
		return false, nil
	}
	return false, fmt.Errorf("validate token: %w", err)
}

// ========================= каналы =========================

// DMChannels — только личные каналы (type 1).
func (c *Client) DMChannels(ctx context.Context) ([]Channel, error) {
	var all []Channel
	if err := c.do(ctx, http.MethodGet, "/users/@me/channels", nil, &all); err != nil {
		return nil, err
	}
	dms := all[:0]
	for _, ch := range all {
		if ch.Type == ChannelTypeDM {
			dms = append(dms, ch)
		}
	}
	return dms, nil
}

// ChannelMessages — последние сообщения канала, новые первыми.
func (c *Client) ChannelMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var msgs []Message
	err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	return msgs, err
}

// PostMessage отправляет текст в канал.
func (c *Client) PostMessage(ctx context.Context, channelID, content string) error {
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	return c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, nil)
}

// DeleteChannel закрывает канал (для ЛС — просто убирает его из списка).
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID), nil, nil)
}

// ========================= вебхук =========================

// PostWebhook шлёт сообщение в вебхук; ping, если задан, ставится в начало.
// Вебхуку токен не нужен.
func (c *Client) PostWebhook(ctx context.Context, webhookURL, ping, content string) error {
	if p := strings.TrimSpace(ping); p != "" {
		content = p + " " + content
	}
	return c.doURL(ctx, http.MethodPost, webhookURL, "webhook", false, map[string]string{"content": content}, nil)
}
