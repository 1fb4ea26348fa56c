package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/EgorLis/presencebot/internal/logging"
)

var restLog = logging.ForComponent(logging.CompREST)

// DefaultBaseURL — REST API платформы.
const DefaultBaseURL = "https://discord.com/api/v10"

// ChannelTypeDM — тип канала личных сообщений.
const ChannelTypeDM = 1

var ErrUnauthorized = errors.New("token rejected")

// StatusError — ответ API с не-2xx кодом.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// Tag — "name#1234", как показывает клиент.
func (u User) Tag() string {
	return u.Username + "#" + u.Discriminator
}

type Channel struct {
	ID         string `json:"id"`
	Type       int    `json:"type"`
	Recipients []User `json:"recipients,omitempty"`
}

type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Author    User   `json:"author"`
	Content   string `json:"content"`
}

type Client struct {
	http    *http.Client
	baseURL string

	mu    sync.RWMutex
	token string
	me    *User

	meSf singleflight.Group
}

// NewClient создаёт клиента; baseURL пустой — DefaultBaseURL.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// SetToken меняет токен и сбрасывает закэшированного пользователя.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.me = nil
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do выполняет запрос к API и, если out != nil, декодирует ответ.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.doURL(ctx, method, c.baseURL+path, path, true, body, out)
}

func (c *Client) doURL(ctx context.Context, method, url, logPath string, auth bool, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if auth {
		req.Header.Set("Authorization", c.currentToken())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		restLog.Warn("request_failed", "method", method, "path", logPath, "error", err)
		return err
	}
	defer resp.Body.Close()
	restLog.Debug("request", "method", method, "path", logPath, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, logPath, ErrUnauthorized)
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Path: logPath, Code: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", logPath, err)
	}
	return nil
}
