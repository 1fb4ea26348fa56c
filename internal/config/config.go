// Package config — хранилище настроек аккаунта (config.json).
// Файл плоский, ключи фиксированы; после каждой записи файл сохраняется.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"

	"github.com/EgorLis/presencebot/internal/logging"
)

var cfgLog = logging.ForComponent(logging.CompConfig)

var (
	ErrInvalidDelay  = errors.New("delay must be a positive integer (seconds)")
	ErrInvalidStatus = errors.New("status must be one of online, idle, dnd, invisible")
)

// Statuses — допустимые значения status.
var Statuses = []string{"online", "idle", "dnd", "invisible"}

type Config struct {
	Token        string   `json:"token"`
	Message      string   `json:"message"`
	DMResponse   string   `json:"dmResponse"`
	Delay        string   `json:"delay"` // секунды, строкой
	Channels     []string `json:"channels"`
	Status       string   `json:"status"`
	Webhook      string   `json:"webhook"`
	WebhookPing  string   `json:"webhookPing"`
	CustomStatus string   `json:"customStatus"`
	// хранится только ради совместимости формата файла, нигде не применяется
	RepeatBypass string `json:"repeatBypass"`
}

// Defaults — значения для нового файла.
func Defaults() Config {
	return Config{
		Delay:        "10",
		Channels:     []string{},
		Status:       "online",
		RepeatBypass: "n",
	}
}

// DelaySeconds разбирает Delay.
func (c Config) DelaySeconds() (int, error) {
	return ParseDelay(c.Delay)
}

// ParseDelay проверяет, что s — положительное целое.
func ParseDelay(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, s)
	}
	return n, nil
}

// ParseStatus нормализует и проверяет статус.
func ParseStatus(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !slices.Contains(Statuses, s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return s, nil
}

// WebhookEnabled — задан ли URL вебхука.
func (c Config) WebhookEnabled() bool {
	return strings.TrimSpace(c.Webhook) != ""
}

func (c Config) clone() Config {
	out := c
	out.Channels = append([]string{}, c.Channels...)
	return out
}

// Store — потокобезопасное хранилище поверх JSON-файла.
type Store struct {
	mu   sync.Mutex
	path string
	data Config
}

func NewStore(path string) *Store {
	return &Store{path: path, data: Defaults()}
}

// Path — путь к файлу.
func (s *Store) Path() string { return s.path }

// Load читает файл. Нет файла — создаём с дефолтами. Битый файл — дефолты
// только в памяти, файл не трогаем.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = Defaults()
			cfgLog.Info("config_created", "path", s.path)
			return s.saveLocked()
		}
		return fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(jsonc.ToJSON(b), &cfg); err != nil {
		cfgLog.Warn("config_malformed", "path", s.path, "error", err)
		s.data = Defaults()
		return nil
	}
	if cfg.Channels == nil {
		cfg.Channels = []string{}
	}
	s.data = cfg
	return nil
}

// Snapshot возвращает копию текущих настроек.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

// Update меняет настройки под мьютексом и сразу сохраняет.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
	return s.saveLocked()
}

// Save сохраняет текущее состояние.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.data.Channels == nil {
		s.data.Channels = []string{}
	}
	b, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// AddChannel добавляет канал; false — уже был.
func (s *Store) AddChannel(id string) (bool, error) {
	added := false
	err := s.Update(func(c *Config) {
		if !slices.Contains(c.Channels, id) {
			c.Channels = append(c.Channels, id)
			added = true
		}
	})
	return added, err
}

// RemoveChannel удаляет канал; false — не нашли.
func (s *Store) RemoveChannel(id string) (bool, error) {
	removed := false
	err := s.Update(func(c *Config) {
		if i := slices.Index(c.Channels, id); i >= 0 {
			c.Channels = slices.Delete(c.Channels, i, i+1)
			removed = true
		}
	})
	return removed, err
}

// SetDelay проверяет и сохраняет задержку.
func (s *Store) SetDelay(v string) error {
	if _, err := ParseDelay(v); err != nil {
		return err
	}
	return s.Update(func(c *Config) { c.Delay = strings.TrimSpace(v) })
}

// SetStatus проверяет и сохраняет статус; changed — отличается ли от прежнего.
func (s *Store) SetStatus(v string) (changed bool, err error) {
	st, err := ParseStatus(v)
	if err != nil {
		return false, err
	}
	err = s.Update(func(c *Config) {
		changed = c.Status != st
		c.Status = st
	})
	return changed, err
}
