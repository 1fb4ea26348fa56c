package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path)
	require.NoError(t, s.Load())

	got := s.Snapshot()
	assert.Equal(t, Defaults(), got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, []any{}, m["channels"])
	for _, k := range []string{"token", "message", "dmResponse", "delay", "status", "webhook", "webhookPing", "customStatus", "repeatBypass"} {
		assert.Contains(t, m, k)
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path)
	require.NoError(t, s.Load())

	want := Config{
		Token:        "tok",
		Message:      "line1\nline2",
		DMResponse:   "busy",
		Delay:        "42",
		Channels:     []string{"1", "2"},
		Status:       "dnd",
		Webhook:      "https://example.invalid/hook",
		WebhookPing:  "<@&1>",
		CustomStatus: "afk",
		RepeatBypass: "n",
	}
	require.NoError(t, s.Update(func(c *Config) { *c = want }))

	s2 := NewStore(path)
	require.NoError(t, s2.Load())
	assert.Equal(t, want, s2.Snapshot())
}

func TestEmptyChannelsStayEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path)
	require.NoError(t, s.Load())
	require.NoError(t, s.Update(func(c *Config) { c.Channels = nil }))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"channels": []`)

	s2 := NewStore(path)
	require.NoError(t, s2.Load())
	assert.NotNil(t, s2.Snapshot().Channels)
	assert.Empty(t, s2.Snapshot().Channels)
}

func TestMalformedFallsBackWithoutOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	bad := []byte(`{"token": "abc", `)
	require.NoError(t, os.WriteFile(path, bad, 0o600))

	s := NewStore(path)
	require.NoError(t, s.Load())
	assert.Equal(t, Defaults(), s.Snapshot())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bad, raw)
}

func TestLoadToleratesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	src := `{
  // токен аккаунта
  "token": "abc",
  "channels": ["10", "20",],
}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	s := NewStore(path)
	require.NoError(t, s.Load())
	got := s.Snapshot()
	assert.Equal(t, "abc", got.Token)
	assert.Equal(t, []string{"10", "20"}, got.Channels)
	// отсутствующие ключи берутся из дефолтов
	assert.Equal(t, "10", got.Delay)
	assert.Equal(t, "online", got.Status)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, s.Load())
	_, err := s.AddChannel("1")
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Channels[0] = "mutated"
	assert.Equal(t, []string{"1"}, s.Snapshot().Channels)
}

func TestChannels(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, s.Load())

	added, err := s.AddChannel("1")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddChannel("1")
	require.NoError(t, err)
	assert.False(t, added)

	removed, err := s.RemoveChannel("2")
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = s.RemoveChannel("1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, s.Snapshot().Channels)
}

func TestSetDelay(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, s.Load())

	for _, bad := range []string{"", "abc", "0", "-3", "1.5"} {
		assert.ErrorIs(t, s.SetDelay(bad), ErrInvalidDelay, bad)
	}
	require.NoError(t, s.SetDelay(" 30 "))
	n, err := s.Snapshot().DelaySeconds()
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}

func TestSetStatus(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, s.Load())

	_, err := s.SetStatus("away")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	changed, err := s.SetStatus("IDLE")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "idle", s.Snapshot().Status)

	changed, err = s.SetStatus("idle")
	require.NoError(t, err)
	assert.False(t, changed)
}
