package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONFile(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	Logger().Info("hello", "key", "value")

	data, err := os.ReadFile(filepath.Join(dir, "presencebot.log"))
	require.NoError(t, err)

	sc := bufio.NewScanner(bytes.NewReader(data))
	require.True(t, sc.Scan())
	var rec map[string]any
	require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "value", rec["key"])
}

func TestInitWithoutDirDiscards(t *testing.T) {
	Shutdown()
	Init(Config{})
	defer Shutdown()

	// не должно паниковать и ничего не создаёт
	Logger().Info("nowhere")
	ForComponent(CompBot).Warn("nowhere either")
}

func TestForComponentUsesLateHandler(t *testing.T) {
	Shutdown()
	l := ForComponent(CompGateway) // создан до подмены хендлера

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer Shutdown()

	l.With("gen", 3).Debug("dial")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "gateway", rec["component"])
	assert.Equal(t, "dial", rec["msg"])
	assert.EqualValues(t, 3, rec["gen"])
}

func TestForComponentNestsGroups(t *testing.T) {
	Shutdown()
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer Shutdown()

	ForComponent(CompREST).
		With("top", 1).
		WithGroup("req").
		With("method", "GET").
		WithGroup("resp").
		Info("done", "status", 200)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "rest", rec["component"])
	assert.EqualValues(t, 1, rec["top"])

	req, ok := rec["req"].(map[string]any)
	require.True(t, ok, "req group: %v", rec)
	assert.Equal(t, "GET", req["method"])
	resp, ok := req["resp"].(map[string]any)
	require.True(t, ok, "resp nested in req: %v", req)
	assert.EqualValues(t, 200, resp["status"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
