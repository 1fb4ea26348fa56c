// Package logging — структурное логирование (slog) с ротацией файлов через
// lumberjack. Логи пишутся в файл, а не в терминал: консоль занята меню.
package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// компоненты для поля "component"
const (
	CompGateway    = "gateway"
	CompREST       = "rest"
	CompConfig     = "config"
	CompSupervisor = "supervisor"
	CompPresence   = "presence"
	CompBot        = "bot"
	CompCLI        = "cli"
)

// Config — настройки логирования.
type Config struct {
	// LogDir — каталог для presencebot.log
	LogDir string
	// Level: "debug", "info", "warn", "error"
	Level string
	// Format: "json" (по умолчанию) или "text"
	Format string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Debug без LogDir пишет в текущий каталог
	Debug bool
}

var (
	globalLogger *slog.Logger
	globalMu     sync.RWMutex
	rotator      *lumberjack.Logger
)

// Init настраивает глобальный логгер. Без Debug и LogDir всё отбрасывается.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 7
	}

	if !cfg.Debug && cfg.LogDir == "" {
		globalLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		return
	}
	dir := cfg.LogDir
	if dir == "" {
		dir = "."
	}

	rotator = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "presencebot.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(rotator, opts)
	} else {
		h = slog.NewJSONHandler(rotator, opts)
	}
	globalLogger = slog.New(h)
}

// ParseLevel переводит строку в slog.Level, по умолчанию info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Logger возвращает глобальный логгер; до Init — "немой".
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return globalLogger
}

// SetLogger подменяет глобальный логгер (нужно тестам).
func SetLogger(l *slog.Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ForComponent возвращает логгер с полем component. Хендлер резолвится в
// момент записи, поэтому package-level переменные, созданные до Init,
// тоже пишут в настоящий вывод.
func ForComponent(name string) *slog.Logger {
	return slog.New(&dynamicHandler{component: name})
}

// handlerOp — один вызов WithAttrs или WithGroup; порядок важен: атрибуты,
// добавленные после группы, попадают внутрь неё.
type handlerOp struct {
	attrs []slog.Attr
	group string
}

type dynamicHandler struct {
	component string
	ops       []handlerOp
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	for _, op := range h.ops {
		if op.group != "" {
			handler = handler.WithGroup(op.group)
		} else {
			handler = handler.WithAttrs(op.attrs)
		}
	}
	return handler.Handle(ctx, r)
}

func (h *dynamicHandler) with(op handlerOp) *dynamicHandler {
	ops := make([]handlerOp, 0, len(h.ops)+1)
	ops = append(ops, h.ops...)
	return &dynamicHandler{component: h.component, ops: append(ops, op)}
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(handlerOp{attrs: attrs})
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(handlerOp{group: name})
}

// Shutdown закрывает файл ротации.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
	globalLogger = nil
}
