// Package supervisor запускает именованные фоновые циклы, каждый в своей
// горутине и со своим context. Одновременно живёт не больше одного цикла с
// данным именем: повторный Start возвращает ErrAlreadyRunning.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EgorLis/presencebot/internal/logging"
)

var supLog = logging.ForComponent(logging.CompSupervisor)

var (
	ErrAlreadyRunning = errors.New("loop already running")
	ErrStopped        = errors.New("supervisor stopped")
)

// Body — тело цикла; должно вернуться вскоре после отмены ctx.
type Body func(ctx context.Context) error

type handle struct {
	name    string
	runID   string
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

type Supervisor struct {
	parent context.Context

	mu    sync.Mutex
	loops map[string]*handle
	wg    sync.WaitGroup
}

func New(parent context.Context) *Supervisor {
	return &Supervisor{parent: parent, loops: make(map[string]*handle)}
}

// Start запускает body под именем name.
func (s *Supervisor) Start(name string, body Body) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.parent.Err() != nil {
		return ErrStopped
	}
	if _, ok := s.loops[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}

	ctx, cancel := context.WithCancel(s.parent)
	h := &handle{
		name:    name,
		runID:   uuid.New().String(),
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	s.loops[name] = h

	supLog.Info("loop_started", "loop", name, "run_id", h.runID)
	s.wg.Add(1)
	go s.run(ctx, h, body)
	return nil
}

func (s *Supervisor) run(ctx context.Context, h *handle, body Body) {
	defer s.wg.Done()
	defer close(h.done)
	defer h.cancel()

	err := body(ctx)

	s.mu.Lock()
	if s.loops[h.name] == h {
		delete(s.loops, h.name)
	}
	s.mu.Unlock()

	l := supLog.With("loop", h.name, "run_id", h.runID, "ran", time.Since(h.started).Round(time.Millisecond))
	if err != nil && !errors.Is(err, context.Canceled) {
		l.Error("loop_failed", "error", err)
		return
	}
	l.Info("loop_stopped")
}

// Stop отменяет цикл и ждёт его завершения; false — такого цикла нет.
func (s *Supervisor) Stop(name string) bool {
	s.mu.Lock()
	h, ok := s.loops[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	<-h.done
	return true
}

// Running — запущен ли цикл.
func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[name]
	return ok
}

// Names — имена запущенных циклов по алфавиту.
func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.loops))
	for n := range s.loops {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// StopAll отменяет все циклы и ждёт их.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	for _, h := range s.loops {
		h.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait ждёт завершения всех циклов.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
