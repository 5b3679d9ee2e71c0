package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Timer — именованная периодическая задача.
type Timer struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// TimerInfo — состояние таймера для наблюдения.
type TimerInfo struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	Active    bool      `json:"active"`
	Next      time.Time `json:"next,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type timerState struct {
	timer    Timer
	schedule cron.Schedule
	entryID  cron.EntryID
	disabled bool
	running  atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
	lastErr string
}

// Config — конфигурация Scheduler.
type Config struct {
	// Location — часовой пояс расписаний (default: UTC).
	Location *time.Location

	Logger *slog.Logger
}

// Scheduler — набор именованных таймеров.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[string]*timerState
	ctx     context.Context
	started bool

	cancelFunc context.CancelFunc
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:   cron.New(cron.WithParser(cronParser), cron.WithLocation(loc)),
		logger: logger.With("component", "scheduler"),
		timers: make(map[string]*timerState),
		ctx:    context.Background(),
	}
}

// Add регистрирует таймер. Если Scheduler уже запущен, таймер
// сразу становится активным.
func (s *Scheduler) Add(t Timer) error {
	schedule, err := ParseSpec(t.Spec)
	if err != nil {
		return fmt.Errorf("timer %s: %w", t.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrTimerExists, t.Name)
	}

	st := &timerState{timer: t, schedule: schedule}
	s.timers[t.Name] = st

	if s.started {
		s.activate(st)
	}
	return nil
}

// Start активирует все таймеры.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.ctx, s.cancelFunc = context.WithCancel(ctx)
	s.started = true

	for _, st := range s.timers {
		if !st.disabled {
			s.activate(st)
		}
	}
	s.cron.Start()

	s.logger.Info("scheduler started", "timers", len(s.timers))
}

// Stop останавливает таймеры и ждёт выполняющиеся запуски.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancelFunc
	s.mu.Unlock()

	// Stop ждёт завершения запущенных заданий.
	<-s.cron.Stop().Done()
	cancel()

	s.logger.Info("scheduler stopped")
}

// StartTimer активирует остановленный таймер.
func (s *Scheduler) StartTimer(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.timers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, name)
	}
	st.disabled = false
	if s.started {
		s.activate(st)
	}
	return nil
}

// StopTimer деактивирует таймер, не затрагивая остальные.
func (s *Scheduler) StopTimer(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.timers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, name)
	}
	if st.entryID != 0 {
		s.cron.Remove(st.entryID)
		st.entryID = 0
	}
	st.disabled = true

	s.logger.Info("timer stopped", "timer", name)
	return nil
}

// Trigger выполняет таймер немедленно и синхронно.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.timers[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, name)
	}
	return s.run(ctx, st)
}

// Timers возвращает состояние таймеров, отсортированное по имени.
func (s *Scheduler) Timers() []TimerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TimerInfo, 0, len(s.timers))
	for _, st := range s.timers {
		info := TimerInfo{
			Name:   st.timer.Name,
			Spec:   st.timer.Spec,
			Active: st.entryID != 0,
		}
		if st.entryID != 0 {
			info.Next = s.cron.Entry(st.entryID).Next
		}

		st.mu.Lock()
		info.LastRun = st.lastRun
		info.LastError = st.lastErr
		st.mu.Unlock()

		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// activate добавляет таймер в cron. Вызывается под s.mu.
func (s *Scheduler) activate(st *timerState) {
	if st.entryID != 0 {
		return
	}

	ctx := s.ctx
	st.entryID = s.cron.Schedule(st.schedule, cron.FuncJob(func() {
		if err := s.run(ctx, st); err != nil && !errors.Is(err, ErrTimerBusy) {
			s.logger.Error("timer failed", "timer", st.timer.Name, "error", err)
		}
	}))
	s.logger.Info("timer started", "timer", st.timer.Name, "spec", st.timer.Spec)
}

// run выполняет таймер, пропуская запуск, если предыдущий не завершён.
func (s *Scheduler) run(ctx context.Context, st *timerState) error {
	if !st.running.CompareAndSwap(false, true) {
		s.logger.Warn("timer still running, skipping", "timer", st.timer.Name)
		return ErrTimerBusy
	}
	defer st.running.Store(false)

	start := time.Now()
	err := st.timer.Run(ctx)

	st.mu.Lock()
	st.lastRun = start
	st.lastErr = ""
	if err != nil {
		st.lastErr = err.Error()
	}
	st.mu.Unlock()

	s.logger.Debug("timer completed", "timer", st.timer.Name, "duration", time.Since(start))
	return err
}
