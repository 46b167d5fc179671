package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/mq"
	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/telemetry"
)

// runNamespace — пространство имён для детерминированных run ID.
// Один schedule и одно время запуска всегда дают один и тот же ID,
// поэтому повтор после сбоя не выполнит рецепт дважды.
var runNamespace = uuid.MustParse("6f1c2a8e-3b7d-4c55-9e21-5a0d4f8b7c13")

// StateStore хранит состояние расписаний (repo.ScheduleRepo).
type StateStore interface {
	LoadState(ctx context.Context, schedule *domain.Schedule) error
	SaveState(ctx context.Context, schedule *domain.Schedule) error
}

// Scheduler — планировщик, запускающий рецепты по расписанию.
type Scheduler struct {
	mu         sync.Mutex
	schedules  []*domain.Schedule
	recipesDir string
	submitter  Submitter
	state      StateStore
	logger     *slog.Logger
	now        func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	// Schedules — расписания из конфигурации.
	Schedules []domain.Schedule

	// RecipesDir — каталог, относительно которого ищутся файлы рецептов.
	RecipesDir string

	// Submitter — куда отправлять run (обязательно).
	Submitter Submitter

	// State — хранилище next_due_at/last_run. nil — только в памяти.
	State StateStore

	Logger *slog.Logger

	// Now — источник времени (для тестов). По умолчанию time.Now.
	Now func() time.Time
}

// New создаёт новый Scheduler и проверяет расписания.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Submitter == nil {
		return nil, ErrNoSubmitter
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	schedules := make([]*domain.Schedule, 0, len(cfg.Schedules))
	seen := make(map[string]bool, len(cfg.Schedules))
	for i := range cfg.Schedules {
		sched := cfg.Schedules[i]
		if err := ValidateSchedule(&sched); err != nil {
			return nil, err
		}
		if seen[sched.Name] {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidSchedule, sched.Name)
		}
		seen[sched.Name] = true
		schedules = append(schedules, &sched)
	}

	return &Scheduler{
		schedules:  schedules,
		recipesDir: cfg.RecipesDir,
		submitter:  cfg.Submitter,
		state:      cfg.State,
		logger:     logger,
		now:        now,
	}, nil
}

// Init загружает сохранённое состояние расписаний.
// Расписаниям без состояния вычисляется первое время запуска.
func (s *Scheduler) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, sched := range s.schedules {
		if s.state != nil {
			err := s.state.LoadState(ctx, sched)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("load state %s: %w", sched.Name, err)
			}
		}
		if sched.NextDueAt != nil {
			continue
		}

		next, err := CalculateNextDue(sched, now)
		if err != nil {
			return err
		}
		sched.NextDueAt = &next
		if err := s.saveState(ctx, sched); err != nil {
			return err
		}

		s.logger.Info("schedule initialized",
			"schedule", sched.Name,
			"next_due_at", next,
		)
	}
	return nil
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled, next_due_at <= now)
// 2. Для каждого отправляет run через Submitter
// 3. Обновляет next_due_at
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var due []*domain.Schedule
	for _, sched := range s.schedules {
		if sched.IsDue(now) {
			due = append(due, sched)
		}
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(due))

	var submitted, failed int
	for _, sched := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			failed++
			telemetry.WithSchedule(s.logger, sched.Name).Error("failed to process schedule", "error", err)
			continue
		}
		if ok {
			submitted++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(due),
		"submitted", submitted,
		"failed", failed,
	)
	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если run был отправлен.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	logger := telemetry.WithSchedule(s.logger, sched.Name)

	// 1. ID детерминирован: "{name}_{next_due_at_unix}"
	runID := ScheduledRunID(sched)

	// 2. Рецепт читается на каждый запуск, правки файла подхватываются без перезапуска
	raw, readErr := os.ReadFile(s.recipePath(sched))
	submitted := false
	switch {
	case errors.Is(readErr, os.ErrNotExist):
		// Не повторяем каждый тик, просто сдвигаем расписание
		logger.Warn("recipe file not found, skipping", "recipe", sched.RecipePath)
	case readErr != nil:
		return false, fmt.Errorf("read recipe %s: %w", sched.RecipePath, readErr)
	default:
		req := mq.RunRequestedPayload{
			RunID:       runID,
			Recipe:      string(raw),
			ContextName: sched.ContextName,
			Source:      "scheduler:" + sched.Name,
		}
		// При ошибке next_due_at не сдвигается: следующий тик повторит
		// запрос с тем же ID.
		if err := s.submitter.Submit(ctx, req); err != nil {
			return false, err
		}
		submitted = true
		logger.Info("submitted run from schedule", "run_id", runID, "recipe", sched.RecipePath)
	}

	// 3. Следующее время запуска
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		return submitted, err
	}

	// 4. Обновляем состояние
	if submitted {
		sched.RecordRun(runID, now, nextDue)
	} else {
		sched.NextDueAt = &nextDue
	}
	if err := s.saveState(ctx, sched); err != nil {
		return submitted, err
	}
	return submitted, nil
}

// Run вызывает Tick с интервалом interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Schedules возвращает копии расписаний с текущим состоянием.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, len(s.schedules))
	for i, sched := range s.schedules {
		out[i] = *sched
	}
	return out
}

// ScheduledRunID возвращает ID run для текущего next_due_at расписания.
func ScheduledRunID(sched *domain.Schedule) uuid.UUID {
	var due int64
	if sched.NextDueAt != nil {
		due = sched.NextDueAt.Unix()
	}
	return uuid.NewSHA1(runNamespace, []byte(fmt.Sprintf("%s_%d", sched.Name, due)))
}

func (s *Scheduler) recipePath(sched *domain.Schedule) string {
	if filepath.IsAbs(sched.RecipePath) || s.recipesDir == "" {
		return sched.RecipePath
	}
	return filepath.Join(s.recipesDir, sched.RecipePath)
}

func (s *Scheduler) saveState(ctx context.Context, sched *domain.Schedule) error {
	if s.state == nil {
		return nil
	}
	if err := s.state.SaveState(ctx, sched); err != nil {
		return fmt.Errorf("save state %s: %w", sched.Name, err)
	}
	return nil
}
