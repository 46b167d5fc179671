package orchestrator

import (
	"context"
	"log/slog"

	"github.com/shaiso/Recipes/internal/domain"
)

// Observer получает события выполнения.
//
// Observe вызывается синхронно из горутины run, поэтому не должен
// блокироваться надолго. Паника наблюдателя не прерывает run.
type Observer interface {
	Observe(ctx context.Context, ev domain.Event)
}

// ObserverFunc — функция, реализующая Observer.
type ObserverFunc func(ctx context.Context, ev domain.Event)

// Observe вызывает функцию.
func (f ObserverFunc) Observe(ctx context.Context, ev domain.Event) {
	f(ctx, ev)
}

// MultiObserver рассылает события нескольким наблюдателям по порядку.
type MultiObserver struct {
	observers []Observer
	logger    *slog.Logger
}

// NewMultiObserver создаёт MultiObserver. nil-наблюдатели пропускаются.
func NewMultiObserver(logger *slog.Logger, observers ...Observer) *MultiObserver {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MultiObserver{logger: logger}
	for _, o := range observers {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
	return m
}

// Observe передаёт событие всем наблюдателям.
func (m *MultiObserver) Observe(ctx context.Context, ev domain.Event) {
	for _, o := range m.observers {
		m.safeObserve(ctx, o, ev)
	}
}

// Len возвращает количество наблюдателей.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) safeObserve(ctx context.Context, o Observer, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("observer panicked",
				"event", ev.Type,
				"run_id", ev.RunID,
				"panic", r,
			)
		}
	}()
	o.Observe(ctx, ev)
}

// LogObserver пишет события в slog.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver создаёт LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Observe логирует событие.
func (l *LogObserver) Observe(ctx context.Context, ev domain.Event) {
	attrs := []any{
		"run_id", ev.RunID,
		"recipe", ev.Recipe,
	}
	if ev.Step != "" {
		attrs = append(attrs, "step", ev.Step, "module", ev.Module)
	}
	if ev.Status != "" {
		attrs = append(attrs, "status", ev.Status)
	}
	if ev.Duration > 0 {
		attrs = append(attrs, "duration", ev.Duration)
	}
	if ev.Error != nil {
		attrs = append(attrs, "error_kind", ev.Error.Kind, "error", ev.Error.Message)
	}

	switch ev.Type {
	case domain.EventStepFailed, domain.EventRunAborted:
		l.logger.WarnContext(ctx, string(ev.Type), attrs...)
	case domain.EventStepStarted:
		l.logger.DebugContext(ctx, string(ev.Type), attrs...)
	default:
		l.logger.InfoContext(ctx, string(ev.Type), attrs...)
	}
}
