package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события движка.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventRunCompleted    EventType = "run.completed"
	EventRunAborted      EventType = "run.aborted"
	EventRunCancelled    EventType = "run.cancelled"
	EventStepStarted     EventType = "step.started"
	EventStepSucceeded   EventType = "step.succeeded"
	EventStepFailed      EventType = "step.failed"
	EventStepSkipped     EventType = "step.skipped"
	EventStepCompensated EventType = "step.compensated"
)

// Event — структурированное событие выполнения.
// Отправляется наблюдателям (логи, метрики, очередь событий).
type Event struct {
	Type      EventType     `json:"type"`
	RunID     uuid.UUID     `json:"run_id"`
	Recipe    string        `json:"recipe"`
	Step      string        `json:"step,omitempty"`
	Module    string        `json:"module,omitempty"`
	Status    string        `json:"status,omitempty"`
	Error     *ErrorDetail  `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// IsRunEvent возвращает true для событий уровня run.
func (e Event) IsRunEvent() bool {
	switch e.Type {
	case EventRunStarted, EventRunCompleted, EventRunAborted, EventRunCancelled:
		return true
	default:
		return false
	}
}
