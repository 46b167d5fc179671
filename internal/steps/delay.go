package steps

import (
	"context"
	"fmt"
	"time"
)

// ModuleDelay ждёт заданное время. Используется в рецептах для пауз между
// внешними вызовами и в тестах отмены.
const ModuleDelay = "delay"

// maxDelay ограничивает одну паузу, чтобы опечатка в рецепте не
// подвесила run на часы.
const maxDelay = time.Hour

// DelayStep приостанавливает run. Отмена ctx прерывает ожидание.
//
// Длительность задаётся одним из аргументов:
//
//	duration: "1m30s"   // строка time.ParseDuration
//	duration_sec: 10
//	duration_ms: 250
type DelayStep struct{}

// NewDelayStep создаёт DelayStep.
func NewDelayStep() *DelayStep { return &DelayStep{} }

// Module возвращает имя модуля.
func (s *DelayStep) Module() string { return ModuleDelay }

// Execute ждёт и возвращает фактическую паузу в duration_ms.
func (s *DelayStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	wait, err := delayDuration(req.Args)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	start := time.Now()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	case <-timer.C:
		return NewResponse(map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
		}), nil
	}
}

func delayDuration(args map[string]any) (time.Duration, error) {
	var d time.Duration
	switch {
	case GetArgString(args, "duration") != "":
		parsed, err := time.ParseDuration(GetArgString(args, "duration"))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, ModuleDelay, err)
		}
		d = parsed
	case GetArgInt(args, "duration_sec") > 0:
		d = time.Duration(GetArgInt(args, "duration_sec")) * time.Second
	case GetArgInt(args, "duration_ms") > 0:
		d = time.Duration(GetArgInt(args, "duration_ms")) * time.Millisecond
	default:
		return 0, fmt.Errorf("%w: %s: duration, duration_sec or duration_ms required",
			ErrInvalidArgs, ModuleDelay)
	}

	if d <= 0 || d > maxDelay {
		return 0, fmt.Errorf("%w: %s: duration %s out of range (0, %s]",
			ErrInvalidArgs, ModuleDelay, d, maxDelay)
	}
	return d, nil
}
