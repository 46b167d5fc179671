package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSchedule_IsDue(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Second), now.Add(time.Second)

	tests := []struct {
		name  string
		sched Schedule
		want  bool
	}{
		{"past", Schedule{Enabled: true, NextDueAt: &past}, true},
		{"exactly now", Schedule{Enabled: true, NextDueAt: &now}, true},
		{"future", Schedule{Enabled: true, NextDueAt: &future}, false},
		{"disabled", Schedule{NextDueAt: &past}, false},
		{"not initialized", Schedule{Enabled: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sched.IsDue(now); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSchedule_Kind(t *testing.T) {
	both := Schedule{CronExpr: "* * * * *", IntervalSec: 5}
	if !both.IsCron() || both.IsInterval() {
		t.Error("cron must win over interval")
	}
	if none := (Schedule{}); none.IsCron() || none.IsInterval() {
		t.Error("empty schedule has no trigger")
	}
}

func TestSchedule_RecordRun(t *testing.T) {
	var s Schedule
	id := uuid.New()
	at := time.Unix(100, 0)
	next := time.Unix(160, 0)

	s.RecordRun(id, at, next)

	if *s.LastRunID != id || !s.LastRunAt.Equal(at) || !s.NextDueAt.Equal(next) {
		t.Errorf("unexpected state: %+v", s)
	}
}
