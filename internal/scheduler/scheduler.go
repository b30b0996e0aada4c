// Package scheduler runs stored cases when they come due and reports the
// results back to the chat that scheduled them.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/operator/internal/observability"
	"github.com/rahul/operator/internal/report"
	"github.com/rahul/operator/internal/runner"
	"github.com/rahul/operator/internal/store"
)

const DefaultInterval = 30 * time.Second

type Messenger interface {
	Send(chatID string, text string) error
}

type CaseRunner interface {
	RunCase(ctx context.Context, url, steps string, headless *bool) runner.CaseResult
}

type ScheduleStore interface {
	DueSchedules(ctx context.Context, now time.Time) ([]store.Schedule, error)
	MarkScheduleRun(ctx context.Context, id int64, at time.Time) error
	DeleteSchedule(ctx context.Context, id int64) error
}

type Scheduler struct {
	Runner CaseRunner
	Store  ScheduleStore
	// Gateways maps a gateway name to the messenger that reaches its chats.
	Gateways map[string]Messenger
	Interval time.Duration

	log *zap.Logger
	now func() time.Time
}

func New(r CaseRunner, st ScheduleStore, gateways map[string]Messenger) *Scheduler {
	return &Scheduler{
		Runner:   r,
		Store:    st,
		Gateways: gateways,
		Interval: DefaultInterval,
		log:      observability.GetLogger().Named("scheduler"),
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("Case scheduler started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.Heartbeat()
			s.Poll(ctx)
		}
	}
}

// Poll runs every due schedule once and returns how many ran.
func (s *Scheduler) Poll(ctx context.Context) int {
	due, err := s.Store.DueSchedules(ctx, s.now())
	if err != nil {
		s.log.Error("Error polling schedules", zap.Error(err))
		return 0
	}

	ran := 0
	for _, sc := range due {
		if ctx.Err() != nil {
			break
		}
		s.execute(ctx, sc)
		ran++
	}
	return ran
}

func (s *Scheduler) execute(ctx context.Context, sc store.Schedule) {
	log := s.log.With(zap.Int64("schedule_id", sc.ID), zap.String("chat_id", sc.ChatID))
	log.Info("Executing scheduled case", zap.String("url", sc.URL))

	res := s.Runner.RunCase(observability.WithRole(ctx, observability.RoleScheduled), sc.URL, sc.Steps, nil)

	if err := s.Store.MarkScheduleRun(ctx, sc.ID, s.now()); err != nil {
		log.Error("Error updating last run", zap.Error(err))
	}
	if sc.OneShot() {
		if err := s.Store.DeleteSchedule(ctx, sc.ID); err != nil {
			log.Error("Error deleting one-shot schedule", zap.Error(err))
		}
	}

	m, ok := s.Gateways[sc.Gateway]
	if !ok || m == nil {
		log.Warn("No gateway for scheduled case", zap.String("gateway", sc.Gateway))
		return
	}
	if err := m.Send(sc.ChatID, "⏰ Scheduled case\n\n"+report.Text(res)); err != nil {
		log.Warn("Error sending scheduled result", zap.Error(err))
	}
}
