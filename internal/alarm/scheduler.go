package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"grepwise/internal/logentry"
	"grepwise/internal/logging"
	"grepwise/internal/redact"
)

// Sink delivers a Notification to one external channel (email, Slack,
// webhook, ...). Implementations live in internal/notify; Scheduler only
// depends on this interface so the two packages don't import each other.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Scheduler runs a gocron tick per enabled alarm at its own interval_ms,
// evaluating the alarm's query and driving its OK/FIRING/UNKNOWN state
// machine. Modeled on the teacher's orchestrator.Scheduler: one named
// gocron job per registered unit of work, re-registerable, logged at
// lifecycle boundaries only.
type Scheduler struct {
	mu        sync.Mutex
	cron      gocron.Scheduler
	jobs      map[string]gocron.Job
	store     *Store
	exec      Executor
	redactor  *redact.Redactor
	sinks     map[string]Sink
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates and starts a Scheduler. sinks is keyed by channel
// name, matching Alarm.Channels entries.
func NewScheduler(store *Store, exec Executor, redactor *redact.Redactor, sinks map[string]Sink, logger *slog.Logger) (*Scheduler, error) {
	cs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create alarm cron scheduler: %w", err)
	}
	s := &Scheduler{
		cron:     cs,
		jobs:     make(map[string]gocron.Job),
		store:    store,
		exec:     exec,
		redactor: redactor,
		sinks:    sinks,
		logger:   logging.Default(logger).With("component", "alarm"),
		now:      time.Now,
	}
	cs.Start()
	return s, nil
}

// RegisterAlarm schedules (or reschedules) periodic evaluation for alarm a
// at its IntervalMillis. A disabled alarm is accepted but not ticked.
func (s *Scheduler) RegisterAlarm(a Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[a.ID]; ok {
		if err := s.cron.RemoveJob(j.ID()); err != nil {
			s.logger.Warn("failed to remove alarm job for re-registration", "alarm", a.ID, "error", err)
		}
		delete(s.jobs, a.ID)
	}
	if !a.Enabled {
		return nil
	}
	if a.IntervalMillis <= 0 {
		return fmt.Errorf("alarm %s: interval_ms must be positive", a.ID)
	}

	id := a.ID
	j, err := s.cron.NewJob(
		gocron.DurationJob(time.Duration(a.IntervalMillis)*time.Millisecond),
		gocron.NewTask(func() { s.tick(id) }),
		gocron.WithName(a.ID),
	)
	if err != nil {
		return fmt.Errorf("schedule alarm %s: %w", a.ID, err)
	}
	s.jobs[a.ID] = j
	s.logger.Info("alarm scheduled", "alarm", a.ID, "interval_ms", a.IntervalMillis)
	return nil
}

// UnregisterAlarm stops ticking an alarm. No-op if it isn't scheduled.
func (s *Scheduler) UnregisterAlarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	if err := s.cron.RemoveJob(j.ID()); err != nil {
		s.logger.Warn("failed to remove alarm job", "alarm", id, "error", err)
	}
	delete(s.jobs, id)
	s.logger.Info("alarm unscheduled", "alarm", id)
}

// EvaluateNow runs one evaluation of alarm id immediately, independent of
// its schedule; backs `POST /alarms/{id}/evaluate`.
func (s *Scheduler) EvaluateNow(ctx context.Context, id string) error {
	return s.evaluate(ctx, id)
}

// Stop shuts down the underlying cron scheduler.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) tick(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.evaluate(ctx, id); err != nil {
		s.logger.Warn("alarm evaluation failed", "alarm", id, "error", err)
	}
}

func (s *Scheduler) evaluate(ctx context.Context, id string) error {
	a, ok := s.store.Get(id)
	if !ok {
		return fmt.Errorf("alarm %s not found", id)
	}
	now := s.now().UnixMilli()

	observations, err := Evaluate(ctx, s.exec, a, now)
	if err != nil {
		s.markUnknown(id, now)
		return err
	}

	var toNotify []Notification
	updateErr := s.store.Update(id, func(stored *Alarm) {
		stored.LastEvalTS = now
		if len(stored.GroupBy) == 0 {
			obsValue := 0.0
			if len(observations) > 0 {
				obsValue = observations[0].Value
			}
			predTrue := stored.ThresholdOp.Compare(obsValue, stored.ThresholdValue)
			newState, notify, firedAt := transition(stored.LastState, stored.LastFiredTS, stored.ThrottleMillis, predTrue, now)
			stored.LastState = newState
			stored.LastFiredTS = firedAt
			if notify {
				var samples []string
				if len(observations) > 0 {
					samples = sampleMessages(s.redactor, observations[0].Samples)
				}
				toNotify = append(toNotify, Notification{
					AlarmID: stored.ID, Name: stored.Name, ObservedValue: obsValue,
					Threshold: stored.ThresholdValue, TimestampMS: now, SampleLogs: samples,
				})
			}
			return
		}

		if stored.Groups == nil {
			stored.Groups = make(map[string]*GroupState)
		}
		for _, obs := range observations {
			gs, ok := stored.Groups[obs.GroupKey]
			if !ok {
				gs = &GroupState{State: StateOK}
				stored.Groups[obs.GroupKey] = gs
			}
			predTrue := stored.ThresholdOp.Compare(obs.Value, stored.ThresholdValue)
			newState, notify, firedAt := transition(gs.State, gs.LastFiredTS, stored.ThrottleMillis, predTrue, now)
			gs.State = newState
			gs.LastFiredTS = firedAt
			if notify {
				toNotify = append(toNotify, Notification{
					AlarmID: stored.ID, Name: stored.Name, GroupKey: obs.GroupKey,
					ObservedValue: obs.Value, Threshold: stored.ThresholdValue, TimestampMS: now,
					SampleLogs: sampleMessages(s.redactor, obs.Samples),
				})
			}
		}
	})
	if updateErr != nil {
		return updateErr
	}

	for _, n := range toNotify {
		s.dispatch(ctx, a.Channels, n)
	}
	return nil
}

func (s *Scheduler) markUnknown(id string, now int64) {
	_ = s.store.Update(id, func(stored *Alarm) {
		stored.LastEvalTS = now
		if len(stored.GroupBy) == 0 {
			stored.LastState = StateUnknown
			return
		}
		for _, gs := range stored.Groups {
			gs.State = StateUnknown
		}
	})
}

// transition applies the OK/FIRING/UNKNOWN rules to one (alarm or group)
// sub-state and reports whether a notification should fire.
func transition(cur State, lastFired, throttle int64, predTrue bool, now int64) (next State, notify bool, firedAt int64) {
	if !predTrue {
		return StateOK, false, lastFired
	}
	if cur != StateFiring {
		return StateFiring, true, now
	}
	if now-lastFired >= throttle {
		return StateFiring, true, now
	}
	return StateFiring, false, lastFired
}

// dispatch sends n to every named channel in channels. The first attempt
// happens inline (sinks carry their own short timeouts, so this doesn't
// meaningfully delay the tick); only a failed first attempt falls back to a
// background retry loop, so a healthy channel never blocks the next
// scheduled evaluation and an unhealthy one never blocks it either.
func (s *Scheduler) dispatch(ctx context.Context, channels []string, n Notification) {
	for _, ch := range channels {
		sink, ok := s.sinks[ch]
		if !ok {
			s.logger.Warn("unknown notification channel", "channel", ch, "alarm", n.AlarmID)
			continue
		}
		if err := sink.Send(ctx, n); err != nil {
			s.logger.Warn("notification delivery failed", "channel", sink.Name(), "alarm", n.AlarmID, "attempt", 1, "error", err)
			go s.retryDelivery(sink, n)
		}
	}
}

// retryDelivery retries a failed delivery with bounded exponential backoff,
// off the evaluation path entirely.
func (s *Scheduler) retryDelivery(sink Sink, n Notification) {
	backoff := 500 * time.Millisecond
	const maxAttempts = 5
	for attempt := 2; attempt <= maxAttempts; attempt++ {
		time.Sleep(backoff)
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := sink.Send(sendCtx, n)
		cancel()
		if err == nil {
			return
		}
		s.logger.Warn("notification delivery failed", "channel", sink.Name(), "alarm", n.AlarmID, "attempt", attempt, "error", err)
		backoff *= 2
	}
}

func sampleMessages(redactor *redact.Redactor, entries []logentry.LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if redactor != nil {
			e = redactor.Redact(e, redact.MaskAlarm)
		}
		out = append(out, e.Message)
	}
	return out
}
