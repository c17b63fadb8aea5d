package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/metrics"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/notify"
	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusOnTrack   Status = "on_track"
	StatusWarning   Status = "warning"
	StatusUrgent    Status = "urgent"
	StatusOverdue   Status = "overdue"
	StatusCompleted Status = "completed"
)

// urgentDays is the number of remaining days at which a shortfall becomes
// urgent rather than a warning.
const urgentDays = 2

const alertTTL = 24 * time.Hour

type Evaluation struct {
	ClientID      int64                  `json:"client_id"`
	ClientName    string                 `json:"client_name"`
	Channel       models.Channel         `json:"channel"`
	Period        models.FrequencyPeriod `json:"period"`
	PeriodStart   time.Time              `json:"period_start"`
	PeriodEnd     time.Time              `json:"period_end"`
	Published     int                    `json:"published"`
	Target        int                    `json:"target"`
	Remaining     int                    `json:"remaining"`
	DaysRemaining int                    `json:"days_remaining"`
	Status        Status                 `json:"status"`
}

// Evaluate derives the status of one channel period from its counts and the
// time left. It holds no state between calls.
func Evaluate(published, target int, periodEnd, now time.Time, alertDays int) Evaluation {
	ev := Evaluation{Published: published, Target: target, PeriodEnd: periodEnd}

	ev.Remaining = target - published
	if ev.Remaining < 0 {
		ev.Remaining = 0
	}

	left := periodEnd.Sub(now)
	if left > 0 {
		ev.DaysRemaining = int(math.Ceil(left.Hours() / 24))
	}

	switch {
	case ev.Remaining == 0:
		ev.Status = StatusCompleted
	case left <= 0:
		ev.Status = StatusOverdue
	case ev.DaysRemaining <= urgentDays:
		ev.Status = StatusUrgent
	case ev.DaysRemaining <= alertDays:
		ev.Status = StatusWarning
	default:
		ev.Status = StatusOnTrack
	}
	return ev
}

// PeriodWindow returns the [start, end) window of period containing now.
// Weeks start on Monday.
func PeriodWindow(period models.FrequencyPeriod, now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch period {
	case models.PeriodDaily:
		return day, day.AddDate(0, 0, 1)
	case models.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	default:
		start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	}
}

type TargetSource interface {
	List(ctx context.Context) ([]*models.FrequencyTarget, error)
	ListByClientID(ctx context.Context, clientID int64) ([]*models.FrequencyTarget, error)
}

type SuccessCounter interface {
	CountSuccesses(ctx context.Context, clientID int64, channel models.Channel, from, to time.Time) (int, error)
}

type Monitor struct {
	targets   TargetSource
	counter   SuccessCounter
	notifier  notify.Notifier
	redis     redis.Cmdable
	alertDays int
	now       func() time.Time
}

func NewMonitor(targets TargetSource, counter SuccessCounter, notifier notify.Notifier, rdb redis.Cmdable, alertDays int) *Monitor {
	if alertDays <= 0 {
		alertDays = 3
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(nil)
	}
	return &Monitor{
		targets:   targets,
		counter:   counter,
		notifier:  notifier,
		redis:     rdb,
		alertDays: alertDays,
		now:       time.Now,
	}
}

func (m *Monitor) evaluate(ctx context.Context, t *models.FrequencyTarget, start, end, now time.Time) (Evaluation, error) {
	published, err := m.counter.CountSuccesses(ctx, t.ClientID, t.Channel, start, end)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluate(published, t.TargetCount, end, now, m.alertDays)
	ev.ClientID = t.ClientID
	ev.ClientName = t.ClientName
	ev.Channel = t.Channel
	ev.Period = t.Period
	ev.PeriodStart = start
	return ev, nil
}

// Report evaluates every target of a client for the current period.
func (m *Monitor) Report(ctx context.Context, clientID int64) ([]Evaluation, error) {
	targets, err := m.targets.ListByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]Evaluation, 0, len(targets))
	for _, t := range targets {
		start, end := PeriodWindow(t.Period, now)
		ev, err := m.evaluate(ctx, t, start, end, now)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Run audits every target. The current period alerts when it falls behind
// close to its end; a period that ended within the last day alerts as
// overdue when its target was missed. It returns the number of alerts sent.
func (m *Monitor) Run(ctx context.Context) (int, error) {
	targets, err := m.targets.List(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	sent := 0
	for _, t := range targets {
		start, end := PeriodWindow(t.Period, now)
		windows := [][2]time.Time{{start, end}}
		if now.Sub(start) < alertTTL {
			prevStart, prevEnd := PeriodWindow(t.Period, start.Add(-time.Nanosecond))
			windows = append(windows, [2]time.Time{prevStart, prevEnd})
		}

		for _, w := range windows {
			ev, err := m.evaluate(ctx, t, w[0], w[1], now)
			if err != nil {
				slog.Error("failed to evaluate frequency target",
					"client_id", t.ClientID,
					"channel", t.Channel,
					"error", err)
				continue
			}
			if m.alert(ctx, ev) {
				sent++
			}
		}
	}
	return sent, nil
}

func alertSeverity(s Status) (notify.Severity, bool) {
	switch s {
	case StatusOverdue:
		return notify.SeverityHigh, true
	case StatusUrgent:
		return notify.SeverityMedium, true
	case StatusWarning:
		return notify.SeverityLow, true
	default:
		return "", false
	}
}

func alertKey(ev Evaluation) string {
	return fmt.Sprintf("frequency:alert:%d:%s:%s:%d:%s",
		ev.ClientID, ev.Channel, ev.Period, ev.PeriodStart.Unix(), ev.Status)
}

// alert notifies about ev unless the same alert went out in the last day.
func (m *Monitor) alert(ctx context.Context, ev Evaluation) bool {
	severity, ok := alertSeverity(ev.Status)
	if !ok {
		return false
	}

	if m.redis != nil {
		fresh, err := m.redis.SetNX(ctx, alertKey(ev), 1, alertTTL).Result()
		if err != nil {
			slog.Warn("alert dedupe unavailable", "error", err)
		} else if !fresh {
			return false
		}
	}

	title := fmt.Sprintf("%s is behind on %s", ev.ClientName, ev.Channel)
	text := fmt.Sprintf("%d of %d %s posts published, %d still needed with %d day(s) left",
		ev.Published, ev.Target, ev.Period, ev.Remaining, ev.DaysRemaining)
	if ev.Status == StatusOverdue {
		title = fmt.Sprintf("%s missed its %s target on %s", ev.ClientName, ev.Period, ev.Channel)
		text = fmt.Sprintf("%d of %d %s posts published, the period ended %s",
			ev.Published, ev.Target, ev.Period, ev.PeriodEnd.Format("2006-01-02"))
	}

	m.notifier.Notify(ctx, notify.Message{
		Severity: severity,
		Title:    title,
		Text:     text,
		Fields: map[string]string{
			"client_id": strconv.FormatInt(ev.ClientID, 10),
			"channel":   string(ev.Channel),
			"status":    string(ev.Status),
			"remaining": strconv.Itoa(ev.Remaining),
		},
	})
	metrics.FrequencyAlerts.WithLabelValues(string(ev.Status)).Inc()
	return true
}
