package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/operator/internal/observability"
	"github.com/rahul/operator/internal/report"
	"github.com/rahul/operator/internal/runner"
	"github.com/rahul/operator/internal/store"
)

const helpText = `Commands:
/run <url>
<one instruction per line>
/schedule <every|once> <url>
<one instruction per line>
   every is a duration such as 30m or 24h
/schedules  list this chat's schedules
/unschedule <id>
/clear  remove all of this chat's schedules
/history [n]  recent runs
/status  what is running now`

type CaseRunner interface {
	RunCase(ctx context.Context, url, steps string, headless *bool) runner.CaseResult
}

type ScheduleStore interface {
	AddSchedule(ctx context.Context, sc store.Schedule) (int64, error)
	ListSchedules(ctx context.Context, chatID string) ([]store.Schedule, error)
	DeleteSchedule(ctx context.Context, id int64) error
	ClearSchedules(ctx context.Context, chatID string) (int64, error)
}

type History interface {
	ListRuns(ctx context.Context, limit int) ([]store.CaseRun, error)
}

// Dispatcher turns chat messages into runner and store calls. Every gateway
// shares one.
type Dispatcher struct {
	Runner    CaseRunner
	Schedules ScheduleStore
	History   History

	log *zap.Logger
}

func NewDispatcher(r CaseRunner, schedules ScheduleStore, history History) *Dispatcher {
	return &Dispatcher{
		Runner:    r,
		Schedules: schedules,
		History:   history,
		log:       observability.GetLogger().Named("gateway"),
	}
}

// Handle answers one message. Anything that is not a command gets the help
// text.
func (d *Dispatcher) Handle(ctx context.Context, gatewayName, chatID, text string) string {
	head, body, _ := strings.Cut(strings.TrimSpace(text), "\n")
	fields := strings.Fields(head)
	if len(fields) == 0 {
		return helpText
	}
	// Telegram appends @botname to commands in groups.
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := fields[1:]

	d.log.Info("Chat command", zap.String("gateway", gatewayName), zap.String("chat_id", chatID), zap.String("command", cmd))

	var reply string
	var err error
	switch cmd {
	case "/run":
		reply, err = d.run(ctx, args, body)
	case "/schedule":
		reply, err = d.schedule(ctx, gatewayName, chatID, args, body)
	case "/schedules":
		reply, err = d.listSchedules(ctx, chatID)
	case "/unschedule":
		reply, err = d.unschedule(ctx, args)
	case "/clear":
		reply, err = d.clear(ctx, chatID)
	case "/history":
		reply, err = d.history(ctx, args)
	case "/status":
		reply = status()
	default:
		reply = helpText
	}
	if err != nil {
		d.log.Warn("Chat command failed", zap.String("command", cmd), zap.Error(err))
		return "⚠️ " + err.Error()
	}
	return reply
}

func (d *Dispatcher) run(ctx context.Context, args []string, steps string) (string, error) {
	url, err := caseArgs(args, steps)
	if err != nil {
		return "", err
	}
	res := d.Runner.RunCase(ctx, url, steps, nil)
	return report.Text(res), nil
}

func (d *Dispatcher) schedule(ctx context.Context, gatewayName, chatID string, args []string, steps string) (string, error) {
	if d.Schedules == nil {
		return "", errors.New("scheduling is not available")
	}
	if len(args) < 1 {
		return "", errors.New("usage: /schedule <every|once> <url>")
	}
	interval, err := parseInterval(args[0])
	if err != nil {
		return "", err
	}
	url, err := caseArgs(args[1:], steps)
	if err != nil {
		return "", err
	}
	id, err := d.Schedules.AddSchedule(ctx, store.Schedule{
		ChatID:          chatID,
		Gateway:         gatewayName,
		URL:             url,
		Steps:           steps,
		IntervalSeconds: int(interval / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("could not save schedule: %w", err)
	}
	if interval == 0 {
		return fmt.Sprintf("Scheduled case #%d to run once.", id), nil
	}
	return fmt.Sprintf("Scheduled case #%d to run every %s.", id, interval), nil
}

func (d *Dispatcher) listSchedules(ctx context.Context, chatID string) (string, error) {
	if d.Schedules == nil {
		return "", errors.New("scheduling is not available")
	}
	list, err := d.Schedules.ListSchedules(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No schedules.", nil
	}
	var b strings.Builder
	for _, sc := range list {
		every := "once"
		if !sc.OneShot() {
			every = "every " + (time.Duration(sc.IntervalSeconds) * time.Second).String()
		}
		last := "never"
		if !sc.LastRun.IsZero() {
			last = sc.LastRun.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "#%d %s (%s, last run %s)\n", sc.ID, sc.URL, every, last)
	}
	return b.String(), nil
}

func (d *Dispatcher) unschedule(ctx context.Context, args []string) (string, error) {
	if d.Schedules == nil {
		return "", errors.New("scheduling is not available")
	}
	if len(args) != 1 {
		return "", errors.New("usage: /unschedule <id>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid schedule id %q", args[0])
	}
	if err := d.Schedules.DeleteSchedule(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("schedule #%d not found", id)
		}
		return "", err
	}
	return fmt.Sprintf("Removed schedule #%d.", id), nil
}

func (d *Dispatcher) clear(ctx context.Context, chatID string) (string, error) {
	if d.Schedules == nil {
		return "", errors.New("scheduling is not available")
	}
	n, err := d.Schedules.ClearSchedules(ctx, chatID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %d schedule(s).", n), nil
}

func (d *Dispatcher) history(ctx context.Context, args []string) (string, error) {
	if d.History == nil {
		return "", errors.New("history is not available")
	}
	limit := 5
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return "", fmt.Errorf("invalid count %q", args[0])
		}
		limit = n
	}
	runs, err := d.History.ListRuns(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "No runs yet.", nil
	}
	var b strings.Builder
	for _, r := range runs {
		icon := "✅"
		if !r.Success {
			icon = "❌"
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", icon, r.StartTime.Format(time.RFC3339), r.URL, r.Duration.Round(time.Millisecond))
		if r.ErrorMessage != "" {
			fmt.Fprintf(&b, "   %s\n", r.ErrorMessage)
		}
	}
	return b.String(), nil
}

func status() string {
	st := observability.Snapshot()
	totals := fmt.Sprintf("%d passed, %d failed", st.Passed, st.Failed)
	if st.Active == 0 {
		return fmt.Sprintf("%s, %s, last heartbeat %s ago", st.Role, totals, time.Since(st.LastHeartbeat).Round(time.Second))
	}
	progress := ""
	if st.Steps > 0 {
		progress = fmt.Sprintf(" at step %d/%d", st.Step, st.Steps)
	}
	return fmt.Sprintf("%s: %d case(s) in flight, latest %s%s, %s", st.Role, st.Active, st.ActiveCase, progress, totals)
}

// caseArgs validates a url argument and a non-empty instruction body.
func caseArgs(args []string, steps string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected a single url after the command")
	}
	url := args[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("url must start with http:// or https://, got %q", url)
	}
	if strings.TrimSpace(steps) == "" {
		return "", errors.New("put the instructions on the lines after the url")
	}
	return url, nil
}

func parseInterval(s string) (time.Duration, error) {
	if strings.EqualFold(s, "once") {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: use once or a duration such as 1h", s)
	}
	if d < time.Minute {
		return 0, errors.New("interval must be at least 1m")
	}
	return d, nil
}
