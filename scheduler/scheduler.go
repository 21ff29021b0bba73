// Package scheduler implements cron-expression-driven timers bound to
// a plugin's enable/disable lifecycle, grounded on the AfterFunc
// reschedule shape of the teacher's scheduler.go and on
// original_source/src/bot/plugin_builder.rs::run_cron_task's
// select-race between "sleep until next occurrence" and "enabled
// became false". Parsing uses robfig/cron/v3 since the teacher's own
// ScheduleCron is an unimplemented stub (see DESIGN.md).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/kovi-go/kovi/metrics"
)

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// EnableWatcher is the minimal view of a plugin's enable signal a
// cron task needs. plugin.Signal satisfies this structurally, so this
// package never imports package plugin (it would otherwise have to,
// creating a cycle with plugin importing scheduler to register tasks).
type EnableWatcher interface {
	Watch() (bool, <-chan struct{})
}

// Task is one registered cron job.
type Task struct {
	Name     string
	Spec     string
	schedule cron.Schedule
	enabled  EnableWatcher
	handler  func(context.Context)
	logger   *slog.Logger
	stopCh   chan struct{}
}

// Scheduler owns the set of live cron tasks. It has no knowledge of
// plugins beyond the EnableWatcher each task is registered with.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{tasks: map[string]*Task{}, logger: logger}
}

// Register parses expr (with an optional leading seconds field) and
// starts a goroutine racing the computed sleep against enabled's
// transition to false, per spec §4.6. A parse error is returned to
// the caller immediately; it never starts a goroutine.
func (s *Scheduler) Register(name, expr string, enabled EnableWatcher, handler func(context.Context)) (*Task, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse cron expression %q: %w", expr, err)
	}
	t := &Task{
		Name:     name,
		Spec:     expr,
		schedule: schedule,
		enabled:  enabled,
		handler:  handler,
		logger:   s.logger,
		stopCh:   make(chan struct{}),
	}

	s.mu.Lock()
	s.tasks[name] = t
	s.mu.Unlock()

	go t.run()
	return t, nil
}

// Stop ends the task's loop without running its handler again. Used
// by the plugin shutdown sequence alongside the enable-signal
// transition, as a belt-and-suspenders stop in case the task is
// between sleeps when disable fires.
func (t *Task) Stop() {
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
}

// pluginName strips the "#cron#<n>" suffix Builder.Cron appends to
// the owning plugin's name, so CronFiresTotal is keyed per plugin
// rather than per individual task registration.
func (t *Task) pluginName() string {
	if i := strings.Index(t.Name, "#cron#"); i >= 0 {
		return t.Name[:i]
	}
	return t.Name
}

func (t *Task) run() {
	for {
		enabledNow, changed := t.enabled.Watch()
		if !enabledNow {
			return
		}

		now := time.Now()
		next := t.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-timer.C:
			metrics.CronFiresTotal.WithLabelValues(t.pluginName()).Inc()
			t.handler(context.Background())
		case <-changed:
			timer.Stop()
			continue
		case <-t.stopCh:
			timer.Stop()
			return
		}
	}
}
