package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/worldline-go/hardloop"

	"github.com/rakunlabs/splot/internal/sched"
	"github.com/rakunlabs/splot/internal/splotval"
)

// TimerState is the Timer state machine position from spec §4.9.
type TimerState string

const (
	TimerIdle    TimerState = "idle"
	TimerArmed   TimerState = "armed"
	TimerWaiting TimerState = "waiting"
	TimerFiring  TimerState = "firing"
)

// cronPrefix marks a schedule program as a cron spec (§D.3) rather than an
// RPN/script expression returning seconds-until-fire.
const cronPrefix = "cron:"

// cronRunner is satisfied by hardloop's unexported cron-job type returned
// by hardloop.NewCron, so it can be stored without naming it directly.
type cronRunner interface {
	Start(ctx context.Context) error
	Stop()
}

// DeleteFunc is called when a Timer with auto_delete fires its last
// schedule evaluation with a non-positive result.
type DeleteFunc func()

// Timer implements spec §4.9's scheduled action dispatch: idle -> armed ->
// waiting -> firing -> (armed | idle), driven either by an RPN/script
// schedule expression returning seconds-until-fire (scheduled on the
// cooperative scheduler, so virtual-clock tests drive it deterministically)
// or by a `cron:`-prefixed spec run through hardloop (wall-clock only).
type Timer struct {
	resolver   LinkResolver
	sch        *sched.Scheduler
	schedule   Expression
	cronSpec   string // non-empty when schedule source was cron:-prefixed
	predicate  Expression // optional
	actions    []Action
	autoReset  bool
	autoDelete bool
	onDelete   DeleteFunc

	mu       sync.Mutex
	state    TimerState
	running  bool
	count    int64
	cancel   sched.CancelHandle
	cronJob  cronRunner
	nextFire time.Time
	remaining time.Duration // snapshot used by running=true re-arm with no schedule program
}

// NewTimer builds an idle Timer. scheduleSrc is compiled via Compile unless
// it carries the cron: prefix, in which case it is kept as a raw cron spec.
func NewTimer(resolver LinkResolver, sch *sched.Scheduler, scheduleSrc string, predicateSrc string, actions []Action, autoReset, autoDelete bool, onDelete DeleteFunc) (*Timer, error) {
	t := &Timer{
		resolver:   resolver,
		sch:        sch,
		actions:    actions,
		autoReset:  autoReset,
		autoDelete: autoDelete,
		onDelete:   onDelete,
		state:      TimerIdle,
	}
	if spec, ok := strings.CutPrefix(scheduleSrc, cronPrefix); ok {
		t.cronSpec = spec
	} else {
		expr, err := Compile(scheduleSrc)
		if err != nil {
			return nil, err
		}
		t.schedule = expr
	}
	if predicateSrc != "" {
		expr, err := Compile(predicateSrc)
		if err != nil {
			return nil, err
		}
		t.predicate = expr
	}
	return t, nil
}

func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Running reports the running flag; false means disarmed with any pending
// fire cancelled.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Arm transitions idle -> armed and schedules the next fire.
func (t *Timer) Arm() error {
	t.mu.Lock()
	if t.state != TimerIdle {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	t.mu.Unlock()
	return t.armFresh()
}

// SetRunning implements the running=false/true property from spec §4.9:
// false cancels any pending fire; true re-arms, from remaining time when
// no schedule program drives it directly (cron programs always re-arm
// fresh since hardloop owns their scheduling).
func (t *Timer) SetRunning(running bool) error {
	t.mu.Lock()
	wasRunning := t.running
	t.running = running
	t.mu.Unlock()

	if running == wasRunning {
		return nil
	}
	if !running {
		t.disarmLocked()
		return nil
	}
	t.mu.Lock()
	remaining := t.remaining
	t.mu.Unlock()
	if remaining > 0 && t.cronSpec == "" {
		return t.armWithDelay(remaining)
	}
	return t.armFresh()
}

// Reset always re-arms from a fresh schedule evaluation, per spec §4.9's
// explicit reset method.
func (t *Timer) Reset() error {
	t.disarmLocked()
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
	return t.armFresh()
}

func (t *Timer) disarmLocked() {
	t.mu.Lock()
	cancel := t.cancel
	cronJob := t.cronJob
	t.cronJob = nil
	if !t.nextFire.IsZero() {
		t.remaining = t.nextFire.Sub(t.sch.Now())
		if t.remaining < 0 {
			t.remaining = 0
		}
	}
	t.state = TimerIdle
	t.mu.Unlock()
	cancel.Cancel()
	if cronJob != nil {
		cronJob.Stop()
	}
}

func (t *Timer) armFresh() error {
	if t.cronSpec != "" {
		return t.armCron()
	}
	t.mu.Lock()
	count := t.count
	t.mu.Unlock()
	result, suppressed, err := t.schedule.Eval(EvalContext{
		Vars: map[string]splotval.Value{"c": splotval.Int(count)},
		Now:  t.sch.Now(),
	})
	if err != nil {
		return err
	}
	seconds := 0.0
	if !suppressed {
		if r, ok := result.AsReal(); ok {
			seconds = r
		} else if i, ok := result.AsInt(); ok {
			seconds = float64(i)
		}
	}
	if suppressed || seconds <= 0 {
		t.mu.Lock()
		t.state = TimerIdle
		t.running = false
		t.mu.Unlock()
		if t.autoDelete && t.onDelete != nil {
			t.onDelete()
		}
		return nil
	}
	return t.armWithDelay(time.Duration(seconds * float64(time.Second)))
}

func (t *Timer) armWithDelay(d time.Duration) error {
	t.mu.Lock()
	t.state = TimerArmed
	t.nextFire = t.sch.Now().Add(d)
	t.mu.Unlock()

	cancel := t.sch.Schedule(func(ctx context.Context) { t.fire() }, d)

	t.mu.Lock()
	t.cancel = cancel
	t.state = TimerWaiting
	t.mu.Unlock()
	return nil
}

func (t *Timer) armCron() error {
	job, err := hardloop.NewCron(hardloop.Cron{
		Name:  "timer",
		Specs: []string{t.cronSpec},
		Func: func(ctx context.Context) error {
			t.fire()
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("timer: compile cron spec: %w", err)
	}
	if err := job.Start(context.Background()); err != nil {
		return fmt.Errorf("timer: start cron: %w", err)
	}
	t.mu.Lock()
	t.cronJob = job
	t.state = TimerWaiting
	t.mu.Unlock()
	return nil
}

func (t *Timer) fire() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.state = TimerFiring
	t.nextFire = time.Time{}
	now := t.sch.Now()
	count := t.count
	predicate := t.predicate
	t.mu.Unlock()

	fireActions := true
	if predicate != nil {
		result, suppressed, err := predicate.Eval(EvalContext{
			Vars: map[string]splotval.Value{"c": splotval.Int(count)},
			Now:  now,
		})
		if err != nil || suppressed || !result.Truthy() {
			fireActions = false
		}
	}

	if fireActions {
		t.mu.Lock()
		t.count++
		actions := t.actions
		resolver := t.resolver
		t.mu.Unlock()
		for _, a := range actions {
			a.Dispatch(resolver)
		}
	}

	t.mu.Lock()
	autoReset := t.autoReset
	t.mu.Unlock()

	if autoReset {
		if err := t.armFresh(); err != nil {
			slog.Error("timer: re-arm after fire failed", "error", err)
		}
		return
	}
	t.mu.Lock()
	t.state = TimerIdle
	t.running = false
	t.mu.Unlock()
}
