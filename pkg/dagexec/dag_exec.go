// Package dagexec is the engine's scheduler: it walks a task graph from
// its root, admits ready tasks under a global resource budget, dispatches
// their bodies to a worker pool, reaps completions, and surfaces
// failures.
//
// The manager runs on a single control goroutine. Task bodies execute in
// workers; workers never touch scheduler state, and the control loop
// never blocks on a single worker -- it polls.
package dagexec

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/serum-errors/go-serum"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/dag"
	"github.com/dpmerrell/dagger/pkg/logging"
	"github.com/dpmerrell/dagger/pkg/task"
	"github.com/dpmerrell/dagger/pkg/tracing"
	"github.com/dpmerrell/dagger/pkg/workerpool"
)

const (
	LOG_TAG_START = "┌─ flow"
	LOG_TAG       = "│  flow"
	LOG_TAG_MID   = "├─ flow"
	LOG_TAG_END   = "└─ flow"
)

// ExecConfig carries the knobs a caller may set on a manager.
type ExecConfig struct {
	// Budget caps concurrent resource usage. Absent keys are unbounded.
	Budget dagapi.ResourceBudget

	// Pool runs task bodies. Nil means an unbounded goroutine pool owned
	// (and shut down) by the manager.
	Pool workerpool.Pool

	// PollInterval is the ceiling of the control loop's backoff sleep.
	// Zero means 50ms; the floor is 1ms.
	PollInterval time.Duration

	// SkipSatisfied marks tasks whose outputs already verify AVAILABLE
	// as COMPLETE at construction, without dispatching them.
	SkipSatisfied bool
}

type runningEntry struct {
	task   *task.Base
	handle workerpool.Handle
	demand dagapi.ResourceDemand
}

// Manager executes one workflow. Managers are single-shot: construct,
// Run once, inspect. There is no global state; any number of managers
// may run concurrently against disjoint graphs.
type Manager struct {
	id    string
	root  *task.Base
	order []*task.Base
	cfg   ExecConfig

	pool    workerpool.Pool
	ownPool bool

	mu          sync.Mutex
	available   dagapi.ResourceBudget
	pending     []*task.Base
	running     []*runningEntry
	failed      map[dagapi.TaskName]error
	failedLatch bool
	cancelled   bool
	ran         bool
	finished    bool
	result      dagapi.RunResult
	stats       RunStats
}

// New validates the graph reachable from root and prepares a manager.
//
// Construction walks the ancestors, rejects cycles and demands no budget
// could ever satisfy, initializes every task's outputs, and (when
// configured) marks already-satisfied tasks COMPLETE.
//
// Errors:
//
//    - dagger-error-cyclic-graph -- when the parent relations contain a cycle
//    - dagger-error-unsatisfiable-resource -- when a task demands more than the budget holds
//    - dagger-error-workflow-invalid -- when task names collide, or output initialization misbehaves
//    - dagger-error-invalid-format -- propagated from output datum construction
func New(root *task.Base, cfg ExecConfig) (*Manager, error) {
	if witness := dag.DetectCycle(root); witness != nil {
		return nil, dagapi.ErrorCyclicGraph(witness)
	}
	order := dag.Ancestors(root)

	names := make(map[dagapi.TaskName]struct{}, len(order))
	for _, t := range order {
		if _, dup := names[t.Name()]; dup {
			return nil, dagapi.ErrorWorkflowInvalid("task name " + string(t.Name()) + " is used more than once")
		}
		names[t.Name()] = struct{}{}
	}

	budget := cfg.Budget
	if budget == nil {
		budget = dagapi.ResourceBudget{}
	}
	for _, t := range order {
		for key, want := range t.Resources() {
			if have, bounded := budget[key]; bounded && want > have {
				return nil, dagapi.ErrorUnsatisfiableResource(t.Name(), key, want, have)
			}
		}
	}

	for _, t := range order {
		if err := t.InitializeOutputs(); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		id:        uuid.New().String(),
		root:      root,
		order:     order,
		cfg:       cfg,
		pool:      cfg.Pool,
		available: budget.Clone(),
		failed:    make(map[dagapi.TaskName]error),
		stats: RunStats{
			PeakUsage: make(map[string]int),
		},
	}
	if m.pool == nil {
		m.pool = workerpool.NewGoroutine(0)
		m.ownPool = true
	}

	if cfg.SkipSatisfied {
		// order is topological, so parents settle before children.
		for _, t := range order {
			if !satisfied(t) {
				continue
			}
			if err := t.Transition(dagapi.TaskComplete); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range order {
		if t.State() == dagapi.TaskWaiting {
			m.pending = append(m.pending, t)
		}
	}
	return m, nil
}

// satisfied reports whether a task's work already exists: every parent
// COMPLETE and every declared output verifying AVAILABLE.
func satisfied(t *task.Base) bool {
	if len(t.OutputKeys()) == 0 {
		return false
	}
	for _, p := range t.Parents() {
		if p.State() != dagapi.TaskComplete {
			return false
		}
	}
	outs := t.Outputs()
	if outs == nil {
		return false
	}
	return outs.Verify() == nil
}

// ID identifies this run, for logs and spans.
func (m *Manager) ID() string { return m.id }

// Run drives the workflow to a terminal state and blocks until it gets
// there. Cancelling ctx is equivalent to calling Cancel.
//
// Errors:
//
//    - dagger-error-already-run -- when this manager already finished a run
func (m *Manager) Run(ctx context.Context) (dagapi.RunResult, error) {
	m.mu.Lock()
	if m.ran {
		state := m.result.State
		m.mu.Unlock()
		return dagapi.RunResult{}, dagapi.ErrorAlreadyRun(state)
	}
	m.ran = true
	m.mu.Unlock()

	ctx, span := tracing.Start(ctx, "workflow run", trace.WithAttributes(
		attribute.String(tracing.AttrKeyDaggerWorkflowId, m.id),
	))
	defer span.End()
	logger := logging.Ctx(ctx)
	logger.Info(LOG_TAG_START, "workflow %s: %d tasks, root %q", m.id, len(m.order), m.root.Name())

	const floor = time.Millisecond
	ceiling := m.cfg.PollInterval
	if ceiling <= 0 {
		ceiling = 50 * time.Millisecond
	}
	backoff := floor

	for {
		if ctx.Err() != nil {
			m.Cancel()
		}

		m.mu.Lock()
		progress := m.reap(ctx)
		progress = m.admit(ctx) || progress
		result, terminal := m.checkTerminal()
		m.mu.Unlock()

		if terminal {
			if m.ownPool {
				m.pool.Shutdown()
			}
			if result.State == dagapi.WorkflowComplete {
				logger.Info(LOG_TAG_END, "workflow %s: COMPLETE", m.id)
			} else {
				logger.Info(LOG_TAG_END, "workflow %s: FAILED (%d failed tasks)", m.id, len(result.Failed))
			}
			return result, nil
		}

		if progress {
			backoff = floor
		} else {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > ceiling {
				backoff = ceiling
			}
		}
	}
}

// reap polls every running worker without blocking and settles the
// finished ones. Returns whether anything finished.
// Caller holds m.mu.
func (m *Manager) reap(ctx context.Context) bool {
	logger := logging.Ctx(ctx)
	var still []*runningEntry
	progress := false
	for _, entry := range m.running {
		done, value, err := entry.handle.Poll()
		if !done {
			still = append(still, entry)
			continue
		}
		progress = true
		m.available.Release(entry.demand)
		t := entry.task

		_, settleSpan := tracing.Start(ctx, "settle task", trace.WithAttributes(
			attribute.String(tracing.AttrKeyDaggerTaskName, string(t.Name())),
			tracing.AttrFullExecPhaseFinal,
		))

		if err == nil {
			raw, ok := value.(map[dagapi.LocalLabel]interface{})
			if !ok {
				raw = map[dagapi.LocalLabel]interface{}{}
			}
			err = t.Finalize(raw)
		}

		if err != nil {
			if _, ok := err.(serum.ErrorInterface); !ok {
				err = dagapi.ErrorWorkerCrash(t.Name(), err)
			}
			t.FailCleanup()
			_ = t.Transition(dagapi.TaskFailed) // RUNNING -> FAILED is always legal
			m.failed[t.Name()] = err
			m.failedLatch = true
			m.stats.FailedCount++
			settleSpan.SetAttributes(
				attribute.String(tracing.AttrKeyDaggerTaskState, dagapi.TaskFailed.String()))
			tracing.EndWithStatus(settleSpan, err)
			logger.Info(LOG_TAG_MID, "task %q: FAILED: %s", t.Name(), err)
			continue
		}

		_ = t.Transition(dagapi.TaskComplete) // RUNNING -> COMPLETE is always legal
		m.stats.CompletedCount++
		settleSpan.SetAttributes(
			attribute.String(tracing.AttrKeyDaggerTaskState, dagapi.TaskComplete.String()))
		settleSpan.End()
		logger.Info(LOG_TAG_MID, "task %q: COMPLETE", t.Name())
	}
	m.running = still
	return progress
}

// admit scans pending tasks in discovery order and dispatches every
// ready one whose demand fits the available budget. Returns whether
// anything was dispatched. Caller holds m.mu.
func (m *Manager) admit(ctx context.Context) bool {
	if m.failedLatch {
		return false
	}
	logger := logging.Ctx(ctx)
	progress := false
	var still []*task.Base
	for _, t := range m.pending {
		if !t.Ready() || !m.available.Satisfies(t.Resources()) {
			still = append(still, t)
			continue
		}
		demand := t.Resources()
		m.available.Grab(demand)
		m.noteUsage()
		if err := t.Transition(dagapi.TaskRunning); err != nil {
			// a task something else mutated out from under us; treat as fatal
			m.available.Release(demand)
			m.failed[t.Name()] = err
			m.failedLatch = true
			still = append(still, t)
			continue
		}
		t := t
		handle := m.pool.Submit(ctx, func(workCtx context.Context) (interface{}, error) {
			workCtx, span := tracing.Start(workCtx, "task", trace.WithAttributes(
				attribute.String(tracing.AttrKeyDaggerTaskName, string(t.Name()))))
			defer span.End()

			collectCtx, collectSpan := tracing.Start(workCtx, "collect inputs",
				trace.WithAttributes(tracing.AttrFullExecPhaseCollect))
			collected, err := t.CollectInputs(collectCtx)
			tracing.EndWithStatus(collectSpan, err)
			if err != nil {
				return nil, err
			}
			return t.RunLogic(workCtx, collected)
		})
		m.running = append(m.running, &runningEntry{task: t, handle: handle, demand: demand})
		m.stats.Admitted = append(m.stats.Admitted, t.Name())
		logger.Info(LOG_TAG, "task %q: RUNNING (worker %s)", t.Name(), handle.ID())
		progress = true
	}
	m.pending = still
	return progress
}

// checkTerminal decides whether the run is over and, if so, builds the
// result. Caller holds m.mu.
func (m *Manager) checkTerminal() (dagapi.RunResult, bool) {
	if len(m.running) > 0 {
		return dagapi.RunResult{}, false
	}
	switch {
	case m.failedLatch:
		m.result = dagapi.RunResult{
			State:  dagapi.WorkflowFailed,
			Failed: m.failed,
			Stuck:  names(m.pending),
		}
	case len(m.pending) == 0:
		if m.root.State() == dagapi.TaskComplete {
			m.result = dagapi.RunResult{State: dagapi.WorkflowComplete}
		} else {
			m.result = dagapi.RunResult{
				State:  dagapi.WorkflowFailed,
				Failed: m.failed,
			}
		}
	default:
		// nothing running, nothing admissible, work left over: stuck.
		stuck := names(m.pending)
		m.failed[m.root.Name()] = dagapi.ErrorDeadlock(stuck)
		m.result = dagapi.RunResult{
			State:  dagapi.WorkflowFailed,
			Failed: m.failed,
			Stuck:  stuck,
		}
	}
	m.finished = true
	return m.result, true
}

// Cancel asks the workflow to stop: no task is admitted after this, and
// every running task's interrupt cleanup runs exactly once while its
// worker is asked to stop. Run then drains as usual. Idempotent, and
// safe to call from any goroutine.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled || m.finished {
		return
	}
	m.cancelled = true
	m.failedLatch = true
	for _, entry := range m.running {
		entry.task.InterruptCleanup()
		entry.handle.Interrupt()
	}
}

// Status snapshots every known task's state. Safe to call from any
// goroutine, including while Run is in flight.
func (m *Manager) Status() dagapi.StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := dagapi.StatusSnapshot{
		Tasks: make(map[dagapi.TaskName]dagapi.TaskState, len(m.order)),
	}
	for _, t := range m.order {
		snap.Tasks[t.Name()] = t.State()
	}
	return snap
}

// noteUsage records the current in-use high water marks.
// Caller holds m.mu.
func (m *Manager) noteUsage() {
	for key, total := range m.cfg.Budget {
		inUse := total - m.available[key]
		if inUse > m.stats.PeakUsage[key] {
			m.stats.PeakUsage[key] = inUse
		}
	}
}

func names(tasks []*task.Base) []dagapi.TaskName {
	out := make([]dagapi.TaskName, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Name())
	}
	return out
}
