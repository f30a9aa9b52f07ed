package swarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/odgrim/abathur-swarm-sub016/internal/store"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

var (
	// ErrAlreadyRunning indicates Start was called while a run is active.
	ErrAlreadyRunning = errors.New("swarm is already running")
	// ErrResetWhileRunning indicates Reset was called during an active run.
	ErrResetWhileRunning = errors.New("cannot reset while swarm is running")
)

const (
	// DefaultMaxConcurrentAgents bounds concurrent executions when the
	// configuration leaves it unset.
	DefaultMaxConcurrentAgents = 4
	// DefaultPollInterval is how long the dispatch loop sleeps when idle.
	DefaultPollInterval = 100 * time.Millisecond
	// settleTimeout bounds the store writes that record an execution's
	// terminal status. Settlement must not inherit a cancelled run context
	// or cancelled tasks would never be marked as such.
	settleTimeout = 30 * time.Second
)

// Config configures the swarm orchestrator.
type Config struct {
	// MaxConcurrentAgents is the maximum number of tasks executing at once.
	MaxConcurrentAgents int
	// PollInterval is the idle wait between dispatch attempts.
	PollInterval time.Duration
	// StopTimeout, when non-zero, bounds how long Stop waits for in-flight
	// executions before returning an error. Zero means wait indefinitely.
	StopTimeout time.Duration
	// EventBuffer is the emitter channel capacity.
	EventBuffer int
	// Logger receives debug output. Nil means no logging.
	Logger *DebugLogger
}

// Store is the task persistence surface the orchestrator needs.
type Store interface {
	GetTask(id string) (*models.Task, error)
	GetNextReadyTask() (*models.Task, error)
	ListTasks(status *models.TaskStatus, limit int) ([]models.Task, error)
	UpdateStatus(id string, to models.TaskStatus, expectedVersion int64) error
	UpdateStatusRetry(ctx context.Context, id string, to models.TaskStatus, cfg store.RetryConfig) error
	FailTaskRetry(ctx context.Context, id string, message string, cfg store.RetryConfig) error
	RetryTask(id string) (*models.Task, error)
	CountByStatus() (map[models.TaskStatus]int, error)
}

// Graph answers dependency questions for readiness and cascade decisions.
type Graph interface {
	GetBlockedTasks(prerequisiteID string) ([]string, error)
	AllDependenciesMet(taskID string) (bool, error)
	Invalidate(taskID string)
}

// Scorer refreshes calculated priorities after the graph changes.
type Scorer interface {
	RecalculatePriorities(ctx context.Context, taskIDs []string) (map[string]float64, error)
}

// Executor runs a single task to completion. Implementations may be
// arbitrarily slow or fail; the orchestrator treats them as a black box
// with exactly one outcome per invocation.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) (*models.ExecutionResult, error)
}

// execution tracks one in-flight task.
type execution struct {
	task      *models.Task
	cancel    context.CancelFunc
	startedAt time.Time
}

// Status is a point-in-time snapshot of the swarm.
type Status struct {
	// Running reports whether the dispatch loop is active.
	Running bool
	// ActiveCount is the number of in-flight executions.
	ActiveCount int
	// ActiveTaskIDs lists the in-flight task IDs in sorted order.
	ActiveTaskIDs []string
	// CompletedCount is the number of settled executions this run.
	CompletedCount int
	// QueueStats counts tasks in the store by status.
	QueueStats map[models.TaskStatus]int
}

// Orchestrator runs the polling dispatch loop. It keeps up to
// MaxConcurrentAgents tasks executing simultaneously, enforces an optional
// completed-task limit for bounded runs, and supports cooperative shutdown.
type Orchestrator struct {
	store    Store
	graph    Graph
	scorer   Scorer
	executor Executor
	config   Config

	// sem bounds concurrent executions; a slot is held from dispatch
	// until the execution fully settles.
	sem *semaphore.Weighted

	// mu guards the run state below.
	mu            sync.Mutex
	running       bool
	stopRequested bool
	active        map[string]*execution
	results       map[string]*models.ExecutionResult
	// completedCount is incremented only in finishExecution, once per
	// dispatched task, after its terminal status is recorded. Spawn-time
	// counting would let a bounded run overshoot its limit while slow
	// executions are still in flight.
	completedCount int
	stopCh         chan struct{}
	doneCh         chan struct{}

	// wakeCh lets completions interrupt the idle poll wait.
	wakeCh chan struct{}

	wg sync.WaitGroup

	emitter *Emitter
	retry   store.RetryConfig
	logger  *DebugLogger
}

// New creates a swarm orchestrator. Zero config fields fall back to
// defaults.
func New(st Store, graph Graph, scorer Scorer, executor Executor, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentAgents <= 0 {
		cfg.MaxConcurrentAgents = DefaultMaxConcurrentAgents
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}

	return &Orchestrator{
		store:    st,
		graph:    graph,
		scorer:   scorer,
		executor: executor,
		config:   cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentAgents)),
		active:   make(map[string]*execution),
		results:  make(map[string]*models.ExecutionResult),
		wakeCh:   make(chan struct{}, 1),
		emitter:  NewEmitter(cfg.EventBuffer),
		retry:    store.DefaultRetryConfig(),
		logger:   cfg.Logger,
	}
}

// Events returns a read-only channel of swarm events for subscribers.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Start runs the dispatch loop until Stop is called, the context is
// cancelled, or completionLimit tasks have settled (when the limit is
// positive). It blocks for the duration of the run and drains in-flight
// executions before returning.
func (o *Orchestrator) Start(ctx context.Context, completionLimit int) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.stopRequested = false
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	doneCh := o.doneCh
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		close(doneCh)
	}()

	o.logger.Log("[swarm.Start] dispatch loop starting: max_concurrent=%d poll=%s limit=%d",
		o.config.MaxConcurrentAgents, o.config.PollInterval, completionLimit)
	o.emitter.Emit(Event{Type: EventSwarmStarted, Timestamp: time.Now()})

	// Bring readiness and priorities up to date before the first dispatch.
	if _, err := o.ResolveReadiness(ctx); err != nil {
		o.logger.Log("[swarm.Start] initial readiness pass failed: %v", err)
	}

	err := o.runLoop(ctx, completionLimit)

	// Drain in-flight executions before reporting the run as over.
	o.wg.Wait()

	completed := o.CompletedCount()
	o.emitter.Emit(Event{Type: EventSwarmStopped, CompletedCount: completed, Timestamp: time.Now()})
	o.logger.Log("[swarm.Start] dispatch loop exited: completed=%d", completed)
	return err
}

// runLoop is the dispatch loop body. The loop itself is single-threaded:
// it never blocks on an execution while deciding whether to start another.
func (o *Orchestrator) runLoop(ctx context.Context, completionLimit int) error {
	for {
		select {
		case <-ctx.Done():
			o.cancelInflight()
			return ctx.Err()
		case <-o.stopCh:
			return nil
		default:
		}

		if completionLimit > 0 && o.CompletedCount() >= completionLimit {
			o.logger.Log("[swarm.runLoop] completion limit %d reached", completionLimit)
			o.emitter.Emit(Event{
				Type:           EventLimitReached,
				CompletedCount: o.CompletedCount(),
				Timestamp:      time.Now(),
			})
			return nil
		}

		if o.admissible(completionLimit) {
			dispatched, err := o.dispatchNext(ctx)
			if err != nil {
				o.logger.Log("[swarm.runLoop] dispatch failed: %v", err)
			} else if dispatched {
				// Fill remaining capacity before going idle.
				continue
			}
		}

		// Nothing to dispatch. Promote newly unblocked work, then sleep
		// until the poll interval elapses or a completion wakes us.
		if _, err := o.ResolveReadiness(ctx); err != nil {
			o.logger.Log("[swarm.runLoop] readiness pass failed: %v", err)
		}

		select {
		case <-ctx.Done():
			o.cancelInflight()
			return ctx.Err()
		case <-o.stopCh:
			return nil
		case <-o.wakeCh:
		case <-time.After(o.config.PollInterval):
		}
	}
}

// admissible reports whether a new execution may start under the
// completion limit. Settled and in-flight executions both count against the
// limit: their sum only ever grows, so once it reaches the limit no further
// task can be dispatched, and a bounded run spawns exactly limit tasks.
func (o *Orchestrator) admissible(completionLimit int) bool {
	if completionLimit <= 0 {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completedCount+len(o.active) < completionLimit
}

// dispatchNext claims the highest-priority ready task and starts its
// execution. Returns false when there is no capacity or no ready task.
func (o *Orchestrator) dispatchNext(ctx context.Context) (bool, error) {
	if !o.sem.TryAcquire(1) {
		return false, nil
	}

	task, err := o.store.GetNextReadyTask()
	if err != nil {
		o.sem.Release(1)
		return false, fmt.Errorf("fetch next ready task: %w", err)
	}
	if task == nil {
		o.sem.Release(1)
		return false, nil
	}

	// Claim the task with a version-checked write. Losing the race means
	// another writer touched it first; leave it for the next iteration.
	if err := o.store.UpdateStatus(task.ID, models.TaskStatusRunning, task.Version); err != nil {
		o.sem.Release(1)
		if errors.Is(err, models.ErrVersionConflict) || errors.Is(err, models.ErrInvalidTransition) {
			o.logger.Log("[swarm.dispatch] lost claim on task %s: %v", task.ID, err)
			o.emitter.Emit(Event{
				Type:      EventClaimConflict,
				TaskID:    task.ID,
				Message:   err.Error(),
				Timestamp: time.Now().UTC(),
			})
			return false, nil
		}
		return false, fmt.Errorf("claim task %s: %w", task.ID, err)
	}

	execCtx, cancel := context.WithCancel(ctx)
	exec := &execution{task: task, cancel: cancel, startedAt: time.Now().UTC()}

	o.mu.Lock()
	o.active[task.ID] = exec
	o.mu.Unlock()

	o.logger.Log("[swarm.dispatch] task %s dispatched (priority %.1f)", task.ID, task.CalculatedPriority)
	o.emitter.Emit(Event{
		Type:      EventTaskDispatched,
		TaskID:    task.ID,
		Message:   fmt.Sprintf("dispatched at priority %.1f", task.CalculatedPriority),
		Timestamp: time.Now(),
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		result := o.runExecution(execCtx, task)
		o.finishExecution(task, result)
	}()

	return true, nil
}

// runExecution invokes the executor and normalizes its outcome. A
// panicking executor is converted into a failed result so the capacity
// slot and completion accounting survive.
func (o *Orchestrator) runExecution(ctx context.Context, task *models.Task) (result *models.ExecutionResult) {
	started := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			result = &models.ExecutionResult{
				TaskID:     task.ID,
				Success:    false,
				Error:      fmt.Sprintf("executor panic: %v", r),
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
			}
		}
	}()

	res, err := o.executor.Execute(ctx, task)
	finished := time.Now().UTC()

	switch {
	case err != nil:
		cancelled := errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) ||
			ctx.Err() != nil
		if !cancelled {
			o.emitter.Emit(Event{
				Type:      EventAgentError,
				TaskID:    task.ID,
				Error:     err,
				Timestamp: finished,
			})
		}
		return &models.ExecutionResult{
			TaskID:     task.ID,
			Success:    false,
			Cancelled:  cancelled,
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: finished,
		}
	case res == nil:
		return &models.ExecutionResult{
			TaskID:     task.ID,
			Success:    false,
			Error:      "executor returned no result",
			StartedAt:  started,
			FinishedAt: finished,
		}
	default:
		if res.TaskID == "" {
			res.TaskID = task.ID
		}
		if res.StartedAt.IsZero() {
			res.StartedAt = started
		}
		if res.FinishedAt.IsZero() {
			res.FinishedAt = finished
		}
		return res
	}
}

// finishExecution is the single completion path for every execution. It
// runs exactly once per dispatched task regardless of success, failure, or
// cancellation: it records the result, settles the task's terminal status,
// and only then increments the completed count.
func (o *Orchestrator) finishExecution(task *models.Task, result *models.ExecutionResult) {
	defer o.sem.Release(1)
	defer o.wake()

	o.mu.Lock()
	o.results[task.ID] = result
	o.mu.Unlock()

	// Settlement writes get their own context: a cancelled run must still
	// record terminal statuses.
	settleCtx, cancelSettle := context.WithTimeout(context.Background(), settleTimeout)
	defer cancelSettle()

	o.settle(settleCtx, task, result)

	// The active-map entry and the completed counter swap in one critical
	// section so the admission check never sees an execution as neither
	// in flight nor counted.
	o.mu.Lock()
	delete(o.active, task.ID)
	o.completedCount++
	completed := o.completedCount
	o.mu.Unlock()

	o.logger.Log("[swarm.finish] task %s settled: success=%v cancelled=%v completed_count=%d",
		task.ID, result.Success, result.Cancelled, completed)

	o.afterSettlement(settleCtx, task.ID, result, completed)
}

// settle records the execution outcome on the task.
func (o *Orchestrator) settle(ctx context.Context, task *models.Task, result *models.ExecutionResult) {
	switch {
	case result.Cancelled:
		if err := o.store.UpdateStatusRetry(ctx, task.ID, models.TaskStatusCancelled, o.retry); err != nil {
			o.logger.Log("[swarm.settle] failed to mark task %s cancelled: %v", task.ID, err)
		}
	case result.Success:
		if err := o.store.UpdateStatusRetry(ctx, task.ID, models.TaskStatusCompleted, o.retry); err != nil {
			o.logger.Log("[swarm.settle] failed to mark task %s completed: %v", task.ID, err)
		}
	default:
		if err := o.store.FailTaskRetry(ctx, task.ID, result.Error, o.retry); err != nil {
			o.logger.Log("[swarm.settle] failed to mark task %s failed: %v", task.ID, err)
			return
		}
		o.requeueIfRetriable(task.ID)
	}
}

// requeueIfRetriable resets a failed task to pending while retry budget
// remains. A task out of retries stays failed.
func (o *Orchestrator) requeueIfRetriable(taskID string) {
	requeued, err := o.store.RetryTask(taskID)
	if err != nil {
		if errors.Is(err, models.ErrRetriesExhausted) {
			o.logger.Log("[swarm.settle] task %s exhausted retries", taskID)
			o.emitter.Emit(Event{
				Type:      EventRetriesExhausted,
				TaskID:    taskID,
				Timestamp: time.Now().UTC(),
			})
			return
		}
		o.logger.Log("[swarm.settle] failed to requeue task %s: %v", taskID, err)
		return
	}
	o.logger.Log("[swarm.settle] task %s requeued for retry attempt %d", taskID, requeued.RetryCount)
	o.emitter.Emit(Event{
		Type:      EventTaskRetried,
		TaskID:    taskID,
		Attempt:   requeued.RetryCount,
		Timestamp: time.Now(),
	})
}

// afterSettlement emits the outcome event and propagates graph effects:
// cache invalidation, dependent promotion, and priority refresh.
func (o *Orchestrator) afterSettlement(ctx context.Context, taskID string, result *models.ExecutionResult, completed int) {
	switch {
	case result.Cancelled:
		o.emitter.Emit(Event{
			Type:           EventTaskCancelled,
			TaskID:         taskID,
			CompletedCount: completed,
			Timestamp:      time.Now(),
		})
	case result.Success:
		o.emitter.Emit(Event{
			Type:           EventTaskCompleted,
			TaskID:         taskID,
			CompletedCount: completed,
			Timestamp:      time.Now(),
		})
	default:
		o.emitter.Emit(Event{
			Type:           EventTaskFailed,
			TaskID:         taskID,
			Error:          errors.New(result.Error),
			CompletedCount: completed,
			Timestamp:      time.Now(),
		})
	}

	o.graph.Invalidate(taskID)

	if result.Success {
		o.promoteDependents(ctx, taskID)
	}
}

// promoteDependents moves dependents whose dependencies are now all
// satisfied into the ready queue and refreshes their priorities.
func (o *Orchestrator) promoteDependents(ctx context.Context, taskID string) {
	dependents, err := o.graph.GetBlockedTasks(taskID)
	if err != nil {
		o.logger.Log("[swarm.promote] failed to list dependents of %s: %v", taskID, err)
		return
	}
	if len(dependents) == 0 {
		return
	}

	for _, depID := range dependents {
		dep, err := o.store.GetTask(depID)
		if err != nil {
			o.logger.Log("[swarm.promote] failed to fetch dependent %s: %v", depID, err)
			continue
		}
		if dep.Status != models.TaskStatusPending && dep.Status != models.TaskStatusBlocked {
			continue
		}
		met, err := o.graph.AllDependenciesMet(depID)
		if err != nil {
			o.logger.Log("[swarm.promote] dependency check for %s failed: %v", depID, err)
			continue
		}
		if !met {
			continue
		}
		if err := o.store.UpdateStatusRetry(ctx, depID, models.TaskStatusReady, o.retry); err != nil {
			o.logger.Log("[swarm.promote] failed to mark task %s ready: %v", depID, err)
			continue
		}
		o.emitter.Emit(Event{Type: EventTaskReady, TaskID: depID, Timestamp: time.Now()})
	}

	if _, err := o.scorer.RecalculatePriorities(ctx, dependents); err != nil {
		o.logger.Log("[swarm.promote] priority recalculation failed: %v", err)
	}
}

// ResolveReadiness is the explicit resolution pass: every pending or
// blocked task whose dependencies are satisfied is promoted to ready, and
// pending tasks with unmet dependencies are parked as blocked. Scanned
// tasks get their priorities refreshed so the ready queue reflects current
// scores. Returns the number of tasks promoted.
func (o *Orchestrator) ResolveReadiness(ctx context.Context) (int, error) {
	promoted := 0
	var scanned []string

	for _, status := range []models.TaskStatus{models.TaskStatusPending, models.TaskStatusBlocked} {
		st := status
		tasks, err := o.store.ListTasks(&st, 0)
		if err != nil {
			return promoted, fmt.Errorf("list %s tasks: %w", st, err)
		}
		for i := range tasks {
			task := &tasks[i]
			scanned = append(scanned, task.ID)

			met, err := o.graph.AllDependenciesMet(task.ID)
			if err != nil {
				o.logger.Log("[swarm.resolve] dependency check for %s failed: %v", task.ID, err)
				continue
			}
			switch {
			case met:
				if err := o.store.UpdateStatusRetry(ctx, task.ID, models.TaskStatusReady, o.retry); err != nil {
					o.logger.Log("[swarm.resolve] failed to mark task %s ready: %v", task.ID, err)
					continue
				}
				promoted++
				o.emitter.Emit(Event{Type: EventTaskReady, TaskID: task.ID, Timestamp: time.Now()})
			case task.Status == models.TaskStatusPending:
				// Park until its dependencies resolve.
				if err := o.store.UpdateStatusRetry(ctx, task.ID, models.TaskStatusBlocked, o.retry); err != nil {
					o.logger.Log("[swarm.resolve] failed to park task %s: %v", task.ID, err)
				}
			}
		}
	}

	if len(scanned) > 0 {
		if _, err := o.scorer.RecalculatePriorities(ctx, scanned); err != nil {
			return promoted, fmt.Errorf("recalculate priorities: %w", err)
		}
	}
	return promoted, nil
}

// Cancel cancels a task and cascades to every transitive dependent.
// Running executions are signalled and settle through the usual completion
// path; queued tasks are marked cancelled directly. Dependents that cannot
// be cancelled are reported in the returned error rather than silently
// skipped. Returns the IDs that were cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) ([]string, error) {
	if _, err := o.store.GetTask(taskID); err != nil {
		return nil, fmt.Errorf("cancel task %s: %w", taskID, err)
	}

	dependents, err := o.transitiveDependents(taskID)
	if err != nil {
		return nil, err
	}
	targets := append([]string{taskID}, dependents...)

	var cancelled []string
	var failures []error
	for _, id := range targets {
		ok, err := o.cancelOne(ctx, id)
		if err != nil {
			failures = append(failures, fmt.Errorf("cancel %s: %w", id, err))
			continue
		}
		if ok {
			cancelled = append(cancelled, id)
		}
	}

	if len(failures) > 0 {
		return cancelled, errors.Join(failures...)
	}
	return cancelled, nil
}

// transitiveDependents walks the reverse dependency relation breadth-first.
func (o *Orchestrator) transitiveDependents(taskID string) ([]string, error) {
	var order []string
	seen := map[string]bool{taskID: true}
	queue := []string{taskID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		deps, err := o.graph.GetBlockedTasks(id)
		if err != nil {
			return nil, fmt.Errorf("resolve dependents of %s: %w", id, err)
		}
		for _, d := range deps {
			if seen[d] {
				continue
			}
			seen[d] = true
			order = append(order, d)
			queue = append(queue, d)
		}
	}
	return order, nil
}

// cancelOne cancels a single task. Returns false when the task is already
// terminal and there was nothing to do.
func (o *Orchestrator) cancelOne(ctx context.Context, id string) (bool, error) {
	o.mu.Lock()
	exec, inFlight := o.active[id]
	o.mu.Unlock()
	if inFlight {
		// Best effort: signal the executor and let the outcome settle
		// through the completion path.
		exec.cancel()
		return true, nil
	}

	task, err := o.store.GetTask(id)
	if err != nil {
		return false, err
	}
	if task.Status.IsTerminal() {
		return false, nil
	}
	if err := o.store.UpdateStatusRetry(ctx, id, models.TaskStatusCancelled, o.retry); err != nil {
		return false, err
	}

	o.graph.Invalidate(id)
	o.emitter.Emit(Event{
		Type:      EventTaskCancelled,
		TaskID:    id,
		Message:   "cancelled before execution",
		Timestamp: time.Now(),
	})
	return true, nil
}

// cancelInflight signals every in-flight execution. Used when the run
// context is cancelled.
func (o *Orchestrator) cancelInflight() {
	o.mu.Lock()
	for _, exec := range o.active {
		exec.cancel()
	}
	o.mu.Unlock()
}

// Stop signals the dispatch loop to stop admitting work and waits for
// in-flight executions to settle. With a StopTimeout configured, Stop
// returns an error if executions are still in flight when it expires.
// Safe to call when the swarm is not running.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	if !o.stopRequested {
		o.stopRequested = true
		close(o.stopCh)
	}
	doneCh := o.doneCh
	o.mu.Unlock()

	if o.config.StopTimeout > 0 {
		select {
		case <-doneCh:
			return nil
		case <-time.After(o.config.StopTimeout):
			return fmt.Errorf("stop timed out after %s with %d executions in flight",
				o.config.StopTimeout, o.ActiveCount())
		}
	}

	<-doneCh
	return nil
}

// Reset clears execution bookkeeping between independent runs. It must
// not be called during an active run.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrResetWhileRunning
	}
	o.active = make(map[string]*execution)
	o.results = make(map[string]*models.ExecutionResult)
	o.completedCount = 0
	return nil
}

// Status reports the current run state and queue composition.
func (o *Orchestrator) Status() (*Status, error) {
	stats, err := o.store.CountByStatus()
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}

	o.mu.Lock()
	s := &Status{
		Running:        o.running,
		ActiveCount:    len(o.active),
		CompletedCount: o.completedCount,
		QueueStats:     stats,
	}
	for id := range o.active {
		s.ActiveTaskIDs = append(s.ActiveTaskIDs, id)
	}
	o.mu.Unlock()

	sort.Strings(s.ActiveTaskIDs)
	return s, nil
}

// Running reports whether the dispatch loop is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// CompletedCount returns the number of settled executions this run.
func (o *Orchestrator) CompletedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completedCount
}

// ActiveCount returns the number of in-flight executions.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Result returns the recorded execution result for a task, if any.
func (o *Orchestrator) Result(taskID string) (*models.ExecutionResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.results[taskID]
	return r, ok
}

// wake nudges the dispatch loop out of its idle wait.
func (o *Orchestrator) wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}
