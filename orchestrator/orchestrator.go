// Package orchestrator implements the task queue and processor
// cancellation surface spec.md §4.5 describes: a single-worker FIFO
// queue, cooperative stop signals keyed by processor tag, short-lived
// status snapshots, and the two cron-driven task chains that submit
// their stage sequence onto the queue. Grounded on the teacher's
// services/scheduler + services/jobs pairing (a cron-driven trigger
// layer over a worker that reports status under a short lock), adapted
// from a goroutine-per-job model onto a single serialized worker so
// long library scans never overlap.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mediabridge/logging"
	"mediabridge/metrics"
	"mediabridge/schedule"
)

// TaskFunc is one unit of queued work. It must check StopRequested(tag)
// cooperatively at loop boundaries and batch edges, per spec.md §4.5.
type TaskFunc func(ctx context.Context) error

// task is one queued (task_fn, display_name, processor_tag) triple.
type task struct {
	fn          TaskFunc
	displayName string
	processor   string
	submittedAt time.Time
}

// Status is the orchestrator's short-lived snapshot, read by the API
// without blocking on whatever task is currently running.
type Status struct {
	IsRunning     bool
	CurrentAction string
	Progress      int
	Message       string
	LastAction    string
}

// Orchestrator owns the FIFO queue, the single worker goroutine
// draining it, and the per-processor stop-signal registry.
type Orchestrator struct {
	queue chan task

	statusMu sync.Mutex
	status   Status

	stopMu sync.Mutex
	stop   map[string]bool

	wg sync.WaitGroup
}

// New creates an Orchestrator with a buffered queue; submission never
// blocks as long as the buffer has room (spec.md §4.5 "submission
// never blocks").
func New(queueDepth int) *Orchestrator {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Orchestrator{
		queue: make(chan task, queueDepth),
		stop:  make(map[string]bool),
	}
}

// Run starts the single worker goroutine; it drains the queue until
// ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-o.queue:
				if !ok {
					return
				}
				o.execute(ctx, t)
			}
		}
	}()
}

// Stop closes the queue once drained and waits for the worker to exit.
func (o *Orchestrator) Stop() {
	close(o.queue)
	o.wg.Wait()
}

// Submit enqueues fn under displayName/processorTag. It never blocks
// unless the buffer is genuinely full, at which point backpressure is
// the correct behavior (a saturated queue signals real overload).
func (o *Orchestrator) Submit(fn TaskFunc, displayName, processorTag string) {
	o.queue <- task{fn: fn, displayName: displayName, processor: processorTag, submittedAt: time.Now()}
}

// SignalStop marks processorTag's cooperative stop flag; a currently
// running or queued task for that tag should abort at its next
// checkpoint, spec.md §4.5 "signal_stop() / is_stop_requested()".
func (o *Orchestrator) SignalStop(processorTag string) {
	o.stopMu.Lock()
	o.stop[processorTag] = true
	o.stopMu.Unlock()
}

// StopRequested reports whether processorTag's flag is set. Tasks call
// this at loop boundaries and batch edges.
func (o *Orchestrator) StopRequested(processorTag string) bool {
	o.stopMu.Lock()
	defer o.stopMu.Unlock()
	return o.stop[processorTag]
}

func (o *Orchestrator) clearStop(processorTag string) {
	o.stopMu.Lock()
	delete(o.stop, processorTag)
	o.stopMu.Unlock()
}

// SetProgress updates the in-flight task's progress/message under the
// status lock; callers should coalesce their own update rate, spec.md
// §4.5 "Progress updates are coalesced at the caller".
func (o *Orchestrator) SetProgress(progress int, message string) {
	o.statusMu.Lock()
	o.status.Progress = progress
	o.status.Message = message
	o.statusMu.Unlock()
}

// Snapshot returns the current status under the short lock.
func (o *Orchestrator) Snapshot() Status {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.status
}

func (o *Orchestrator) execute(ctx context.Context, t task) {
	defer o.clearStop(t.processor)

	o.statusMu.Lock()
	o.status = Status{IsRunning: true, CurrentAction: t.displayName, Progress: 0}
	o.statusMu.Unlock()

	taskCtx, log := logging.WithTask(ctx, t.displayName)
	start := time.Now()
	err := t.fn(taskCtx)
	elapsed := time.Since(start)

	final := Status{IsRunning: false, CurrentAction: t.displayName}
	switch {
	case err != nil && ctx.Err() != nil:
		final.Message = "任务已成功中断"
		log.Info().Dur("elapsed", elapsed).Msg("task cancelled")
	case err != nil:
		final.Message = fmt.Sprintf("出错: %v", err)
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("task failed")
	default:
		final.Progress = 100
		final.Message = "处理完成"
		log.Info().Dur("elapsed", elapsed).Msg("task finished")
	}
	final.LastAction = t.displayName

	o.statusMu.Lock()
	o.status = final
	o.statusMu.Unlock()
}

// Stage is one named unit of a task chain's sequence.
type Stage struct {
	Name string
	Tag  string
	Run  TaskFunc
}

// Chain runs its Sequence in order when fired by the scheduler,
// stopping at the end, on cancellation, or once MaxRuntime elapses
// (0 = unbounded), spec.md §4.5 "Task chains".
type Chain struct {
	Name       string
	Cron       string
	Sequence   []Stage
	MaxRuntime time.Duration
}

// RegisterChains wires the high-frequency and low-frequency chains
// plus the fixed weekly revival check onto sched, each chain's stages
// submitted to o in order and sharing one stop signal keyed by the
// chain's own name.
func RegisterChains(sched *schedule.Scheduler, o *Orchestrator, chains []Chain, revivalCheck Stage, revivalCron string) error {
	for _, chain := range chains {
		chain := chain
		job := func(ctx context.Context) error {
			return runChain(ctx, o, chain)
		}
		if err := sched.Register(chain.Name, chain.Cron, chain.MaxRuntime, job); err != nil {
			return err
		}
	}
	if revivalCron == "" {
		revivalCron = "0 5 * * sun"
	}
	revivalJob := func(ctx context.Context) error {
		o.Submit(revivalCheck.Run, revivalCheck.Name, revivalCheck.Tag)
		return nil
	}
	return sched.Register("revival-check", revivalCron, 0, revivalJob)
}

// runChain drives chain.Sequence to completion, honoring the shared
// stop signal and the chain's own wall-clock budget.
func runChain(ctx context.Context, o *Orchestrator, chain Chain) error {
	var deadline time.Time
	if chain.MaxRuntime > 0 {
		deadline = time.Now().Add(chain.MaxRuntime)
	}
	for _, stage := range chain.Sequence {
		if o.StopRequested(chain.Name) {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}
		done := make(chan struct{})
		o.Submit(func(taskCtx context.Context) error {
			defer close(done)
			start := time.Now()
			err := stage.Run(taskCtx)
			metrics.RecordTaskStage(chain.Name, stage.Name, time.Since(start), err)
			return err
		}, stage.Name, stage.Tag)
		<-done
	}
	return nil
}
