package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxDefaultWorkers caps the hardware derived default pool size.
	MaxDefaultWorkers = 32
	QueueRatio        = 3
)

// DefaultWorkers returns min(32, NumCPU).
func DefaultWorkers() int {
	return min(MaxDefaultWorkers, runtime.NumCPU())
}

type SchedulerOptions struct {
	Workers int
	// QueueSize bounds the job channel. Zero means Workers*QueueRatio.
	QueueSize int
	// TaskTimeout bounds a single conversion. Zero disables it.
	TaskTimeout time.Duration
	// OnOutcome is called once per task as outcomes arrive. Calls are
	// serialized by the scheduler.
	OnOutcome func(Outcome)
}

// Progress counts finished tasks. It is owned by a Scheduler and only
// mutated through atomic increments.
type Progress struct {
	total  atomic.Int64
	done   atomic.Int64
	failed atomic.Int64
}

func (p *Progress) reset(total int) {
	p.total.Store(int64(total))
	p.done.Store(0)
	p.failed.Store(0)
}

func (p *Progress) add(o Outcome) {
	if !o.Succeeded() {
		p.failed.Add(1)
	}
	p.done.Add(1)
}

func (p *Progress) Total() int  { return int(p.total.Load()) }
func (p *Progress) Done() int   { return int(p.done.Load()) }
func (p *Progress) Failed() int { return int(p.failed.Load()) }

type Scheduler struct {
	conv     Converter
	opts     SchedulerOptions
	progress Progress
	notifyMu sync.Mutex
}

func NewScheduler(conv Converter, opts SchedulerOptions) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers * QueueRatio
	}
	return &Scheduler{conv: conv, opts: opts}
}

func (s *Scheduler) Workers() int { return s.opts.Workers }

func (s *Scheduler) Progress() *Progress { return &s.progress }

// Run converts every task on a pool of at most Workers goroutines and
// returns one outcome per task, in task order. It returns only after every
// task has an outcome and every conversion goroutine has returned. Cancelling
// ctx turns the tasks that have not started yet into failures.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	s.progress.reset(len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	numWorkers := min(s.opts.Workers, len(tasks))
	jobs := make(chan int, min(s.opts.QueueSize, len(tasks)))
	r := &run{
		tasks:    tasks,
		outcomes: outcomes,
		slots:    make(chan struct{}, numWorkers),
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go s.worker(ctx, jobs, r, &wg)
	}

	go func() {
		defer close(jobs)
		for i := range tasks {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()
	r.abandoned.Wait()

	for i := range outcomes {
		if outcomes[i].Status != 0 {
			continue
		}
		t := tasks[i]
		err := fmt.Errorf("%w: %s: task was never run", ErrWorker, t.Source.RelPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%s: %w", t.Source.RelPath, ctxErr)
		}
		s.record(r, i, Outcome{Task: t, Status: StatusFailure, Err: err, Started: time.Now()})
	}

	return outcomes
}

// run is the state of a single Run call.
type run struct {
	tasks    []Task
	outcomes []Outcome
	// slots holds one token per conversion in flight. A token is returned
	// when the conversion goroutine returns, even if its outcome was
	// already reported as a timeout.
	slots     chan struct{}
	abandoned sync.WaitGroup
}

func (r *run) acquire() { r.slots <- struct{}{} }
func (r *run) release() { <-r.slots }

func (s *Scheduler) worker(ctx context.Context, jobs <-chan int, r *run, wg *sync.WaitGroup) {
	defer wg.Done()

	for i := range jobs {
		t := r.tasks[i]
		r.acquire()
		if err := ctx.Err(); err != nil {
			r.release()
			s.record(r, i, Outcome{
				Task:    t,
				Status:  StatusFailure,
				Err:     fmt.Errorf("%s: %w", t.Source.RelPath, err),
				Started: time.Now(),
			})
			continue
		}
		s.record(r, i, s.execute(ctx, r, t))
	}
}

// record stores the outcome of task i. Each index is owned by the worker
// that received it from the job channel, so slots are written once.
func (s *Scheduler) record(r *run, i int, o Outcome) {
	r.outcomes[i] = o
	s.progress.add(o)

	if s.opts.OnOutcome == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.opts.OnOutcome(o)
}

// execute runs t while holding a pool slot and releases it when the
// conversion returns.
func (s *Scheduler) execute(ctx context.Context, r *run, t Task) Outcome {
	if s.opts.TaskTimeout <= 0 {
		defer r.release()
		return s.guard(ctx, t)
	}

	tctx, cancel := context.WithTimeout(ctx, s.opts.TaskTimeout)

	started := time.Now()
	done := make(chan Outcome, 1)
	go func() {
		defer r.release()
		defer cancel()
		done <- s.guard(tctx, t)
	}()

	select {
	case o := <-done:
		return s.classify(ctx, tctx, t, o)
	case <-tctx.Done():
	}

	select {
	case o := <-done:
		return s.classify(ctx, tctx, t, o)
	default:
	}

	// The outcome is reported now. A conversion that still commits its
	// output afterwards has that output removed.
	r.abandoned.Add(1)
	go func() {
		defer r.abandoned.Done()
		if o := <-done; o.Succeeded() {
			if d, ok := s.conv.(Discarder); ok {
				_ = d.Discard(t)
			}
		}
	}()

	err := fmt.Errorf("%w: %s: exceeded %s", ErrTimeout, t.Source.RelPath, s.opts.TaskTimeout)
	if !errors.Is(tctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%s: %w", t.Source.RelPath, tctx.Err())
	}
	return Outcome{
		Task:     t,
		Status:   StatusFailure,
		Err:      err,
		Started:  started,
		Duration: time.Since(started),
	}
}

// classify tags a failure caused by the task deadline as a timeout.
func (s *Scheduler) classify(ctx, tctx context.Context, t Task, o Outcome) Outcome {
	if !o.Succeeded() && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		o.Err = fmt.Errorf("%w: %s: exceeded %s: %v", ErrTimeout, t.Source.RelPath, s.opts.TaskTimeout, o.Err)
	}
	return o
}

// guard runs the converter and turns a panic or a malformed outcome into a
// worker failure.
func (s *Scheduler) guard(ctx context.Context, t Task) (out Outcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Task:     t,
				Status:   StatusFailure,
				Err:      fmt.Errorf("%w: %s: %v", ErrWorker, t.Source.RelPath, r),
				Started:  started,
				Duration: time.Since(started),
			}
		}
	}()

	out = s.conv.Convert(ctx, t)
	out.Task = t
	if out.Started.IsZero() {
		out.Started = started
		out.Duration = time.Since(started)
	}

	switch {
	case out.Status == StatusSuccess && out.Err == nil:
	case out.Status == StatusFailure && out.Err != nil:
	case out.Err != nil:
		out.Status = StatusFailure
	default:
		out.Status = StatusFailure
		out.Err = fmt.Errorf("%w: %s: converter returned no result", ErrWorker, t.Source.RelPath)
	}
	return out
}
