package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/repositories"
)

const (
	TaskExtractText        = "extract_text"
	TaskGenerateEmbeddings = "generate_embeddings"
	TaskEvaluate           = "evaluate"
)

var ErrWorkerStopped = errors.New("worker stopped")

// Task is the unit moved through a Broker. ID is a document id for the
// document tasks and an evaluation job id for evaluate.
type Task struct {
	Name string    `json:"name"`
	ID   uuid.UUID `json:"id"`
}

type TaskHandler func(ctx context.Context, id uuid.UUID) error

type TaskEnqueuer interface {
	Enqueue(ctx context.Context, name string, id uuid.UUID) error
}

// Delivery is a consumed task. Exactly one of Ack or Nack must be called.
type Delivery struct {
	Task Task
	Ack  func() error
	Nack func(requeue bool) error
}

type Broker interface {
	Publish(ctx context.Context, task Task) error
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

type taskRegistry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{handlers: make(map[string]TaskHandler)}
}

func (r *taskRegistry) Register(name string, handler TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Run invokes the handler for name once, synchronously.
func (r *taskRegistry) Run(ctx context.Context, name string, id uuid.UUID) error {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return Permanent(fmt.Errorf("%w: no handler registered for task %q", ErrInvalidArgument, name))
	}

	return handler(ctx, id)
}

// InlineQueue runs every enqueued task immediately in the caller's goroutine.
// The ingest script uses it so extraction and embedding finish before it exits.
type InlineQueue struct {
	*taskRegistry
}

func NewInlineQueue() *InlineQueue {
	return &InlineQueue{taskRegistry: newTaskRegistry()}
}

func (q *InlineQueue) Enqueue(ctx context.Context, name string, id uuid.UUID) error {
	return q.Run(ctx, name, id)
}

type Worker interface {
	TaskEnqueuer
	Register(name string, handler TaskHandler)
	Run(ctx context.Context, name string, id uuid.UUID) error
	Start(ctx context.Context) error
	Stop()
}

type WorkerOptions struct {
	Concurrency  int
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	StaleAfter   time.Duration
}

type worker struct {
	*taskRegistry

	broker   Broker
	evalRepo repositories.EvaluationRepository
	opts     WorkerOptions

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
	cancel   context.CancelFunc
}

func NewWorker(broker Broker, evalRepo repositories.EvaluationRepository, opts WorkerOptions) Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	return &worker{
		taskRegistry: newTaskRegistry(),
		broker:       broker,
		evalRepo:     evalRepo,
		opts:         opts,
		stopChan:     make(chan struct{}),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) error {
	consumeCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	deliveries, err := w.broker.Consume(consumeCtx)
	if err != nil {
		w.cancel()
		return fmt.Errorf("failed to start consuming tasks: %w", err)
	}

	logrus.Infof("🚀 Starting worker with %d concurrent workers", w.opts.Concurrency)

	for i := 0; i < w.opts.Concurrency; i++ {
		w.wg.Add(1)
		go w.processTasks(ctx, i+1, deliveries)
	}

	if w.evalRepo != nil && w.opts.PollInterval > 0 {
		w.wg.Add(1)
		go w.pollStaleJobs(ctx)
	}

	logrus.Info("✅ Worker started successfully")
	return nil
}

// Stop stops consuming and waits for in-flight tasks to finish. Tasks waiting
// for a retry are handed back to the broker.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		logrus.Info("🛑 Stopping worker...")
		close(w.stopChan)
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		logrus.Info("✅ Worker stopped")
	})
}

// Enqueue implements TaskEnqueuer.
func (w *worker) Enqueue(ctx context.Context, name string, id uuid.UUID) error {
	select {
	case <-w.stopChan:
		logrus.WithFields(logrus.Fields{"task": name, "id": id}).Warn("⚠️  Worker stopped, cannot enqueue task")
		return ErrWorkerStopped
	default:
	}

	if err := w.broker.Publish(ctx, Task{Name: name, ID: id}); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{"task": name, "id": id}).Debug("📥 Task enqueued")
	return nil
}

func (w *worker) processTasks(ctx context.Context, workerID int, deliveries <-chan Delivery) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			logrus.Debugf("👷 Worker #%d stopped", workerID)
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, workerID, delivery)
		}
	}
}

// handle runs the task until it succeeds, fails permanently or runs out of
// attempts. A stop during backoff requeues the delivery instead.
func (w *worker) handle(ctx context.Context, workerID int, delivery Delivery) {
	log := logrus.WithFields(logrus.Fields{
		"worker": workerID,
		"task":   delivery.Task.Name,
		"id":     delivery.Task.ID,
	})

	for attempt := 1; ; attempt++ {
		err := w.Run(ctx, delivery.Task.Name, delivery.Task.ID)
		if err == nil {
			log.WithField("attempt", attempt).Info("✅ Task completed")
			w.settle(log, delivery.Ack)
			return
		}

		if IsPermanent(err) {
			log.WithError(err).Error("❌ Task failed permanently")
			w.settle(log, delivery.Ack)
			return
		}

		if attempt >= w.opts.MaxAttempts {
			log.WithError(err).WithField("attempts", attempt).Error("❌ Task failed, retries exhausted")
			w.settle(log, delivery.Ack)
			return
		}

		delay := w.backoff(attempt)
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("⚠️  Task failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-w.stopChan:
			timer.Stop()
			w.settle(log, func() error { return delivery.Nack(true) })
			return
		case <-timer.C:
		}
	}
}

func (w *worker) settle(log *logrus.Entry, fn func() error) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		log.WithError(err).Warn("⚠️  Failed to settle delivery")
	}
}

// backoff is InitialDelay * 2^(attempt-1), capped at MaxDelay.
func (w *worker) backoff(attempt int) time.Duration {
	delay := w.opts.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if w.opts.MaxDelay > 0 && delay >= w.opts.MaxDelay {
			return w.opts.MaxDelay
		}
	}
	if w.opts.MaxDelay > 0 && delay > w.opts.MaxDelay {
		return w.opts.MaxDelay
	}
	return delay
}

func (w *worker) pollStaleJobs(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	logrus.Debug("🔄 Starting stale jobs poller")

	for {
		select {
		case <-w.stopChan:
			logrus.Debug("🔄 Stale jobs poller stopped")
			return
		case <-ticker.C:
			w.requeueStaleJobs(ctx)
		}
	}
}

func (w *worker) requeueStaleJobs(ctx context.Context) {
	staleJobs, err := w.evalRepo.FindStaleQueued(ctx, time.Now().Add(-w.opts.StaleAfter), 10)
	if err != nil {
		logrus.WithError(err).Warn("⚠️  Failed to fetch stale jobs")
		return
	}

	if len(staleJobs) > 0 {
		logrus.Infof("📋 Found %d stale queued jobs", len(staleJobs))
	}

	for _, job := range staleJobs {
		if err := w.Enqueue(ctx, TaskEvaluate, job.ID); err != nil {
			logrus.WithError(err).WithField("job_id", job.JobID).Warn("⚠️  Failed to re-enqueue stale job")
		}
	}
}

// memoryBroker is an in-process channel. Tasks are lost on restart; the stale
// job poller re-enqueues evaluations that were queued but never picked up.
type memoryBroker struct {
	tasks     chan Task
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryBroker(buffer int) Broker {
	if buffer <= 0 {
		buffer = 100
	}
	return &memoryBroker{
		tasks: make(chan Task, buffer),
		done:  make(chan struct{}),
	}
}

func (b *memoryBroker) Publish(ctx context.Context, task Task) error {
	select {
	case <-b.done:
		return ErrWorkerStopped
	default:
	}

	select {
	case b.tasks <- task:
		return nil
	case <-b.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *memoryBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case task := <-b.tasks:
				delivery := Delivery{
					Task: task,
					Ack:  func() error { return nil },
					Nack: func(requeue bool) error {
						if !requeue {
							return nil
						}
						select {
						case b.tasks <- task:
						default:
							logrus.WithField("task", task.Name).Warn("⚠️  Task buffer full, dropping requeued task")
						}
						return nil
					},
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					return
				case <-b.done:
					return
				}
			}
		}
	}()

	return out, nil
}

func (b *memoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
