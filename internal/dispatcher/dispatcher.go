// Package dispatcher runs detection jobs on a bounded worker pool.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/detector"
	"behavior-backend/internal/metrics"
	"behavior-backend/internal/models"
	"behavior-backend/internal/store"

	"go.uber.org/zap"
)

// ErrStopped is returned by Submit once Stop has begun.
var ErrStopped = errors.New("dispatcher is stopping")

// Records is the subset of the record store the dispatcher writes through.
type Records interface {
	Create(ctx context.Context, rec *models.DetectionRecord) error
	SetThumbnail(ctx context.Context, id uint, path string) error
	Complete(ctx context.Context, id uint, c store.Completion) error
	Fail(ctx context.Context, id uint, message string) error
}

// Detector performs one inference call.
type Detector interface {
	Detect(ctx context.Context, req detector.Request) ([]byte, *detector.Result, error)
}

// Options sizes the pool.
type Options struct {
	Workers    int
	QueueSize  int
	FFmpegPath string // empty disables video thumbnails
}

type task struct {
	recordID   uint
	ownerID    uint
	sourceType string
	mediaPath  string
}

// Dispatcher owns the task queue and its workers. Each task is the only
// writer of its record's terminal state.
type Dispatcher struct {
	records  Records
	detector Detector
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics

	tasks    chan task
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.RWMutex
	started  bool
	stopping bool
}

// New returns a dispatcher. Call Start before Submit.
func New(records Records, det Detector, opts Options, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	return &Dispatcher{
		records:  records,
		detector: det,
		opts:     opts,
		logger:   logger.With(zap.String("component", "dispatcher")),
		metrics:  m,
		tasks:    make(chan task, opts.QueueSize),
		quit:     make(chan struct{}),
	}
}

// Start launches the workers. It is a no-op when already started.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopping {
		return
	}
	d.started = true
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("dispatcher started",
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue_size", d.opts.QueueSize),
	)
}

// Submit persists a PROCESSING record and queues its detection. It returns
// before inference runs. While the queue is full Submit blocks until space
// frees or ctx ends; in the latter case, and after Stop has begun, the record
// is failed so it never stays PROCESSING, and the error is returned.
func (d *Dispatcher) Submit(ctx context.Context, ownerID uint, sourceType, mediaPath string) (*models.DetectionRecord, error) {
	if !models.ValidSourceType(sourceType) {
		return nil, apperr.Validation("dispatcher.submit", "unsupported source type %q", sourceType)
	}
	if mediaPath == "" {
		return nil, apperr.Validation("dispatcher.submit", "media path is required")
	}

	rec := &models.DetectionRecord{
		UserID:     ownerID,
		SourceType: sourceType,
		MediaPath:  &mediaPath,
	}
	if err := d.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	d.metrics.JobSubmitted(sourceType)

	t := task{recordID: rec.ID, ownerID: ownerID, sourceType: sourceType, mediaPath: mediaPath}
	if err := d.enqueue(ctx, t); err != nil {
		d.reject(ctx, rec, err)
		return rec, fmt.Errorf("failed to queue detection job %d: %w", rec.ID, err)
	}

	d.logger.Info("detection job queued",
		zap.Uint("record_id", rec.ID),
		zap.Uint("user_id", ownerID),
		zap.String("source_type", sourceType),
	)
	return rec, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, t task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopping || !d.started {
		return ErrStopped
	}
	select {
	case <-d.quit:
		return ErrStopped
	default:
	}
	select {
	case d.tasks <- t:
		d.metrics.SetQueueDepth(len(d.tasks))
		return nil
	case <-d.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reject fails a record that never reached a worker.
func (d *Dispatcher) reject(ctx context.Context, rec *models.DetectionRecord, cause error) {
	msg := "dispatch rejected: " + cause.Error()
	if err := d.records.Fail(context.WithoutCancel(ctx), rec.ID, msg); err != nil {
		d.logger.Error("failed to mark rejected job as failed", zap.Uint("record_id", rec.ID), zap.Error(err))
		return
	}
	rec.Status = models.StatusFailed
	rec.ErrorMessage = &msg
	d.metrics.JobFinished("rejected")
	d.logger.Warn("detection job rejected", zap.Uint("record_id", rec.ID), zap.Error(cause))
}

// Stop refuses new submissions, lets the workers drain the queue and waits
// for them. It returns ctx.Err() if ctx ends first; workers keep draining.
func (d *Dispatcher) Stop(ctx context.Context) error {
	// wake submitters blocked on a full queue before taking the write lock
	d.quitOnce.Do(func() { close(d.quit) })

	d.mu.Lock()
	if !d.stopping {
		d.stopping = true
		close(d.tasks)
		d.logger.Info("dispatcher stopping", zap.Int("queued", len(d.tasks)))
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
