package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"behavior-backend/internal/detector"
	"behavior-backend/internal/models"
	"behavior-backend/internal/store"
	"behavior-backend/internal/utils"

	"go.uber.org/zap"
)

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	log := d.logger.With(zap.Int("worker", id))
	for t := range d.tasks {
		d.metrics.SetQueueDepth(len(d.tasks))
		d.run(log, t)
	}
}

// run processes one task. In-flight jobs are never cancelled.
func (d *Dispatcher) run(log *zap.Logger, t task) {
	ctx := context.Background()
	log = log.With(zap.Uint("record_id", t.recordID))

	d.metrics.WorkerBusy(1)
	defer d.metrics.WorkerBusy(-1)
	defer func() {
		if r := recover(); r != nil {
			log.Error("detection job panicked", zap.Any("panic", r))
			d.fail(ctx, log, t, fmt.Errorf("internal error: %v", r))
		}
	}()

	if t.sourceType == models.SourceVideo && d.opts.FFmpegPath != "" {
		d.thumbnail(ctx, log, t)
	}

	start := time.Now()
	raw, result, err := d.detector.Detect(ctx, detector.Request{
		FilePath:   t.mediaPath,
		SourceType: t.sourceType,
		UserID:     t.ownerID,
		RecordID:   t.recordID,
	})
	d.metrics.ObserveDetector(time.Since(start), err)
	if err != nil {
		d.fail(ctx, log, t, err)
		return
	}

	err = d.records.Complete(ctx, t.recordID, store.Completion{
		HasAbnormal:      result.HasAbnormal,
		BehaviorType:     result.BehaviorType,
		Confidence:       result.Confidence,
		VisualizationURL: result.VisualizationURL,
		Raw:              raw,
		Behaviors:        result.Behaviors(),
	})
	switch {
	case err == nil:
		d.metrics.JobFinished("completed")
		log.Info("detection job completed",
			zap.Bool("has_abnormal", result.HasAbnormal),
			zap.Duration("elapsed", time.Since(start)),
		)
	case errors.Is(err, store.ErrNotProcessing):
		log.Warn("record left PROCESSING before completion", zap.Error(err))
	default:
		d.fail(ctx, log, t, fmt.Errorf("failed to store detection result: %w", err))
	}
}

func (d *Dispatcher) fail(ctx context.Context, log *zap.Logger, t task, cause error) {
	err := d.records.Fail(ctx, t.recordID, cause.Error())
	switch {
	case err == nil:
		d.metrics.JobFinished("failed")
		log.Warn("detection job failed", zap.Error(cause))
	case errors.Is(err, store.ErrNotProcessing):
		log.Warn("record left PROCESSING before failure", zap.Error(cause))
	default:
		log.Error("failed to mark detection job failed", zap.NamedError("cause", cause), zap.Error(err))
	}
}

// thumbnail grabs a preview frame for a video. Failures are logged only.
func (d *Dispatcher) thumbnail(ctx context.Context, log *zap.Logger, t task) {
	path := utils.ThumbnailPathFor(t.mediaPath)
	if err := utils.GenerateThumbnail(ctx, log, t.mediaPath, path, 1, d.opts.FFmpegPath); err != nil {
		log.Warn("thumbnail generation failed", zap.Error(err))
		return
	}
	if err := d.records.SetThumbnail(ctx, t.recordID, path); err != nil {
		log.Warn("failed to store thumbnail path", zap.Error(err))
	}
}
