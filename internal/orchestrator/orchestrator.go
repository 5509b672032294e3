// Package orchestrator owns the lifecycle of video-generation jobs: it
// decomposes submissions into per-segment tasks, records completions as
// they arrive in any order, and assembles the final artifact exactly once
// when the last segment resolves.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/jobstore"
)

const (
	// MaxSegmentsPerJob bounds a single submission
	MaxSegmentsPerJob = 50
	// MaxPromptLength bounds image prompts and narration text
	MaxPromptLength = 4000
)

// Store is the persistence surface the orchestrator depends on
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job, segments []domain.Segment) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetSegments(ctx context.Context, jobID string) ([]domain.Segment, error)
	CompleteSegment(ctx context.Context, jobID string, ordinal int, res domain.SegmentResult) (bool, error)
	MarkJobRunning(ctx context.Context, jobID string) error
	ClaimFinalize(ctx context.Context, jobID string) (bool, error)
	FinishJob(ctx context.Context, jobID, status, artifactKey, errorMsg string) error
	CancelJob(ctx context.Context, jobID string) (bool, error)
	ListJobs(ctx context.Context, filter jobstore.JobFilter) ([]domain.Job, error)
}

// Dispatcher hands segment tasks to the task-execution substrate
type Dispatcher interface {
	Dispatch(ctx context.Context, task domain.SegmentTask) error
}

// Composer assembles ordinal-ordered segment media into one artifact and
// returns its object key
type Composer interface {
	Compose(ctx context.Context, jobID string, media []domain.MediaPair) (string, error)
}

// Config holds orchestration policy
type Config struct {
	// MinSuccessRatio is the minimum fraction of segments that must have
	// succeeded for a job with failures to still be composed from the
	// succeeded subset.
	MinSuccessRatio float64
	// Voices lists the accepted voice identifiers; the first one is the
	// default for segments that leave the voice unset.
	Voices []string
}

// Orchestrator coordinates job submission, segment completion and finalization
type Orchestrator struct {
	store      Store
	dispatcher Dispatcher
	composer   Composer
	config     Config
	locks      jobLocks
	logger     *slog.Logger
}

// New creates an Orchestrator
func New(store Store, dispatcher Dispatcher, composer Composer, config Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		dispatcher: dispatcher,
		composer:   composer,
		config:     config,
		logger:     logger,
	}
}

// Submit validates a submission, persists the job with one segment per
// scene (ordinals assigned in submission order) and dispatches every
// segment task. It returns the job ID immediately; generation proceeds
// asynchronously.
func (o *Orchestrator) Submit(ctx context.Context, specs []domain.SegmentSpec) (string, error) {
	if err := o.validateSubmission(specs); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		JobID:        uuid.New().String(),
		Status:       domain.JobStatusPending,
		SegmentCount: len(specs),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	segments := make([]domain.Segment, len(specs))
	for i, spec := range specs {
		voice := spec.Voice
		if voice == "" {
			voice = o.config.Voices[0]
		}
		segments[i] = domain.Segment{
			SegmentID:   uuid.New().String(),
			JobID:       job.JobID,
			Ordinal:     i,
			ImagePrompt: spec.ImagePrompt,
			Narration:   spec.Narration,
			Voice:       voice,
			Status:      domain.SegmentStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	if err := o.store.CreateJob(ctx, job, segments); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	for _, seg := range segments {
		task := domain.SegmentTask{
			JobID:       seg.JobID,
			Ordinal:     seg.Ordinal,
			ImagePrompt: seg.ImagePrompt,
			Narration:   seg.Narration,
			Voice:       seg.Voice,
		}
		if err := o.dispatcher.Dispatch(ctx, task); err != nil {
			// The job exists but its remaining tasks cannot reach the
			// substrate; fail it rather than leave it pending forever.
			o.logger.Error("Failed to dispatch segment task",
				slog.String("job_id", job.JobID),
				slog.Int("ordinal", seg.Ordinal),
				slog.Any("error", err),
			)
			if ferr := o.store.FinishJob(ctx, job.JobID, domain.JobStatusFailed, "", "task dispatch failed: "+err.Error()); ferr != nil {
				o.logger.Error("Failed to mark job failed after dispatch error",
					slog.String("job_id", job.JobID),
					slog.Any("error", ferr),
				)
			}
			return "", fmt.Errorf("failed to dispatch segment %d: %w", seg.Ordinal, err)
		}
	}

	o.logger.Info("Job submitted",
		slog.String("job_id", job.JobID),
		slog.Int("segments", len(segments)),
	)

	return job.JobID, nil
}

func (o *Orchestrator) validateSubmission(specs []domain.SegmentSpec) error {
	if len(specs) == 0 {
		return domain.NewValidationError("at least one scene is required")
	}
	if len(specs) > MaxSegmentsPerJob {
		return domain.NewValidationError("too many scenes: %d (max %d)", len(specs), MaxSegmentsPerJob)
	}
	if len(o.config.Voices) == 0 {
		return fmt.Errorf("no voices configured")
	}

	for i, spec := range specs {
		if spec.ImagePrompt == "" {
			return domain.NewValidationError("scene %d: image prompt is required", i)
		}
		if len(spec.ImagePrompt) > MaxPromptLength {
			return domain.NewValidationError("scene %d: image prompt exceeds %d characters", i, MaxPromptLength)
		}
		if spec.Narration == "" {
			return domain.NewValidationError("scene %d: narration is required", i)
		}
		if len(spec.Narration) > MaxPromptLength {
			return domain.NewValidationError("scene %d: narration exceeds %d characters", i, MaxPromptLength)
		}
		if spec.Voice != "" && !o.voiceKnown(spec.Voice) {
			return domain.NewValidationError("scene %d: unknown voice %q", i, spec.Voice)
		}
	}

	return nil
}

func (o *Orchestrator) voiceKnown(voice string) bool {
	for _, v := range o.config.Voices {
		if v == voice {
			return true
		}
	}
	return false
}

// OnSegmentComplete records one segment's terminal outcome. Reports for
// segments that are already terminal never overwrite the recorded state,
// but still re-run the job evaluation: a report can fail after the
// terminal write lands, and the redelivered task is the only thing that
// will ever call back in, so it must be able to pick up the pending
// finalization. When all segments are terminal, finalization runs inline.
func (o *Orchestrator) OnSegmentComplete(ctx context.Context, jobID string, ordinal int, res domain.SegmentResult) error {
	unlock := o.locks.lock(jobID)
	defer unlock()

	applied, err := o.store.CompleteSegment(ctx, jobID, ordinal, res)
	if err != nil {
		return fmt.Errorf("failed to record segment completion: %w", err)
	}
	if !applied {
		o.logger.Debug("Segment already terminal, re-evaluating job",
			slog.String("job_id", jobID),
			slog.Int("ordinal", ordinal),
		)
	} else if err := o.store.MarkJobRunning(ctx, jobID); err != nil {
		o.logger.Warn("Failed to mark job running",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}

	segments, err := o.store.GetSegments(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load segments: %w", err)
	}

	for _, seg := range segments {
		if !domain.SegmentStatusTerminal(seg.Status) {
			return nil
		}
	}

	return o.finalize(ctx, jobID, segments)
}

// finalize composes the job's artifact and writes the terminal job state.
// The composing claim is a conditional store transition, so at most one
// caller per job ever gets here with claimed=true; cancelled jobs are
// never claimed.
func (o *Orchestrator) finalize(ctx context.Context, jobID string, segments []domain.Segment) error {
	claimed, err := o.store.ClaimFinalize(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to claim finalization: %w", err)
	}
	if !claimed {
		o.logger.Debug("Finalization already claimed or job terminal",
			slog.String("job_id", jobID),
		)
		return nil
	}

	var media []domain.MediaPair
	failed := 0
	for _, seg := range segments {
		switch seg.Status {
		case domain.SegmentStatusSucceeded:
			media = append(media, domain.MediaPair{
				Ordinal:  seg.Ordinal,
				ImageKey: seg.ImageKey,
				AudioKey: seg.AudioKey,
			})
		case domain.SegmentStatusFailed:
			failed++
		}
	}

	total := len(segments)
	succeeded := len(media)
	required := requiredSuccesses(total, o.config.MinSuccessRatio)

	if succeeded == 0 || succeeded < required {
		msg := fmt.Sprintf("%d of %d segments failed", failed, total)
		o.logger.Warn("Job failed below success threshold",
			slog.String("job_id", jobID),
			slog.Int("succeeded", succeeded),
			slog.Int("required", required),
		)
		return o.store.FinishJob(ctx, jobID, domain.JobStatusFailed, "", msg)
	}

	artifactKey, err := o.composer.Compose(ctx, jobID, media)
	if err != nil {
		o.logger.Error("Composition failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return o.store.FinishJob(ctx, jobID, domain.JobStatusFailed, "", "composition failed: "+err.Error())
	}

	if failed > 0 {
		msg := fmt.Sprintf("composed from %d of %d segments", succeeded, total)
		return o.store.FinishJob(ctx, jobID, domain.JobStatusPartialFailed, artifactKey, msg)
	}

	o.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.String("artifact_key", artifactKey),
	)

	return o.store.FinishJob(ctx, jobID, domain.JobStatusCompleted, artifactKey, "")
}

// requiredSuccesses returns the minimum number of succeeded segments for a
// job of the given size to be composed.
func requiredSuccesses(total int, ratio float64) int {
	return int(math.Ceil(ratio * float64(total)))
}

// GetStatus returns the job's public status and its segments in ordinal order
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*domain.JobStatusView, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	segments, err := o.store.GetSegments(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}

	view := &domain.JobStatusView{
		JobID:        job.JobID,
		Status:       domain.PublicJobStatus(job.Status),
		ArtifactKey:  job.ArtifactKey,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
		Segments:     make([]domain.SegmentStatusView, 0, len(segments)),
	}

	for _, seg := range segments {
		view.Segments = append(view.Segments, domain.SegmentStatusView{
			Ordinal:      seg.Ordinal,
			Status:       seg.Status,
			ImageKey:     seg.ImageKey,
			AudioKey:     seg.AudioKey,
			ErrorMessage: seg.ErrorMessage,
		})
	}

	return view, nil
}

// GetJob returns the raw job record
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// ListJobs returns jobs newest-first for the given filter
func (o *Orchestrator) ListJobs(ctx context.Context, filter jobstore.JobFilter) ([]domain.Job, error) {
	return o.store.ListJobs(ctx, filter)
}

// Cancel marks a pending or running job cancelled. In-flight segment work
// is not interrupted, but its results no longer affect the job and no
// artifact is composed. Cancelling a terminal job returns
// ErrJobNotCancellable.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	unlock := o.locks.lock(jobID)
	defer unlock()

	applied, err := o.store.CancelJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if applied {
		o.logger.Info("Job cancelled", slog.String("job_id", jobID))
		return nil
	}

	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return err
	}

	return domain.ErrJobNotCancellable
}

// IsCancelled reports whether the job is cancelled. Workers consult this
// before starting and before reporting segment work.
func (o *Orchestrator) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == domain.JobStatusCancelled, nil
}
