package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/synthesis"
)

// Uploader stores synthesized media blobs
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// MediaProcessor produces a segment's media: it synthesizes the image and
// the narration concurrently, then uploads both. The ants pool caps how
// many synthesis calls run at once across all in-flight segments - the
// model backends share one GPU.
type MediaProcessor struct {
	images  synthesis.ImageSynthesizer
	voices  synthesis.VoiceSynthesizer
	store   Uploader
	gpuPool *ants.Pool
	retry   synthesis.RetryPolicy
	logger  *slog.Logger
}

// NewMediaProcessor creates a MediaProcessor
func NewMediaProcessor(
	images synthesis.ImageSynthesizer,
	voices synthesis.VoiceSynthesizer,
	store Uploader,
	gpuPool *ants.Pool,
	retry synthesis.RetryPolicy,
	logger *slog.Logger,
) *MediaProcessor {
	return &MediaProcessor{
		images:  images,
		voices:  voices,
		store:   store,
		gpuPool: gpuPool,
		retry:   retry,
		logger:  logger,
	}
}

// Process synthesizes and uploads one segment's media. A segment is
// all-or-nothing: if either stage fails permanently, the whole segment is
// reported failed and any partial media is not referenced. Infrastructure
// failures (storage, cancellation) return an error instead of a result so
// the task can be retried.
func (p *MediaProcessor) Process(ctx context.Context, task *domain.SegmentTask) (domain.SegmentResult, error) {
	var (
		wg        sync.WaitGroup
		imageData []byte
		audioData []byte
		imageErr  error
		voiceErr  error
	)

	wg.Add(1)
	if err := p.gpuPool.Submit(func() {
		defer wg.Done()
		imageData, imageErr = synthesis.WithRetry(ctx, p.retry, p.logger, func(ctx context.Context) ([]byte, error) {
			return p.images.Synthesize(ctx, task.ImagePrompt)
		})
	}); err != nil {
		wg.Done()
		return domain.SegmentResult{}, fmt.Errorf("failed to schedule image synthesis: %w", err)
	}

	wg.Add(1)
	if err := p.gpuPool.Submit(func() {
		defer wg.Done()
		audioData, voiceErr = synthesis.WithRetry(ctx, p.retry, p.logger, func(ctx context.Context) ([]byte, error) {
			return p.voices.Synthesize(ctx, task.Narration, task.Voice)
		})
	}); err != nil {
		wg.Done()
		wg.Wait()
		return domain.SegmentResult{}, fmt.Errorf("failed to schedule voice synthesis: %w", err)
	}

	wg.Wait()

	if ctx.Err() != nil {
		return domain.SegmentResult{}, ctx.Err()
	}

	if imageErr != nil || voiceErr != nil {
		msg := synthesisFailureMessage(imageErr, voiceErr)
		p.logger.Warn("Segment synthesis failed",
			slog.String("job_id", task.JobID),
			slog.Int("ordinal", task.Ordinal),
			slog.String("error", msg),
		)
		return domain.SegmentResult{Succeeded: false, ErrorMessage: msg}, nil
	}

	imageKey := domain.ImageObjectKey(task.JobID, task.Ordinal)
	if err := p.store.Upload(ctx, imageKey, imageData, "image/png"); err != nil {
		return domain.SegmentResult{}, fmt.Errorf("failed to store image: %w", err)
	}

	audioKey := domain.AudioObjectKey(task.JobID, task.Ordinal)
	if err := p.store.Upload(ctx, audioKey, audioData, "audio/wav"); err != nil {
		return domain.SegmentResult{}, fmt.Errorf("failed to store audio: %w", err)
	}

	return domain.SegmentResult{
		Succeeded: true,
		ImageKey:  imageKey,
		AudioKey:  audioKey,
	}, nil
}

func synthesisFailureMessage(imageErr, voiceErr error) string {
	switch {
	case imageErr != nil && voiceErr != nil:
		return fmt.Sprintf("image: %v; voice: %v", imageErr, voiceErr)
	case imageErr != nil:
		return imageErr.Error()
	default:
		return voiceErr.Error()
	}
}
