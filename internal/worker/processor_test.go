package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/synthesis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type fakeCompleter struct {
	mu          sync.Mutex
	cancelled   bool
	notFound    bool
	reports     []domain.SegmentResult
	reportErr   error
	cancelAfter bool // flip to cancelled after first IsCancelled call
	calls       int
}

func (c *fakeCompleter) OnSegmentComplete(_ context.Context, jobID string, ordinal int, res domain.SegmentResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reportErr != nil {
		return c.reportErr
	}
	c.reports = append(c.reports, res)
	return nil
}

func (c *fakeCompleter) IsCancelled(_ context.Context, jobID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notFound {
		return false, domain.ErrJobNotFound
	}
	c.calls++
	if c.cancelAfter && c.calls > 1 {
		return true, nil
	}
	return c.cancelled, nil
}

type fakeSegmentStore struct {
	mu         sync.Mutex
	claimed    bool
	attempts   int
	claimErr   error
	claims     int
	heartbeats int
}

func (s *fakeSegmentStore) StartSegment(_ context.Context, jobID string, ordinal int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, 0, s.claimErr
	}
	s.claims++
	attempts := s.attempts
	if attempts == 0 {
		attempts = 1
	}
	return s.claimed, attempts, nil
}

func (s *fakeSegmentStore) UpdateSegmentHeartbeat(_ context.Context, jobID string, ordinal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return nil
}

type fakeProcessor struct {
	mu     sync.Mutex
	result domain.SegmentResult
	err    error
	calls  int
}

func (p *fakeProcessor) Process(_ context.Context, task *domain.SegmentTask) (domain.SegmentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result, p.err
}

func testWorker(store SegmentStore, completer Completer, processor Processor) *Worker {
	return NewWorker(&Config{
		Logger:             testLogger(),
		Store:              store,
		Completer:          completer,
		Processor:          processor,
		Concurrency:        1,
		PrefetchCount:      1,
		SegmentTimeout:     time.Minute,
		HeartbeatInterval:  time.Minute,
		MaxSegmentAttempts: 5,
	})
}

func testTask() *domain.SegmentTask {
	return &domain.SegmentTask{
		JobID:       "6f1f9c1e-8f52-4f7a-9a3e-1a2b3c4d5e6f",
		Ordinal:     2,
		ImagePrompt: "a lighthouse in fog",
		Narration:   "the lighthouse stood alone",
		Voice:       "narrator_male",
	}
}

func TestProcessTask(t *testing.T) {
	t.Run("successful segment is reported and acked", func(t *testing.T) {
		store := &fakeSegmentStore{claimed: true}
		completer := &fakeCompleter{}
		result := domain.SegmentResult{Succeeded: true, ImageKey: "i", AudioKey: "a"}
		w := testWorker(store, completer, &fakeProcessor{result: result})

		err := w.processTask(context.Background(), testTask())
		require.NoError(t, err)

		require.Len(t, completer.reports, 1)
		assert.Equal(t, result, completer.reports[0])
		assert.Equal(t, 1, store.claims)
	})

	t.Run("failed synthesis is reported as segment failure", func(t *testing.T) {
		store := &fakeSegmentStore{claimed: true}
		completer := &fakeCompleter{}
		result := domain.SegmentResult{Succeeded: false, ErrorMessage: "image synthesis failed"}
		w := testWorker(store, completer, &fakeProcessor{result: result})

		err := w.processTask(context.Background(), testTask())
		require.NoError(t, err, "segment failure is a recorded outcome, not a delivery failure")

		require.Len(t, completer.reports, 1)
		assert.False(t, completer.reports[0].Succeeded)
	})

	t.Run("duplicate delivery re-reports without reprocessing", func(t *testing.T) {
		store := &fakeSegmentStore{claimed: false}
		completer := &fakeCompleter{}
		processor := &fakeProcessor{}
		w := testWorker(store, completer, processor)

		err := w.processTask(context.Background(), testTask())
		require.NoError(t, err)

		// The segment is already terminal, but the first report may have
		// died before the job finished - the redelivery must give the
		// orchestrator another chance to run the all-terminal check.
		require.Len(t, completer.reports, 1)
		assert.Equal(t, domain.SegmentResult{}, completer.reports[0])
		assert.Equal(t, 0, processor.calls, "terminal segment must not be reprocessed")
	})

	t.Run("exhausted delivery attempts record segment failure", func(t *testing.T) {
		store := &fakeSegmentStore{claimed: true, attempts: 6}
		completer := &fakeCompleter{}
		processor := &fakeProcessor{result: domain.SegmentResult{Succeeded: true}}
		w := testWorker(store, completer, processor)

		err := w.processTask(context.Background(), testTask())
		require.NoError(t, err, "an exhausted segment is a recorded outcome, the delivery acks")

		require.Len(t, completer.reports, 1)
		assert.False(t, completer.reports[0].Succeeded)
		assert.Contains(t, completer.reports[0].ErrorMessage, "6 delivery attempts")
		assert.Equal(t, 0, processor.calls, "exhausted segment must not be reprocessed")
	})

	t.Run("attempts within the cap are processed normally", func(t *testing.T) {
		store := &fakeSegmentStore{claimed: true, attempts: 5}
		completer := &fakeCompleter{}
		result := domain.SegmentResult{Succeeded: true, ImageKey: "i", AudioKey: "a"}
		w := testWorker(store, completer, &fakeProcessor{result: result})

		err := w.processTask(context.Background(), testTask())
		require.NoError(t, err)

		require.Len(t, completer.reports, 1)
		assert.True(t, completer.reports[0].Succeeded)
	})

	t.Run("cancelled job is skipped", func(t *testing.T) {
		store := &fakeSegmentStore{claimed: true}
		completer := &fakeCompleter{cancelled: true}
		w := testWorker(store, completer, &fakeProcessor{})

		err := w.processTask(context.Background(), testTask())
		require.NoError(t, err)
		assert.Equal(t, 0, store.claims, "cancelled job must not claim segments")
		assert.Empty(t, completer.reports)
	})

	t.Run("cancel during processing discards the result", func(t *testing.T) {
		store := &fakeSegmentStore{claimed: true}
		completer := &fakeCompleter{cancelAfter: true}
		w := testWorker(store, completer, &fakeProcessor{result: domain.SegmentResult{Succeeded: true}})

		err := w.processTask(context.Background(), testTask())
		require.NoError(t, err)
		assert.Empty(t, completer.reports)
	})

	t.Run("unknown job is dropped", func(t *testing.T) {
		completer := &fakeCompleter{notFound: true}
		w := testWorker(&fakeSegmentStore{}, completer, &fakeProcessor{})

		err := w.processTask(context.Background(), testTask())
		require.NoError(t, err)
	})

	t.Run("infrastructure failures are retryable", func(t *testing.T) {
		tests := []struct {
			name string
			w    *Worker
		}{
			{
				name: "claim failure",
				w: testWorker(
					&fakeSegmentStore{claimErr: fmt.Errorf("connection refused")},
					&fakeCompleter{},
					&fakeProcessor{},
				),
			},
			{
				name: "processing aborted",
				w: testWorker(
					&fakeSegmentStore{claimed: true},
					&fakeCompleter{},
					&fakeProcessor{err: fmt.Errorf("storage unreachable")},
				),
			},
			{
				name: "report failure",
				w: testWorker(
					&fakeSegmentStore{claimed: true},
					&fakeCompleter{reportErr: fmt.Errorf("db down")},
					&fakeProcessor{result: domain.SegmentResult{Succeeded: true}},
				),
			},
			{
				name: "re-report failure on duplicate delivery",
				w: testWorker(
					&fakeSegmentStore{claimed: false},
					&fakeCompleter{reportErr: fmt.Errorf("db down")},
					&fakeProcessor{},
				),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.w.processTask(context.Background(), testTask())
				require.Error(t, err)
				assert.True(t, shouldRequeueTask(err), "infra errors must requeue")
			})
		}
	})
}

func TestParseSegmentTask(t *testing.T) {
	valid := `{"job_id":"6f1f9c1e-8f52-4f7a-9a3e-1a2b3c4d5e6f","ordinal":1,"image_prompt":"p","narration":"n","voice":"v"}`

	t.Run("valid", func(t *testing.T) {
		task, err := parseSegmentTask([]byte(valid))
		require.NoError(t, err)
		assert.Equal(t, 1, task.Ordinal)
		assert.Equal(t, "p", task.ImagePrompt)
	})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "nope"},
		{"bad job id", `{"job_id":"abc","ordinal":0,"image_prompt":"p","narration":"n"}`},
		{"negative ordinal", `{"job_id":"6f1f9c1e-8f52-4f7a-9a3e-1a2b3c4d5e6f","ordinal":-1,"image_prompt":"p","narration":"n"}`},
		{"missing inputs", `{"job_id":"6f1f9c1e-8f52-4f7a-9a3e-1a2b3c4d5e6f","ordinal":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSegmentTask([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestShouldRequeueTask(t *testing.T) {
	assert.True(t, shouldRequeueTask(NewRetryableError(fmt.Errorf("db down"))))
	assert.False(t, shouldRequeueTask(errors.New("plain failure")))
}

type fakeImageSyn struct{ err error }

func (f *fakeImageSyn) Synthesize(_ context.Context, prompt string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png:" + prompt), nil
}

type fakeVoiceSyn struct{ err error }

func (f *fakeVoiceSyn) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("wav:" + voice + ":" + text), nil
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(_ context.Context, key string, data []byte, contentType string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.objects[key] = data
	return nil
}

func testMediaProcessor(t *testing.T, images synthesis.ImageSynthesizer, voices synthesis.VoiceSynthesizer, store Uploader) *MediaProcessor {
	t.Helper()

	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	return NewMediaProcessor(images, voices, store, pool, synthesis.RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	}, testLogger())
}

func TestMediaProcessor_Process(t *testing.T) {
	t.Run("uploads both media and returns their keys", func(t *testing.T) {
		uploader := newFakeUploader()
		p := testMediaProcessor(t, &fakeImageSyn{}, &fakeVoiceSyn{}, uploader)

		res, err := p.Process(context.Background(), testTask())
		require.NoError(t, err)
		assert.True(t, res.Succeeded)
		assert.Equal(t, "images/6f1f9c1e-8f52-4f7a-9a3e-1a2b3c4d5e6f/2.png", res.ImageKey)
		assert.Equal(t, "audios/6f1f9c1e-8f52-4f7a-9a3e-1a2b3c4d5e6f/2.wav", res.AudioKey)

		assert.Contains(t, uploader.objects, res.ImageKey)
		assert.Contains(t, uploader.objects, res.AudioKey)
	})

	t.Run("permanent synthesis failure yields failed result", func(t *testing.T) {
		uploader := newFakeUploader()
		images := &fakeImageSyn{err: domain.NewAdapterError("image", false, fmt.Errorf("bad prompt"))}
		p := testMediaProcessor(t, images, &fakeVoiceSyn{}, uploader)

		res, err := p.Process(context.Background(), testTask())
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Contains(t, res.ErrorMessage, "image")

		// All-or-nothing: the successful narration is not referenced
		assert.Empty(t, res.AudioKey)
	})

	t.Run("both stages failing reports both", func(t *testing.T) {
		images := &fakeImageSyn{err: domain.NewAdapterError("image", false, fmt.Errorf("x"))}
		voices := &fakeVoiceSyn{err: domain.NewAdapterError("voice", false, fmt.Errorf("y"))}
		p := testMediaProcessor(t, images, voices, newFakeUploader())

		res, err := p.Process(context.Background(), testTask())
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Contains(t, res.ErrorMessage, "image")
		assert.Contains(t, res.ErrorMessage, "voice")
	})

	t.Run("upload failure is an infrastructure error", func(t *testing.T) {
		uploader := newFakeUploader()
		uploader.err = fmt.Errorf("bucket unreachable")
		p := testMediaProcessor(t, &fakeImageSyn{}, &fakeVoiceSyn{}, uploader)

		_, err := p.Process(context.Background(), testTask())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to store")
	})

	t.Run("cancelled context aborts processing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := testMediaProcessor(t, &fakeImageSyn{}, &fakeVoiceSyn{}, newFakeUploader())

		_, err := p.Process(ctx, testTask())
		assert.ErrorIs(t, err, context.Canceled)
	})
}
