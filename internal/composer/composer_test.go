package composer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
)

type fakeObjectStore struct {
	mu        sync.Mutex
	downloads []string
	uploads   map[string]string
	failKey   string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: make(map[string]string)}
}

func (s *fakeObjectStore) DownloadFile(_ context.Context, key, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == s.failKey {
		return fmt.Errorf("object %q not found", key)
	}
	s.downloads = append(s.downloads, key)
	return os.WriteFile(destPath, []byte("media:"+key), 0o644)
}

func (s *fakeObjectStore) UploadFile(_ context.Context, key, filePath, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploads[key] = filePath
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testComposer(t *testing.T, store ObjectStore) (*Composer, *[][]string) {
	t.Helper()

	c := New(store, Config{
		WorkDir: t.TempDir(),
		Width:   1280,
		Height:  720,
		FPS:     30,
	}, testLogger())

	var invocations [][]string
	c.runFFmpeg = func(_ context.Context, args []string) error {
		invocations = append(invocations, args)
		// The concat step reads the output of earlier steps; fake the outputs
		return os.WriteFile(args[len(args)-1], []byte("rendered"), 0o644)
	}

	return c, &invocations
}

func media(jobID string, ordinals ...int) []domain.MediaPair {
	out := make([]domain.MediaPair, 0, len(ordinals))
	for _, o := range ordinals {
		out = append(out, domain.MediaPair{
			Ordinal:  o,
			ImageKey: domain.ImageObjectKey(jobID, o),
			AudioKey: domain.AudioObjectKey(jobID, o),
		})
	}
	return out
}

func TestCompose(t *testing.T) {
	t.Run("renders one clip per segment then concatenates", func(t *testing.T) {
		store := newFakeObjectStore()
		c, invocations := testComposer(t, store)

		key, err := c.Compose(context.Background(), "job-1", media("job-1", 0, 1, 2))
		require.NoError(t, err)
		assert.Equal(t, "videos/job-1.mp4", key)

		// 3 clip renders + 1 concat
		require.Len(t, *invocations, 4)
		for i := 0; i < 3; i++ {
			args := (*invocations)[i]
			assert.Contains(t, args, "stillimage")
			assert.Contains(t, args, "-shortest")
		}
		concat := (*invocations)[3]
		assert.Contains(t, concat, "concat")
		assert.Contains(t, concat, "copy")

		assert.Contains(t, store.uploads, "videos/job-1.mp4")
	})

	t.Run("clips are ordered by ordinal regardless of input order", func(t *testing.T) {
		store := newFakeObjectStore()
		c, invocations := testComposer(t, store)

		_, err := c.Compose(context.Background(), "job-2", media("job-2", 2, 0, 1))
		require.NoError(t, err)

		// Download order follows ordinal order: image then audio per segment
		assert.Equal(t, []string{
			"images/job-2/0.png", "audios/job-2/0.wav",
			"images/job-2/1.png", "audios/job-2/1.wav",
			"images/job-2/2.png", "audios/job-2/2.wav",
		}, store.downloads)

		// The concat list file preserves that order
		concat := (*invocations)[len(*invocations)-1]
		listPath := concat[6] // after -y -f concat -safe 0 -i
		data, err := os.ReadFile(listPath)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "0000.mp4")
		assert.Contains(t, lines[1], "0001.mp4")
		assert.Contains(t, lines[2], "0002.mp4")
	})

	t.Run("gaps from failed segments are skipped cleanly", func(t *testing.T) {
		store := newFakeObjectStore()
		c, _ := testComposer(t, store)

		// Segment 1 failed upstream and is absent from the media list
		key, err := c.Compose(context.Background(), "job-3", media("job-3", 0, 2, 3))
		require.NoError(t, err)
		assert.Equal(t, "videos/job-3.mp4", key)
	})

	t.Run("empty media list is rejected", func(t *testing.T) {
		c, _ := testComposer(t, newFakeObjectStore())

		_, err := c.Compose(context.Background(), "job-4", nil)
		require.Error(t, err)

		var cerr *domain.CompositionError
		assert.ErrorAs(t, err, &cerr)
	})

	t.Run("missing media fails composition", func(t *testing.T) {
		store := newFakeObjectStore()
		store.failKey = "audios/job-5/1.wav"
		c, _ := testComposer(t, store)

		_, err := c.Compose(context.Background(), "job-5", media("job-5", 0, 1))
		require.Error(t, err)

		var cerr *domain.CompositionError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, err.Error(), "segment 1")
	})

	t.Run("ffmpeg failure fails composition", func(t *testing.T) {
		store := newFakeObjectStore()
		c, _ := testComposer(t, store)
		c.runFFmpeg = func(context.Context, []string) error {
			return fmt.Errorf("ffmpeg exited 1")
		}

		_, err := c.Compose(context.Background(), "job-6", media("job-6", 0))
		require.Error(t, err)

		var cerr *domain.CompositionError
		assert.ErrorAs(t, err, &cerr)
	})
}

func TestClipArgs(t *testing.T) {
	args := clipArgs("in.png", "in.wav", "out.mp4", 1280, 720, 30)

	assert.Equal(t, "out.mp4", args[len(args)-1])
	assert.Contains(t, args, "libx264")
	assert.Contains(t, args, "aac")
	assert.Contains(t, args, "yuv420p")
	assert.Contains(t, args, "192k")
	assert.Contains(t, args, "44100")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-loop 1 -i in.png")
	assert.Contains(t, joined, "scale=1280:720")
	assert.Contains(t, joined, "-r 30")
}

func TestWriteConcatList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clips.txt")

	require.NoError(t, writeConcatList(path, []string{"/tmp/a.mp4", "/tmp/b.mp4"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file '/tmp/a.mp4'\nfile '/tmp/b.mp4'\n", string(data))
}
