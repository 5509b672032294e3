// Package composer assembles a job's segment media into the final video.
// Each segment becomes a still-image clip lasting exactly as long as its
// narration, and the clips are concatenated in ordinal order without
// re-encoding. ffmpeg does the heavy lifting.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
)

// ObjectStore is the storage surface the composer needs
type ObjectStore interface {
	DownloadFile(ctx context.Context, key, destPath string) error
	UploadFile(ctx context.Context, key, filePath, contentType string) error
}

// Config holds video output parameters
type Config struct {
	WorkDir string
	Width   int
	Height  int
	FPS     int
}

// Composer builds final video artifacts from segment media
type Composer struct {
	store  ObjectStore
	config Config
	logger *slog.Logger

	// runFFmpeg is swappable in tests
	runFFmpeg func(ctx context.Context, args []string) error
}

// New creates a Composer
func New(store ObjectStore, config Config, logger *slog.Logger) *Composer {
	c := &Composer{
		store:  store,
		config: config,
		logger: logger,
	}
	c.runFFmpeg = c.execFFmpeg
	return c
}

// Compose downloads the segments' media, renders one clip per segment,
// concatenates them in ordinal order and uploads the result. It returns
// the artifact's object key.
func (c *Composer) Compose(ctx context.Context, jobID string, media []domain.MediaPair) (string, error) {
	if len(media) == 0 {
		return "", domain.NewCompositionError(fmt.Errorf("no segment media to compose"))
	}

	// Input arrives in ordinal order; keep the guarantee local anyway.
	sorted := append([]domain.MediaPair(nil), media...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	workDir, err := os.MkdirTemp(c.config.WorkDir, "compose-"+jobID+"-")
	if err != nil {
		return "", domain.NewCompositionError(fmt.Errorf("failed to create work dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			c.logger.Warn("Failed to clean up work dir",
				slog.String("dir", workDir),
				slog.Any("error", err),
			)
		}
	}()

	clipPaths := make([]string, 0, len(sorted))
	for _, pair := range sorted {
		imagePath := filepath.Join(workDir, fmt.Sprintf("%04d.png", pair.Ordinal))
		audioPath := filepath.Join(workDir, fmt.Sprintf("%04d.wav", pair.Ordinal))
		clipPath := filepath.Join(workDir, fmt.Sprintf("%04d.mp4", pair.Ordinal))

		if err := c.store.DownloadFile(ctx, pair.ImageKey, imagePath); err != nil {
			return "", domain.NewCompositionError(fmt.Errorf("failed to fetch image for segment %d: %w", pair.Ordinal, err))
		}
		if err := c.store.DownloadFile(ctx, pair.AudioKey, audioPath); err != nil {
			return "", domain.NewCompositionError(fmt.Errorf("failed to fetch audio for segment %d: %w", pair.Ordinal, err))
		}

		if err := c.runFFmpeg(ctx, clipArgs(imagePath, audioPath, clipPath, c.config.Width, c.config.Height, c.config.FPS)); err != nil {
			return "", domain.NewCompositionError(fmt.Errorf("failed to render clip for segment %d: %w", pair.Ordinal, err))
		}

		clipPaths = append(clipPaths, clipPath)
	}

	listPath := filepath.Join(workDir, "clips.txt")
	if err := writeConcatList(listPath, clipPaths); err != nil {
		return "", domain.NewCompositionError(err)
	}

	outputPath := filepath.Join(workDir, "final.mp4")
	if err := c.runFFmpeg(ctx, concatArgs(listPath, outputPath)); err != nil {
		return "", domain.NewCompositionError(fmt.Errorf("failed to concatenate clips: %w", err))
	}

	artifactKey := domain.VideoObjectKey(jobID)
	if err := c.store.UploadFile(ctx, artifactKey, outputPath, "video/mp4"); err != nil {
		return "", domain.NewCompositionError(fmt.Errorf("failed to upload artifact: %w", err))
	}

	c.logger.Info("Artifact composed",
		slog.String("job_id", jobID),
		slog.String("artifact_key", artifactKey),
		slog.Int("clips", len(clipPaths)),
	)

	return artifactKey, nil
}

// clipArgs builds the ffmpeg invocation for one still-image clip. The image
// loops for the duration of the narration; -shortest ends the clip with the
// audio. Scaling pads to the target frame so mixed image aspect ratios
// still concatenate cleanly.
func clipArgs(imagePath, audioPath, outputPath string, width, height, fps int) []string {
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width, height, width, height)
	return []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-preset", "medium",
		"-crf", "23",
		"-vf", scale,
		"-r", fmt.Sprintf("%d", fps),
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "44100",
		"-pix_fmt", "yuv420p",
		"-shortest",
		outputPath,
	}
}

// concatArgs builds the ffmpeg invocation joining the clips without
// re-encoding. All clips share codec parameters, so stream copy is safe.
func concatArgs(listPath, outputPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
}

// writeConcatList writes the concat-demuxer file list
func writeConcatList(path string, clipPaths []string) error {
	var sb strings.Builder
	for _, clip := range clipPaths {
		sb.WriteString("file '" + clip + "'\n")
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	return nil
}

func (c *Composer) execFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 512 {
			detail = detail[len(detail)-512:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, detail)
	}

	return nil
}
