// Package synthesis holds the model-backend adapters that turn a segment's
// inputs into media: one still image per scene and one narration clip per
// scene. Backends are remote HTTP services; failures are classified as
// transient or permanent so the worker knows what is worth retrying.
package synthesis

import "context"

// ImageSynthesizer produces one still image (PNG bytes) from a text prompt
type ImageSynthesizer interface {
	Synthesize(ctx context.Context, prompt string) ([]byte, error)
}

// VoiceSynthesizer produces one narration clip (WAV bytes) from text and a
// voice identifier
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
