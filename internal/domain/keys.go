package domain

import "fmt"

// Object key layout in the media bucket. Segment media are namespaced by
// job so cleanup and inspection stay per-job.

// ImageObjectKey returns the object key for a segment's synthesized image.
func ImageObjectKey(jobID string, ordinal int) string {
	return fmt.Sprintf("images/%s/%d.png", jobID, ordinal)
}

// AudioObjectKey returns the object key for a segment's narration clip.
func AudioObjectKey(jobID string, ordinal int) string {
	return fmt.Sprintf("audios/%s/%d.wav", jobID, ordinal)
}

// VideoObjectKey returns the object key for a job's final artifact.
func VideoObjectKey(jobID string) string {
	return fmt.Sprintf("videos/%s.mp4", jobID)
}
