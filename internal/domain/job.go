package domain

import "time"

// Job is one video-generation request: an ordered sequence of segments
// that is composed into a single artifact once every segment resolves.
type Job struct {
	JobID        string     `db:"job_id"`
	Status       string     `db:"status"`
	SegmentCount int        `db:"segment_count"`
	ArtifactKey  string     `db:"artifact_key"`
	ErrorMessage string     `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// Segment is one scene's unit of work: one synthesized image plus one
// synthesized narration clip. Ordinal fixes its position in the final
// video independent of completion order.
type Segment struct {
	SegmentID       string     `db:"segment_id"`
	JobID           string     `db:"job_id"`
	Ordinal         int        `db:"ordinal"`
	ImagePrompt     string     `db:"image_prompt"`
	Narration       string     `db:"narration"`
	Voice           string     `db:"voice"`
	Status          string     `db:"status"`
	ImageKey        string     `db:"image_key"`
	AudioKey        string     `db:"audio_key"`
	ErrorMessage    string     `db:"error_message"`
	Attempts        int        `db:"attempts"`
	LastHeartbeatAt *time.Time `db:"last_heartbeat_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// SegmentSpec is the submission-time description of one segment.
type SegmentSpec struct {
	ImagePrompt string
	Narration   string
	Voice       string
}

// SegmentResult is the terminal outcome reported for one segment. On
// success both media keys are set; on failure ErrorMessage carries the
// failing stage's detail.
type SegmentResult struct {
	Succeeded    bool
	ImageKey     string
	AudioKey     string
	ErrorMessage string
}

// SegmentTask is the work unit published to the task-execution substrate,
// tagged with (job_id, ordinal) and carrying the segment input.
type SegmentTask struct {
	JobID       string `json:"job_id"`
	Ordinal     int    `json:"ordinal"`
	ImagePrompt string `json:"image_prompt"`
	Narration   string `json:"narration"`
	Voice       string `json:"voice"`

	DeliveryTag uint64 `json:"-"`
}

// MediaPair is one segment's media handed to the composer, in ordinal order.
type MediaPair struct {
	Ordinal  int
	ImageKey string
	AudioKey string
}

// SegmentStatusView is the per-segment slice of a status query response.
type SegmentStatusView struct {
	Ordinal      int
	Status       string
	ImageKey     string
	AudioKey     string
	ErrorMessage string
}

// JobStatusView is the read model returned by status queries: overall job
// status, the ordinal-ordered segment list and the artifact key if present.
type JobStatusView struct {
	JobID        string
	Status       string
	Segments     []SegmentStatusView
	ArtifactKey  string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}
