package dto

// SceneRequest is one scene of a submission: the image to synthesize and
// the narration to speak over it.
type SceneRequest struct {
	ImagePrompt string `json:"image_prompt" binding:"required"`
	Narration   string `json:"narration" binding:"required"`
	Voice       string `json:"voice"`
}

type GenerateVideoRequest struct {
	Scenes []SceneRequest `json:"scenes" binding:"required"`
}

type GenerateVideoResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type SegmentStatusDTO struct {
	Ordinal int    `json:"ordinal"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type JobStatusResponse struct {
	JobID       string             `json:"job_id"`
	Status      string             `json:"status"`
	Segments    []SegmentStatusDTO `json:"segments"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   string             `json:"created_at"`
	CompletedAt string             `json:"completed_at,omitempty"`
}

type ResultResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
}

type CancelResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ListVideosRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type VideoSummaryDTO struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	SegmentCount int    `json:"segment_count"`
	CreatedAt    string `json:"created_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

type ListVideosResponse struct {
	Videos     []VideoSummaryDTO `json:"videos"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type VoicesResponse struct {
	Voices []string `json:"voices"`
}
