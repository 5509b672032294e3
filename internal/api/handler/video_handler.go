package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/api/dto"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/jobstore"
)

// GenerateVideo handles POST /api/v1/videos
// Accepts a multi-scene submission and returns the job ID immediately;
// generation runs asynchronously.
func (h *VideoHandler) GenerateVideo(c *gin.Context) {
	var req dto.GenerateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	specs := make([]domain.SegmentSpec, len(req.Scenes))
	for i, scene := range req.Scenes {
		specs[i] = domain.SegmentSpec{
			ImagePrompt: scene.ImagePrompt,
			Narration:   scene.Narration,
			Voice:       scene.Voice,
		}
	}

	jobID, err := h.orchestrator.Submit(c.Request.Context(), specs)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": verr.Error(),
			})
			return
		}

		h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit job",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.GenerateVideoResponse{
		JobID:  jobID,
		Status: domain.JobStatusPending,
	})
}

// GetStatus handles GET /api/v1/videos/:job_id
// Returns the job's status and the per-segment progress in ordinal order.
func (h *VideoHandler) GetStatus(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	view, err := h.orchestrator.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}

		h.logger.Error("Failed to get job status", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job status",
		})
		return
	}

	segments := make([]dto.SegmentStatusDTO, len(view.Segments))
	for i, seg := range view.Segments {
		segments[i] = dto.SegmentStatusDTO{
			Ordinal: seg.Ordinal,
			Status:  seg.Status,
			Error:   seg.ErrorMessage,
		}
	}

	resp := dto.JobStatusResponse{
		JobID:     view.JobID,
		Status:    view.Status,
		Segments:  segments,
		Error:     view.ErrorMessage,
		CreatedAt: view.CreatedAt.Format(time.RFC3339),
	}
	if view.CompletedAt != nil {
		resp.CompletedAt = view.CompletedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// GetResult handles GET /api/v1/videos/:job_id/result
// Returns a time-limited download URL once an artifact exists.
func (h *VideoHandler) GetResult(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.orchestrator.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}

		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	if job.ArtifactKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "video is not available",
			"status": domain.PublicJobStatus(job.Status),
		})
		return
	}

	url, err := h.signer.PresignedGetURL(c.Request.Context(), job.ArtifactKey, h.presignExpiry)
	if err != nil {
		h.logger.Error("Failed to presign artifact URL",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate download URL",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ResultResponse{
		JobID:    job.JobID,
		Status:   domain.PublicJobStatus(job.Status),
		VideoURL: url,
	})
}

// CancelVideo handles POST /api/v1/videos/:job_id/cancel
func (h *VideoHandler) CancelVideo(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	err := h.orchestrator.Cancel(c.Request.Context(), jobID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, dto.CancelResponse{
			JobID:  jobID,
			Status: domain.JobStatusCancelled,
		})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
	case errors.Is(err, domain.ErrJobNotCancellable):
		c.JSON(http.StatusConflict, gin.H{
			"error": "job already reached a terminal state",
		})
	default:
		h.logger.Error("Failed to cancel job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job",
		})
	}
}

// ListVideos handles GET /api/v1/videos
// Lists jobs newest-first with keyset pagination.
func (h *VideoHandler) ListVideos(c *gin.Context) {
	var req dto.ListVideosRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.orchestrator.ListJobs(c.Request.Context(), jobstore.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	videos := make([]dto.VideoSummaryDTO, len(jobs))
	for i, job := range jobs {
		videos[i] = dto.VideoSummaryDTO{
			JobID:        job.JobID,
			Status:       domain.PublicJobStatus(job.Status),
			SegmentCount: job.SegmentCount,
			CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		}
		if job.CompletedAt != nil {
			videos[i].CompletedAt = job.CompletedAt.Format(time.RFC3339)
		}
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&jobstore.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListVideosResponse{
		Videos:     videos,
		NextCursor: nextCursor,
	})
}

// ListVoices handles GET /api/v1/voices
func (h *VideoHandler) ListVoices(c *gin.Context) {
	c.JSON(http.StatusOK, dto.VoicesResponse{
		Voices: h.voices,
	})
}

// jobIDParam validates the job_id path parameter
func (h *VideoHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}
