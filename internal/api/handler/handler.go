package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/jobstore"
)

// VideoOrchestrator is the job-lifecycle surface the API exposes
type VideoOrchestrator interface {
	Submit(ctx context.Context, specs []domain.SegmentSpec) (string, error)
	GetStatus(ctx context.Context, jobID string) (*domain.JobStatusView, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter jobstore.JobFilter) ([]domain.Job, error)
	Cancel(ctx context.Context, jobID string) error
}

// URLSigner mints time-limited download URLs for stored artifacts
type URLSigner interface {
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Orchestrator  VideoOrchestrator
	Signer        URLSigner
	Voices        []string
	PresignExpiry time.Duration
	APIKey        string
	HealthChecks  map[string]func(context.Context) error
}

// VideoHandler handles video-generation HTTP requests
type VideoHandler struct {
	logger        *slog.Logger
	orchestrator  VideoOrchestrator
	signer        URLSigner
	voices        []string
	presignExpiry time.Duration
}

// NewVideoHandler creates a new VideoHandler instance
func NewVideoHandler(deps *Dependencies) *VideoHandler {
	return &VideoHandler{
		logger:        deps.Logger,
		orchestrator:  deps.Orchestrator,
		signer:        deps.Signer,
		voices:        deps.Voices,
		presignExpiry: deps.PresignExpiry,
	}
}
