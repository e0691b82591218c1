package handler

import (
	"context"
	"log/slog"

	"github.com/renomarket/dispatch-be/internal/dispatch"
	"github.com/renomarket/dispatch-be/internal/dispatch/storage"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/internal/extract"
)

// Publisher publishes raw message bodies to the dispatch queue.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// AssignmentStore is the read side the assignment endpoints need.
type AssignmentStore interface {
	GetAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error)
	ListAssignments(ctx context.Context, filter storage.AssignmentFilter) ([]domain.Assignment, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Engine    *dispatch.Engine
	Extractor extract.Extractor
	Store     AssignmentStore
	Publisher Publisher
}

// WebhookHandler receives carrier callbacks and forwards them to the queue.
type WebhookHandler struct {
	logger    *slog.Logger
	publisher Publisher
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:    deps.Logger,
		publisher: deps.Publisher,
	}
}

// PunchlistHandler handles punch-list extraction requests.
type PunchlistHandler struct {
	logger    *slog.Logger
	engine    *dispatch.Engine
	extractor extract.Extractor
}

// NewPunchlistHandler creates a new PunchlistHandler instance
func NewPunchlistHandler(deps *Dependencies) *PunchlistHandler {
	return &PunchlistHandler{
		logger:    deps.Logger,
		engine:    deps.Engine,
		extractor: deps.Extractor,
	}
}

// AssignmentHandler handles assignment-related HTTP requests
type AssignmentHandler struct {
	logger *slog.Logger
	engine *dispatch.Engine
	store  AssignmentStore
}

// NewAssignmentHandler creates a new AssignmentHandler instance
func NewAssignmentHandler(deps *Dependencies) *AssignmentHandler {
	return &AssignmentHandler{
		logger: deps.Logger,
		engine: deps.Engine,
		store:  deps.Store,
	}
}
