package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/renomarket/dispatch-be/internal/api/dto"
	"github.com/renomarket/dispatch-be/internal/dispatch/storage"
	"github.com/renomarket/dispatch-be/internal/domain"
)

// CreateAssignment handles POST /api/v1/assignments
// Offers a work item to a contractor and sends the notification text. A work
// item with an active assignment answers 409; the admin must wait for a
// decline or expiry before re-offering.
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid assignment request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	a, err := h.engine.CreateAssignment(c.Request.Context(), req.WorkItemID, req.ContractorID, req.Urgent)
	if err != nil {
		var conflict *domain.ConflictError
		switch {
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, gin.H{
				"error": conflict.Error(),
			})
		case errors.Is(err, domain.ErrWorkItemNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Work item not found",
			})
		case errors.Is(err, domain.ErrContractorNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Contractor not found",
			})
		default:
			h.logger.Error("Failed to create assignment", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create assignment",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, toAssignmentDTO(a))
}

// GetAssignment handles GET /api/v1/assignments/:assignment_id
func (h *AssignmentHandler) GetAssignment(c *gin.Context) {
	assignmentID := c.Param("assignment_id")

	if _, err := uuid.Parse(assignmentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "assignment_id must be a valid UUID",
		})
		return
	}

	a, err := h.store.GetAssignment(c.Request.Context(), assignmentID)
	if err != nil {
		if errors.Is(err, domain.ErrAssignmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Assignment not found",
			})
			return
		}
		h.logger.Error("Failed to get assignment", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get assignment",
		})
		return
	}

	c.JSON(http.StatusOK, toAssignmentDTO(a))
}

// ListAssignments handles GET /api/v1/assignments
// Lists assignments with optional filtering and cursor pagination.
func (h *AssignmentHandler) ListAssignments(c *gin.Context) {
	var req dto.ListAssignmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
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

	cursor, err := DecodeAssignmentCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.AssignmentFilter{
		ProjectID:    req.ProjectID,
		ContractorID: req.ContractorID,
		State:        req.State,
		PageSize:     req.PageSize,
		Cursor:       cursor,
	}

	assignments, err := h.store.ListAssignments(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list assignments", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list assignments",
		})
		return
	}

	hasMore := len(assignments) > req.PageSize
	if hasMore {
		assignments = assignments[:req.PageSize]
	}

	resp := dto.ListAssignmentsResponse{
		Assignments: make([]dto.AssignmentDTO, len(assignments)),
	}
	for i := range assignments {
		resp.Assignments[i] = toAssignmentDTO(&assignments[i])
	}

	if hasMore {
		last := assignments[len(assignments)-1]
		resp.NextCursor, err = EncodeAssignmentCursor(&storage.AssignmentCursor{
			CreatedAt:    last.CreatedAt,
			AssignmentID: last.AssignmentID,
		})
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

func toAssignmentDTO(a *domain.Assignment) dto.AssignmentDTO {
	out := dto.AssignmentDTO{
		AssignmentID:   a.AssignmentID,
		WorkItemID:     a.WorkItemID,
		ContractorID:   a.ContractorID,
		ProjectID:      a.ProjectID,
		State:          a.State,
		Urgent:         a.Urgent,
		Notes:          a.Notes,
		DeliveryStatus: a.DeliveryStatus,
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
	if a.NotifiedAt != nil {
		out.NotifiedAt = a.NotifiedAt.Format(time.RFC3339)
	}
	if a.RespondedAt != nil {
		out.RespondedAt = a.RespondedAt.Format(time.RFC3339)
	}
	if a.CompletedAt != nil {
		out.CompletedAt = a.CompletedAt.Format(time.RFC3339)
	}
	return out
}
