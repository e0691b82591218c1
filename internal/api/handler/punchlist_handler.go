package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/renomarket/dispatch-be/internal/api/dto"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/internal/extract"
)

// CreatePunchlist handles POST /api/v1/projects/:project_id/punchlist
// Runs the walkthrough transcript through the extraction service and persists
// the resulting work items. Zero extracted items is a valid, empty response.
func (h *PunchlistHandler) CreatePunchlist(c *gin.Context) {
	projectID := c.Param("project_id")

	var req dto.CreatePunchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid punchlist request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	items, err := h.extractor.Extract(c.Request.Context(), req.Transcript, extract.ProjectContext{
		ProjectID:   projectID,
		ProjectName: req.ProjectName,
	})
	if err != nil {
		h.logger.Error("Extraction failed",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Extraction service unavailable",
		})
		return
	}

	for i := range items {
		items[i].ProjectName = req.ProjectName
	}

	created, err := h.engine.CreateWorkItems(c.Request.Context(), items)
	if err != nil {
		h.logger.Error("Failed to persist work items",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create work items",
		})
		return
	}

	h.logger.Info("Punch list created",
		slog.String("project_id", projectID),
		slog.Int("item_count", len(created)),
	)

	resp := dto.CreatePunchlistResponse{
		WorkItems: make([]dto.WorkItemDTO, len(created)),
	}
	for i, item := range created {
		resp.WorkItems[i] = toWorkItemDTO(&item)
	}

	c.JSON(http.StatusCreated, resp)
}

func toWorkItemDTO(item *domain.WorkItem) dto.WorkItemDTO {
	return dto.WorkItemDTO{
		WorkItemID:     item.WorkItemID,
		ProjectID:      item.ProjectID,
		ProjectName:    item.ProjectName,
		Description:    item.Description,
		Area:           item.Area,
		Trade:          item.Trade,
		Priority:       item.Priority,
		EstimatedHours: item.EstimatedHours,
		Status:         item.Status,
		CreatedAt:      item.CreatedAt.Format(time.RFC3339),
	}
}
