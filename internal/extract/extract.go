// Package extract consumes the external item-extraction service: transcript
// in, structured punch-list items out. The service itself (the language-model
// side) is a black box to this repo.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/renomarket/dispatch-be/internal/domain"
)

// ProjectContext is the project metadata sent along with a transcript so the
// extraction service can resolve areas and trades.
type ProjectContext struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Address     string `json:"address,omitempty"`
}

// Extractor turns a transcript or free text into structured work items.
// Returning zero items is a valid result, not an error.
type Extractor interface {
	Extract(ctx context.Context, transcript string, pctx ProjectContext) ([]domain.WorkItem, error)
}

// Config holds extraction service client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is an Extractor backed by the extraction service's HTTP API.
type Client struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates an extraction service client.
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type extractRequest struct {
	Transcript string         `json:"transcript"`
	Project    ProjectContext `json:"project"`
}

type extractedItem struct {
	Description    string  `json:"description"`
	Area           string  `json:"area"`
	Trade          string  `json:"trade"`
	Priority       string  `json:"priority"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// Extract posts the transcript to the extraction service and maps the result
// to work items. Unknown trades fall back to general and unknown priorities
// to medium, so a sloppy extraction never produces an invalid item.
func (c *Client) Extract(ctx context.Context, transcript string, pctx ProjectContext) ([]domain.WorkItem, error) {
	payload, err := json.Marshal(extractRequest{Transcript: transcript, Project: pctx})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned status %d", resp.StatusCode)
	}

	var out struct {
		Items []extractedItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode extract response: %w", err)
	}

	items := make([]domain.WorkItem, 0, len(out.Items))
	for _, it := range out.Items {
		trade := it.Trade
		if !domain.ValidTrade(trade) {
			trade = domain.TradeGeneral
		}
		priority := it.Priority
		if !domain.ValidPriority(priority) {
			priority = domain.PriorityMedium
		}

		items = append(items, domain.WorkItem{
			ProjectID:      pctx.ProjectID,
			Description:    it.Description,
			Area:           it.Area,
			Trade:          trade,
			Priority:       priority,
			EstimatedHours: it.EstimatedHours,
			Status:         domain.WorkItemStatusExtracted,
		})
	}

	c.logger.Info("Transcript extracted",
		slog.String("project_id", pctx.ProjectID),
		slog.Int("item_count", len(items)),
	)

	return items, nil
}
