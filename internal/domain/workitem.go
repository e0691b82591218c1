package domain

import "time"

// Trade categories for punch-list work items
const (
	TradePlumbing   = "plumbing"
	TradeElectrical = "electrical"
	TradeCarpentry  = "carpentry"
	TradePainting   = "painting"
	TradeGeneral    = "general"
	TradeHVAC       = "hvac"
	TradeTile       = "tile"
	TradeDrywall    = "drywall"
	TradeFlooring   = "flooring"
)

// Work item priority levels
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Work item status constants. A work item is never deleted; a declined or
// expired assignment puts it back to EXTRACTED so it can be dispatched again.
const (
	WorkItemStatusExtracted = "EXTRACTED"
	WorkItemStatusNotified  = "NOTIFIED"
	WorkItemStatusCompleted = "COMPLETED"
)

// WorkItem is one extracted actionable renovation task.
type WorkItem struct {
	WorkItemID     string     `db:"work_item_id"`
	ProjectID      string     `db:"project_id"`
	ProjectName    string     `db:"project_name"`
	Description    string     `db:"description"`
	Area           string     `db:"area"`
	Trade          string     `db:"trade"`
	Priority       string     `db:"priority"`
	EstimatedHours float64    `db:"estimated_hours"`
	TranscriptID   *string    `db:"transcript_id"`
	Status         string     `db:"status"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// ValidTrade reports whether trade is one of the known trade categories.
func ValidTrade(trade string) bool {
	switch trade {
	case TradePlumbing, TradeElectrical, TradeCarpentry, TradePainting,
		TradeGeneral, TradeHVAC, TradeTile, TradeDrywall, TradeFlooring:
		return true
	}
	return false
}

// ValidPriority reports whether priority is one of the known priority levels.
func ValidPriority(priority string) bool {
	switch priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}
