// Package dto holds request and response shapes for the HTTP API.
package dto

// CreatePunchlistRequest is the body of POST /api/v1/projects/:project_id/punchlist.
type CreatePunchlistRequest struct {
	ProjectName string   `json:"project_name" binding:"required"`
	Transcript  string   `json:"transcript" binding:"required"`
	Areas       []string `json:"areas"`
}

// WorkItemDTO is the API representation of a work item.
type WorkItemDTO struct {
	WorkItemID     string  `json:"work_item_id"`
	ProjectID      string  `json:"project_id"`
	ProjectName    string  `json:"project_name"`
	Description    string  `json:"description"`
	Area           string  `json:"area"`
	Trade          string  `json:"trade"`
	Priority       string  `json:"priority"`
	EstimatedHours float64 `json:"estimated_hours"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
}

// CreatePunchlistResponse returns the extracted work items.
type CreatePunchlistResponse struct {
	WorkItems []WorkItemDTO `json:"work_items"`
}

// CreateAssignmentRequest is the body of POST /api/v1/assignments.
type CreateAssignmentRequest struct {
	WorkItemID   string `json:"work_item_id" binding:"required"`
	ContractorID string `json:"contractor_id" binding:"required"`
	Urgent       bool   `json:"urgent"`
}

// AssignmentDTO is the API representation of an assignment.
type AssignmentDTO struct {
	AssignmentID   string `json:"assignment_id"`
	WorkItemID     string `json:"work_item_id"`
	ContractorID   string `json:"contractor_id"`
	ProjectID      string `json:"project_id"`
	State          string `json:"state"`
	Urgent         bool   `json:"urgent"`
	Notes          string `json:"notes,omitempty"`
	DeliveryStatus string `json:"delivery_status,omitempty"`
	CreatedAt      string `json:"created_at"`
	NotifiedAt     string `json:"notified_at,omitempty"`
	RespondedAt    string `json:"responded_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

// ListAssignmentsRequest is the query of GET /api/v1/assignments.
type ListAssignmentsRequest struct {
	ProjectID    string `form:"project_id"`
	ContractorID string `form:"contractor_id"`
	State        string `form:"state"`
	PageSize     int    `form:"page_size"`
	Cursor       string `form:"cursor"`
}

// ListAssignmentsResponse is a page of assignments with the next cursor.
type ListAssignmentsResponse struct {
	Assignments []AssignmentDTO `json:"assignments"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}
