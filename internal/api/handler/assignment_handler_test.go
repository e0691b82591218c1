package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/renomarket/dispatch-be/internal/api/dto"
	"github.com/renomarket/dispatch-be/internal/dispatch"
	"github.com/renomarket/dispatch-be/internal/dispatch/dispatchtest"
	"github.com/renomarket/dispatch-be/internal/dispatch/storage"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	*dispatchtest.MemLedger
}

func (s fakeStore) ListAssignments(context.Context, storage.AssignmentFilter) ([]domain.Assignment, error) {
	return nil, nil
}

func newAssignmentFixture(t *testing.T) (*AssignmentHandler, domain.WorkItem) {
	t.Helper()

	ledger := dispatchtest.NewMemLedger()
	sender := dispatchtest.NewRecordingSender()
	dir := dispatchtest.NewFakeDirectory()
	dir.Add(domain.Contractor{
		ContractorID: "contractor-1",
		BusinessName: "Rivera Plumbing",
		Phone:        "+15125550142",
	}, "5125550142")

	engine := dispatch.NewEngine(
		&dispatch.Config{AdminContact: "(512) 555-0100"},
		ledger, dir, sender,
		slog.Default(),
	)

	items, err := engine.CreateWorkItems(context.Background(), []domain.WorkItem{{
		ProjectID:   "proj-1",
		ProjectName: "Oak Street Duplex",
		Description: "Replace kitchen faucet",
		Area:        "Kitchen",
		Trade:       domain.TradePlumbing,
		Priority:    domain.PriorityMedium,
	}})
	require.NoError(t, err)

	h := NewAssignmentHandler(&Dependencies{
		Logger: slog.Default(),
		Engine: engine,
		Store:  fakeStore{ledger},
	})
	return h, items[0]
}

func postJSON(t *testing.T, h gin.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST(path, h)

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAssignment_Created(t *testing.T) {
	h, item := newAssignmentFixture(t)

	w := postJSON(t, h.CreateAssignment, "/api/v1/assignments", dto.CreateAssignmentRequest{
		WorkItemID:   item.WorkItemID,
		ContractorID: "contractor-1",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp dto.AssignmentDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, item.WorkItemID, resp.WorkItemID)
	assert.Equal(t, "contractor-1", resp.ContractorID)
	assert.Equal(t, domain.AssignmentStateNotified, resp.State)
}

func TestCreateAssignment_ConflictOnActiveAssignment(t *testing.T) {
	h, item := newAssignmentFixture(t)

	req := dto.CreateAssignmentRequest{
		WorkItemID:   item.WorkItemID,
		ContractorID: "contractor-1",
	}

	w := postJSON(t, h.CreateAssignment, "/api/v1/assignments", req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, h.CreateAssignment, "/api/v1/assignments", req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateAssignment_UnknownWorkItem(t *testing.T) {
	h, _ := newAssignmentFixture(t)

	w := postJSON(t, h.CreateAssignment, "/api/v1/assignments", dto.CreateAssignmentRequest{
		WorkItemID:   "00000000-0000-0000-0000-000000000000",
		ContractorID: "contractor-1",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAssignment_InvalidBody(t *testing.T) {
	h, _ := newAssignmentFixture(t)

	w := postJSON(t, h.CreateAssignment, "/api/v1/assignments", map[string]string{
		"work_item_id": "",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func testTime(t *testing.T) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, "2026-03-01T12:00:00Z")
	require.NoError(t, err)
	return ts
}

func TestCursorRoundTrip(t *testing.T) {
	encoded, err := EncodeAssignmentCursor(&storage.AssignmentCursor{
		CreatedAt:    testTime(t),
		AssignmentID: "a-1",
	})
	require.NoError(t, err)

	decoded, err := DecodeAssignmentCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "a-1", decoded.AssignmentID)
	assert.True(t, decoded.CreatedAt.Equal(testTime(t)))
}

func TestDecodeAssignmentCursor_Empty(t *testing.T) {
	decoded, err := DecodeAssignmentCursor("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeAssignmentCursor_Garbage(t *testing.T) {
	_, err := DecodeAssignmentCursor("not-base64!!!")
	assert.Error(t, err)
}
