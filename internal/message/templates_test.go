package message

import (
	"strings"
	"testing"

	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/stretchr/testify/assert"
)

func testData() Data {
	return Data{
		ContractorName: "Rivera Plumbing",
		ProjectName:    "Oak Street Duplex",
		Description:    "Replace kitchen faucet",
		Area:           "Kitchen",
		Trade:          domain.TradePlumbing,
		Priority:       domain.PriorityMedium,
		EstimatedHours: 1.5,
		AdminContact:   "(512) 555-0100",
	}
}

func TestNewAssignment_StandardVariant(t *testing.T) {
	d := testData()
	body := NewAssignment(d)

	assert.Contains(t, body, d.Description)
	assert.Contains(t, body, d.ProjectName)
	assert.Contains(t, body, "Kitchen")
	assert.Contains(t, body, "YES")
	assert.NotContains(t, body, "URGENT")
	assert.NotContains(t, body, d.AdminContact)
	assert.NotContains(t, body, "ETA")
}

func TestNewAssignment_UrgentVariant(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Data)
	}{
		{"high priority item", func(d *Data) { d.Priority = domain.PriorityHigh }},
		{"urgent flag on assignment", func(d *Data) { d.Urgent = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testData()
			tt.mutate(&d)
			body := NewAssignment(d)

			// The urgent variant is a different conversational contract:
			// it demands an ETA and names the escalation contact.
			assert.Contains(t, body, "URGENT")
			assert.Contains(t, body, "ETA")
			assert.Contains(t, body, d.AdminContact)
			assert.Contains(t, body, d.Description)
		})
	}
}

func TestReminder_Variants(t *testing.T) {
	d := testData()
	standard := Reminder(d)
	assert.Contains(t, standard, d.Description)
	assert.NotContains(t, standard, d.AdminContact)

	d.Priority = domain.PriorityHigh
	urgent := Reminder(d)
	assert.Contains(t, urgent, d.AdminContact)
	assert.Contains(t, urgent, "ETA")
}

func TestConfirmations(t *testing.T) {
	d := testData()

	t.Run("accept confirmation names the work item", func(t *testing.T) {
		body := AcceptConfirmation(d)
		assert.Contains(t, body, d.Description)
		assert.Contains(t, body, d.ContractorName)
	})

	t.Run("decline ack names the work item", func(t *testing.T) {
		assert.Contains(t, DeclineAck(d), d.Description)
	})

	t.Run("completion confirmation names the work item", func(t *testing.T) {
		body := CompletionConfirmation(d)
		assert.Contains(t, body, d.Description)
		assert.Contains(t, body, d.ProjectName)
	})

	t.Run("reassigned notice names the work item", func(t *testing.T) {
		assert.Contains(t, ReassignedNotice(d), d.Description)
	})
}

func TestInfoReply(t *testing.T) {
	d := testData()
	body := InfoReply(d)
	assert.Contains(t, body, "Kitchen")
	assert.Contains(t, body, domain.TradePlumbing)
	assert.Contains(t, body, "1.5")

	t.Run("omits empty fields", func(t *testing.T) {
		d := testData()
		d.Area = ""
		d.EstimatedHours = 0
		body := InfoReply(d)
		assert.NotContains(t, body, "Location:")
		assert.NotContains(t, body, "Estimate:")
	})
}

func TestHelp_ListsValidReplies(t *testing.T) {
	body := Help()
	for _, word := range []string{"YES", "NO", "STARTED", "DONE"} {
		assert.Contains(t, body, word)
	}
}

func TestTemplates_ArePure(t *testing.T) {
	d := testData()
	for i := 0; i < 5; i++ {
		assert.Equal(t, NewAssignment(d), NewAssignment(d))
		assert.Equal(t, Reminder(d), Reminder(d))
		assert.Equal(t, Help(), Help())
	}
}

func TestNoPendingWork(t *testing.T) {
	assert.True(t, strings.Contains(NoPendingWork(), "no pending"))
}
