package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/internal/queue"
)

// HandleMessage handles POST /webhooks/messages
// The carrier posts inbound SMS and WhatsApp messages here as form data. The
// handler only validates, enqueues, and returns; classification and state
// transitions happen in the dispatch service. A missing message id or sender
// still gets a 200 so the carrier does not retry garbage forever.
func (h *WebhookHandler) HandleMessage(c *gin.Context) {
	messageSID := c.PostForm("MessageSid")
	from := c.PostForm("From")
	body := c.PostForm("Body")

	if messageSID == "" || from == "" {
		h.logger.Warn("Carrier message webhook missing required fields",
			slog.String("message_sid", messageSID),
			slog.String("from", from),
		)
		c.Status(http.StatusOK)
		return
	}

	mediaCount, _ := strconv.Atoi(c.PostForm("NumMedia"))

	env := queue.Envelope{
		Type: queue.TypeInbound,
		Inbound: &domain.InboundMessage{
			ProviderMessageID: messageSID,
			FromPhone:         from,
			Body:              body,
			MediaCount:        mediaCount,
			MediaURL:          c.PostForm("MediaUrl0"),
			MediaContentType:  c.PostForm("MediaContentType0"),
			ReceivedAt:        time.Now().UTC(),
		},
	}

	if !h.publish(c, &env) {
		return
	}

	h.logger.Info("Inbound message enqueued",
		slog.String("provider_message_id", messageSID),
		slog.Int("media_count", mediaCount),
	)

	c.Status(http.StatusOK)
}

// HandleStatus handles POST /webhooks/status
// Carrier delivery status callbacks for outbound notifications.
func (h *WebhookHandler) HandleStatus(c *gin.Context) {
	messageSID := c.PostForm("MessageSid")
	status := c.PostForm("MessageStatus")

	if messageSID == "" || status == "" {
		h.logger.Warn("Carrier status webhook missing required fields",
			slog.String("message_sid", messageSID),
			slog.String("status", status),
		)
		c.Status(http.StatusOK)
		return
	}

	env := queue.Envelope{
		Type: queue.TypeStatus,
		Status: &queue.DeliveryStatus{
			ProviderMessageID: messageSID,
			Status:            status,
		},
	}

	if !h.publish(c, &env) {
		return
	}

	c.Status(http.StatusOK)
}

// publish serializes and enqueues the envelope. A publish failure returns 500
// so the carrier redelivers; the dedupe log absorbs the duplicate if the
// first publish actually went through.
func (h *WebhookHandler) publish(c *gin.Context, env *queue.Envelope) bool {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Failed to marshal queue envelope", slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return false
	}

	if err := h.publisher.PublishWithRetry(c.Request.Context(), payload, "application/json"); err != nil {
		h.logger.Error("Failed to enqueue carrier callback", slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return false
	}

	return true
}
