package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/renomarket/dispatch-be/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published [][]byte
	err       error
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, body)
	return nil
}

func postForm(t *testing.T, h gin.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST(path, h)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleMessage_PublishesInboundEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler(&Dependencies{Logger: slog.Default(), Publisher: pub})

	w := postForm(t, h.HandleMessage, "/webhooks/messages", url.Values{
		"MessageSid":        {"SM123"},
		"From":              {"whatsapp:+15125550142"},
		"Body":              {"YES"},
		"NumMedia":          {"1"},
		"MediaUrl0":         {"https://cdn.example.com/photo.jpg"},
		"MediaContentType0": {"image/jpeg"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, pub.published, 1)

	var env queue.Envelope
	require.NoError(t, json.Unmarshal(pub.published[0], &env))
	assert.Equal(t, queue.TypeInbound, env.Type)
	require.NotNil(t, env.Inbound)
	assert.Equal(t, "SM123", env.Inbound.ProviderMessageID)
	assert.Equal(t, "whatsapp:+15125550142", env.Inbound.FromPhone)
	assert.Equal(t, "YES", env.Inbound.Body)
	assert.Equal(t, 1, env.Inbound.MediaCount)
	assert.Equal(t, "https://cdn.example.com/photo.jpg", env.Inbound.MediaURL)
	assert.True(t, env.Valid())
}

func TestHandleMessage_MissingFieldsStillAck(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler(&Dependencies{Logger: slog.Default(), Publisher: pub})

	w := postForm(t, h.HandleMessage, "/webhooks/messages", url.Values{
		"Body": {"YES"},
	})

	// Nothing useful to enqueue, but the carrier should not retry.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, pub.published)
}

func TestHandleMessage_PublishFailureReturns500(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	h := NewWebhookHandler(&Dependencies{Logger: slog.Default(), Publisher: pub})

	w := postForm(t, h.HandleMessage, "/webhooks/messages", url.Values{
		"MessageSid": {"SM123"},
		"From":       {"+15125550142"},
		"Body":       {"YES"},
	})

	// 500 makes the carrier redeliver; the dedupe log absorbs duplicates.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleStatus_PublishesStatusEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler(&Dependencies{Logger: slog.Default(), Publisher: pub})

	w := postForm(t, h.HandleStatus, "/webhooks/status", url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, pub.published, 1)

	var env queue.Envelope
	require.NoError(t, json.Unmarshal(pub.published[0], &env))
	assert.Equal(t, queue.TypeStatus, env.Type)
	require.NotNil(t, env.Status)
	assert.Equal(t, "SM123", env.Status.ProviderMessageID)
	assert.Equal(t, "delivered", env.Status.Status)
}
