package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(&Config{
		AccountSID: "AC0000",
		AuthToken:  "secret",
		FromNumber: "+15125550100",
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
	}, slog.Default())
}

func TestClient_Send(t *testing.T) {
	var gotTo, gotBody, gotFrom string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotTo = r.PostFormValue("To")
		gotBody = r.PostFormValue("Body")
		gotFrom = r.PostFormValue("From")

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC0000", user)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123"}`))
	})

	sid, err := client.Send(context.Background(), "+15125550142", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)
	assert.Equal(t, "+15125550142", gotTo)
	assert.Equal(t, "hello", gotBody)
	assert.Equal(t, "+15125550100", gotFrom)
}

func TestClient_Send_CarrierError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Send(context.Background(), "+15125550142", "hello")
	require.Error(t, err)

	var terr *domain.TransportError
	assert.True(t, errors.As(err, &terr), "error should be a TransportError")
}

func TestClient_Send_Timeout(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"sid":"SM123"}`))
	})
	client.http.Timeout = 50 * time.Millisecond

	_, err := client.Send(context.Background(), "+15125550142", "hello")
	require.Error(t, err)

	var terr *domain.TransportError
	assert.True(t, errors.As(err, &terr))
}
