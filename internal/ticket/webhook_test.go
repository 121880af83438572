package ticket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jortega-dev/warelay/internal/logging"
)

func newFastCreator(url string) *WebhookCreator {
	c := NewWebhookCreator(url, logging.Nop())
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = 5 * time.Millisecond
	return c
}

func TestWebhookCreate(t *testing.T) {
	var got Ticket
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	creator := newFastCreator(srv.URL)
	err := creator.Create(context.Background(), Ticket{
		UserID:      "5215550001",
		Name:        "Ana",
		Subject:     "impresora",
		Description: "no imprime desde ayer",
	})
	require.NoError(t, err)

	assert.Equal(t, "5215550001", got.UserID)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "impresora", got.Subject)
	assert.Equal(t, "no imprime desde ayer", got.Description)
}

func TestWebhookCreateRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	creator := newFastCreator(srv.URL)
	err := creator.Create(context.Background(), Ticket{Subject: "vpn"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookCreateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	creator := newFastCreator(srv.URL)
	err := creator.Create(context.Background(), Ticket{Subject: "vpn"})
	assert.Error(t, err)
}

func TestLogCreator(t *testing.T) {
	creator := NewLogCreator(logging.Nop())
	assert.NoError(t, creator.Create(context.Background(), Ticket{Subject: "vpn"}))
}
