package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMailer_Send(t *testing.T) {
	var (
		got     sendRequest
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewHTTPMailer(&Config{BaseURL: srv.URL})
	err := m.Send(context.Background(), domain.Email{
		From:       "Acme <news@acme.test>",
		To:         "ada@example.com",
		Subject:    "Hi Ada",
		HTML:       "<p>Hello</p>",
		Credential: "sk_live_123",
		JobID:      "job-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk_live_123", headers.Get("Authorization"))
	assert.Equal(t, "job-1", headers.Get("Idempotency-Key"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, sendRequest{From: "Acme <news@acme.test>", To: "ada@example.com", Subject: "Hi Ada", HTML: "<p>Hello</p>"}, got)
}

func TestHTTPMailer_ProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer srv.Close()

	m := NewHTTPMailer(&Config{BaseURL: srv.URL})
	err := m.Send(context.Background(), domain.Email{To: "nope", Credential: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestHTTPMailer_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewHTTPMailer(&Config{BaseURL: srv.URL})
	assert.Error(t, m.Send(ctx, domain.Email{To: "ada@example.com"}))
}
