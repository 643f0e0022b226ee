package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMailer(url string) *HTTPMailer {
	return NewHTTPMailer(HTTPMailerOpts{
		Name:          "test",
		BaseURL:       url,
		SendPath:      "/emails",
		APIKey:        "secret",
		FailThreshold: 3,
		OpenForMs:     60000,
	})
}

func TestSend_Success(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/emails", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-123"})
	}))
	defer srv.Close()

	m := newTestMailer(srv.URL)
	res := m.Send(context.Background(), Message{
		From:    "SendStuff <no-reply@sendstuff.com>",
		To:      []string{"a@example.com"},
		Subject: "hi",
		HTML:    "<p>hi</p>",
	})

	require.True(t, res.Success)
	require.Equal(t, "msg-123", res.MessageID)
	require.Empty(t, res.Error)
	require.Equal(t, []string{"a@example.com"}, got.To)
}

func TestSend_ProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid to address"})
	}))
	defer srv.Close()

	m := newTestMailer(srv.URL)
	res := m.Send(context.Background(), Message{To: []string{"bad"}})

	require.False(t, res.Success)
	require.Contains(t, res.Error, "invalid to address")
	require.Empty(t, res.MessageID)
}

func TestSend_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newTestMailer(srv.URL)

	for i := 0; i < 3; i++ {
		res := m.Send(context.Background(), Message{To: []string{"a@example.com"}})
		require.False(t, res.Success)
	}
	require.EqualValues(t, 3, hits.Load())

	// breaker is open now: fail fast, no request reaches the provider
	res := m.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "circuit open")
	require.EqualValues(t, 3, hits.Load())
}

func TestSend_HalfOpenProbeRecovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-ok"})
	}))
	defer srv.Close()

	m := NewHTTPMailer(HTTPMailerOpts{
		Name:          "test",
		BaseURL:       srv.URL,
		SendPath:      "/emails",
		FailThreshold: 2,
		OpenForMs:     20,
	})

	m.Send(context.Background(), Message{To: []string{"a@example.com"}})
	m.Send(context.Background(), Message{To: []string{"a@example.com"}})

	fail.Store(false)
	time.Sleep(30 * time.Millisecond)

	res := m.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.True(t, res.Success)
	require.Equal(t, "msg-ok", res.MessageID)
}

func TestSendBatch(t *testing.T) {
	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg"})
	}))
	defer srv.Close()

	m := newTestMailer(srv.URL)
	out := m.SendBatch(context.Background(), []Message{
		{To: []string{"a@example.com"}},
		{To: []string{"b@example.com"}},
		{To: []string{"c@example.com"}},
	})

	require.False(t, out.Success)
	require.Len(t, out.Results, 3)
	require.True(t, out.Results[0].Success)
	require.False(t, out.Results[1].Success)
	require.True(t, out.Results[2].Success)
}
