package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one outgoing email handed to the provider.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// Result is the outcome of a single send. Provider-side rejections and
// network errors both land here as Success=false; Send never returns a
// Go error for them.
type Result struct {
	Success   bool
	MessageID string
	Error     string
}

// BatchResult aggregates per-message outcomes. Success is true only when
// every individual send succeeded.
type BatchResult struct {
	Success bool
	Results []Result
}

// Mailer sends transactional email. Implementations carry no retry logic;
// retries belong to the queue engine, pacing belongs to the dispatcher.
type Mailer interface {
	Name() string
	Send(ctx context.Context, msg Message) Result
	SendBatch(ctx context.Context, msgs []Message) BatchResult
}

// HTTPMailer talks to a REST email provider (Resend-style JSON API).
// A micro circuit breaker shields a flapping provider; while open, sends
// fail fast with an unsuccessful Result rather than an error.
type HTTPMailer struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
	br       *breaker
}

type HTTPMailerOpts struct {
	Name          string
	BaseURL       string
	SendPath      string
	APIKey        string
	TimeoutMs     int
	FailThreshold int
	OpenForMs     int
}

func NewHTTPMailer(opts HTTPMailerOpts) *HTTPMailer {
	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = 10000
	}
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = 5
	}
	if opts.OpenForMs <= 0 {
		opts.OpenForMs = 15000
	}

	return &HTTPMailer{
		name:     opts.Name,
		endpoint: opts.BaseURL + opts.SendPath,
		apiKey:   opts.APIKey,
		client:   &http.Client{Timeout: time.Duration(opts.TimeoutMs) * time.Millisecond},
		br:       newBreaker(opts.FailThreshold, time.Duration(opts.OpenForMs)*time.Millisecond),
	}
}

var _ Mailer = (*HTTPMailer)(nil)

func (m *HTTPMailer) Name() string { return m.name }

func (m *HTTPMailer) Send(ctx context.Context, msg Message) Result {
	if !m.br.tryAcquire() {
		return Result{Success: false, Error: "provider unavailable: circuit open"}
	}

	id, err := m.post(ctx, msg)
	if err != nil {
		m.br.onFailure()
		return Result{Success: false, Error: err.Error()}
	}

	m.br.onSuccess()
	return Result{Success: true, MessageID: id}
}

func (m *HTTPMailer) SendBatch(ctx context.Context, msgs []Message) BatchResult {
	out := BatchResult{Success: true, Results: make([]Result, 0, len(msgs))}
	for _, msg := range msgs {
		res := m.Send(ctx, msg)
		if !res.Success {
			out.Success = false
		}
		out.Results = append(out.Results, res)
	}
	return out
}

type sendResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (m *HTTPMailer) post(ctx context.Context, msg Message) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	res, err := m.client.Do(req)
	if err != nil {
		return "", err
	}

	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	if res.StatusCode/100 != 2 {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			return "", fmt.Errorf("provider=%s status=%d: %s", m.name, res.StatusCode, e.Message)
		}
		return "", fmt.Errorf("provider=%s status=%d", m.name, res.StatusCode)
	}

	var ok sendResponse
	if err := json.Unmarshal(body, &ok); err != nil {
		return "", fmt.Errorf("provider=%s bad response: %w", m.name, err)
	}
	return ok.ID, nil
}
