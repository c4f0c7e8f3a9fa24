package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glonboarding/hr-lambda-telnyx/internal/secrets"
)

type capturedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Body          map[string]any
}

type recorder struct {
	mu   sync.Mutex
	reqs []capturedRequest
}

func (r *recorder) capture(t *testing.T, req *http.Request) {
	t.Helper()

	b, _ := ioReadAll(req)
	var body map[string]any
	_ = json.Unmarshal(b, &body)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, capturedRequest{
		Method:        req.Method,
		Path:          req.URL.Path,
		Authorization: req.Header.Get("Authorization"),
		ContentType:   req.Header.Get("Content-Type"),
		Body:          body,
	})
}

func (r *recorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.reqs...)
}

func newClient(url string) *TelnyxClient {
	return NewTelnyxClient(url, secrets.NewCachedProvider(secrets.StaticSource("KEY"), time.Minute))
}

func TestTelnyxClient_Send_Success(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.capture(t, r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"id":"tx-abc","to":[{"phone_number":"+15551234567"}]}}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := c.Send(ctx, SendRequest{To: []string{"+15551234567"}, From: "+15550000000", Text: "hello"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected OK response, got %+v", resp)
	}
	if !strings.Contains(string(resp.Body), "tx-abc") {
		t.Fatalf("expected body to carry gateway id, got %s", resp.Body)
	}

	reqs := rec.all()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	got := reqs[0]
	if got.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %q", got.Method)
	}
	if got.Authorization != "Bearer KEY" {
		t.Fatalf("expected bearer auth, got %q", got.Authorization)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", got.ContentType)
	}
	if got.Body["to"] != "+15551234567" || got.Body["from"] != "+15550000000" || got.Body["text"] != "hello" {
		t.Fatalf("unexpected request body: %v", got.Body)
	}
	if _, ok := got.Body["media_urls"]; ok {
		t.Fatalf("expected no media_urls for SMS, got %v", got.Body)
	}
}

func TestTelnyxClient_Send_MMSIncludesMedia(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.capture(t, r)
		_, _ = w.Write([]byte(`{"data":{"id":"tx-mms"}}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)

	_, err := c.Send(context.Background(), SendRequest{
		To:        []string{"+1555"},
		From:      "+1999",
		Text:      "pic",
		MediaURLs: []string{"https://example.com/a.png"},
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	media, ok := rec.all()[0].Body["media_urls"].([]any)
	if !ok || len(media) != 1 {
		t.Fatalf("expected media_urls in body, got %v", rec.all()[0].Body)
	}
}

func TestTelnyxClient_Send_MultipleRecipientsAggregates(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.capture(t, r)
		n := len(rec.all())
		_, _ = w.Write([]byte(`{"data":{"id":"tx-` + string(rune('0'+n)) + `"}}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	c.spacing = time.Millisecond

	resp, err := c.Send(context.Background(), SendRequest{To: []string{"+1", "+2", "+3"}, From: "+9", Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	var agg struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(resp.Body, &agg); err != nil {
		t.Fatalf("decode aggregate: %v body=%s", err, resp.Body)
	}
	if agg.Count != 3 || len(agg.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %+v", agg)
	}
	if agg.Messages[0].ID != "tx-1" {
		t.Fatalf("expected first id tx-1, got %q", agg.Messages[0].ID)
	}
	if len(rec.all()) != 3 {
		t.Fatalf("expected one request per recipient, got %d", len(rec.all()))
	}
}

func TestTelnyxClient_SendGroupMMS(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.capture(t, r)
		_, _ = w.Write([]byte(`{"data":{"id":"grp-1"}}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)

	resp, err := c.SendGroupMMS(context.Background(), SendRequest{
		To:        []string{"+1", "+2"},
		From:      "+9",
		Text:      "group",
		MediaURLs: []string{"https://example.com/a.png"},
	})
	if err != nil {
		t.Fatalf("SendGroupMMS() error: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected OK, got %+v", resp)
	}

	reqs := rec.all()
	if len(reqs) != 1 {
		t.Fatalf("expected a single call, got %d", len(reqs))
	}
	if reqs[0].Path != "/group_mms" {
		t.Fatalf("expected /group_mms path, got %q", reqs[0].Path)
	}
	if to, ok := reqs[0].Body["to"].([]any); !ok || len(to) != 2 {
		t.Fatalf("expected recipient array, got %v", reqs[0].Body["to"])
	}
}

func TestTelnyxClient_Send_GatewayErrorBecomesNotOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"code":"40310","title":"Invalid 'to' address","detail":"The 'to' address is not a valid phone number."}]}`))
	}))
	defer srv.Close()

	resp, err := newClient(srv.URL).Send(context.Background(), SendRequest{To: []string{"bad"}, From: "+9", Text: "hi"})
	if err != nil {
		t.Fatalf("expected gateway rejection to be a response, got error %v", err)
	}
	if resp.OK {
		t.Fatalf("expected not OK")
	}
	if resp.Error != "The 'to' address is not a valid phone number." {
		t.Fatalf("unexpected error message %q", resp.Error)
	}
}

func TestTelnyxClient_Send_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	resp, err := newClient(srv.URL).Send(context.Background(), SendRequest{To: []string{"+1"}, From: "+9", Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OK || !strings.Contains(resp.Error, "rejected the API key") {
		t.Fatalf("expected api key rejection, got %+v", resp)
	}
}

func TestTelnyxClient_Send_UnparseableErrorReturnsErrorWithBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Send(context.Background(), SendRequest{To: []string{"+1"}, From: "+9", Text: "hi"})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "unexpected status code: 502") {
		t.Fatalf("expected error to mention status code, got: %v", err)
	}
	if !strings.Contains(msg, `body="upstream down"`) {
		t.Fatalf("expected error to include body, got: %v", err)
	}
}

func TestTelnyxClient_Send_InvalidJSON_ReturnsErrorWithBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("THIS IS NOT JSON"))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Send(context.Background(), SendRequest{To: []string{"+1"}, From: "+9", Text: "hi"})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to decode json") {
		t.Fatalf("expected decode error, got: %v", err)
	}
}

func TestTelnyxClient_Send_MissingRecipient(t *testing.T) {
	t.Parallel()

	_, err := newClient("http://unused").Send(context.Background(), SendRequest{From: "+9", Text: "hi"})
	if !errors.Is(err, ErrMissingRecipient) {
		t.Fatalf("expected ErrMissingRecipient, got %v", err)
	}
}

func TestTelnyxClient_Send_MissingAPIKey(t *testing.T) {
	t.Parallel()

	c := NewTelnyxClient("http://unused", secrets.NewCachedProvider(secrets.StaticSource(""), time.Minute))

	_, err := c.Send(context.Background(), SendRequest{To: []string{"+1"}, From: "+9", Text: "hi"})
	if !errors.Is(err, secrets.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestTelnyxClient_Send_ContextCanceled(t *testing.T) {
	t.Parallel()

	// Server that intentionally blocks longer than our context deadline.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data":{"id":"abc"}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newClient(srv.URL).Send(ctx, SendRequest{To: []string{"+1"}, From: "+9", Text: "hi"})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	// On cancellation, net/http returns context deadline exceeded.
	if !strings.Contains(strings.ToLower(err.Error()), "context") &&
		!strings.Contains(strings.ToLower(err.Error()), "deadline") {
		t.Fatalf("expected context/deadline error, got: %v", err)
	}
}

func ioReadAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
