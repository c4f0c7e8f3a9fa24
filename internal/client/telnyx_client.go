package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glonboarding/hr-lambda-telnyx/internal/secrets"
)

const DefaultBaseURL = "https://api.telnyx.com/v2/messages"

// recipientSpacing separates per-recipient calls of a multi-recipient Send.
const recipientSpacing = 120 * time.Millisecond

const unauthorizedMessage = "gateway rejected the API key (invalid, expired, or wrong format in the secret store)"

var ErrMissingRecipient = errors.New("at least one recipient is required")

type SendRequest struct {
	To        []string
	From      string
	Text      string
	MediaURLs []string
}

func (r SendRequest) IsMMS() bool {
	return len(r.MediaURLs) > 0
}

// Response is what the gateway answered. OK is false when the gateway
// rejected the message with a readable reason, which is carried in Error.
type Response struct {
	OK         bool
	StatusCode int
	Body       json.RawMessage
	Error      string
}

type TelnyxClient struct {
	baseURL string
	keys    secrets.Provider
	client  *http.Client
	spacing time.Duration
}

func NewTelnyxClient(baseURL string, keys secrets.Provider) *TelnyxClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &TelnyxClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		keys:    keys,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		spacing: recipientSpacing,
	}
}

type messageBody struct {
	To        any      `json:"to"`
	From      string   `json:"from"`
	Text      string   `json:"text"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// Send delivers req as SMS, or as MMS when media URLs are present. Several
// recipients are sent one call at a time and aggregated into
// {"messages": [...], "count": n}.
func (c *TelnyxClient) Send(ctx context.Context, req SendRequest) (*Response, error) {
	if len(req.To) == 0 {
		return nil, ErrMissingRecipient
	}

	if len(req.To) == 1 {
		return c.post(ctx, "", c.body(req, req.To[0]))
	}

	messages := make([]json.RawMessage, 0, len(req.To))
	for i, to := range req.To {
		resp, err := c.post(ctx, "", c.body(req, to))
		if err != nil {
			return nil, err
		}
		if !resp.OK {
			return resp, nil
		}
		messages = append(messages, unwrapData(resp.Body))

		if i < len(req.To)-1 {
			if err := sleep(ctx, c.spacing); err != nil {
				return nil, err
			}
		}
	}

	body, err := json.Marshal(map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
	if err != nil {
		return nil, err
	}
	return &Response{OK: true, StatusCode: http.StatusOK, Body: body}, nil
}

// SendGroupMMS addresses every recipient in a single call with a single outcome.
func (c *TelnyxClient) SendGroupMMS(ctx context.Context, req SendRequest) (*Response, error) {
	if len(req.To) == 0 {
		return nil, ErrMissingRecipient
	}
	return c.post(ctx, "/group_mms", messageBody{
		To:        req.To,
		From:      req.From,
		Text:      req.Text,
		MediaURLs: req.MediaURLs,
	})
}

func (c *TelnyxClient) body(req SendRequest, to string) messageBody {
	return messageBody{
		To:        to,
		From:      req.From,
		Text:      req.Text,
		MediaURLs: req.MediaURLs,
	}
}

func (c *TelnyxClient) post(ctx context.Context, path string, payload messageBody) (*Response, error) {
	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("load api key: %w", err)
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if !json.Valid(body) {
			return nil, fmt.Errorf("failed to decode json: body=%q", string(body))
		}
		return &Response{OK: true, StatusCode: resp.StatusCode, Body: body}, nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &Response{StatusCode: resp.StatusCode, Error: unauthorizedMessage}, nil
	}

	if msg := errorMessage(body); msg != "" {
		return &Response{StatusCode: resp.StatusCode, Body: body, Error: msg}, nil
	}

	return nil, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
}

type errorBody struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorMessage pulls a readable reason out of a gateway error body.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	for _, e := range eb.Errors {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Title != "" {
			return e.Title
		}
	}
	if eb.Error != "" {
		return eb.Error
	}
	return eb.Message
}

// unwrapData returns body.data when present, else body.
func unwrapData(body json.RawMessage) json.RawMessage {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data
	}
	return body
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
