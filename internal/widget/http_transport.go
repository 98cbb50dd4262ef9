package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPTransport talks to a running server the same way runtime.js does.
// It is used by the terminal chat client.
type HTTPTransport struct {
	Endpoints Endpoints
	Client    *http.Client
}

func NewHTTPTransport(ep Endpoints) *HTTPTransport {
	return &HTTPTransport{Endpoints: ep, Client: &http.Client{Timeout: 90 * time.Second}}
}

func (t *HTTPTransport) SendTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	var out TurnResponse
	resp, err := t.post(ctx, t.Endpoints.Chat, req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
		return out, fmt.Errorf("turn endpoint returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode turn response: %w", err)
	}
	return out, nil
}

// Ping sends an analytics event and ignores the outcome.
func (t *HTTPTransport) Ping(widgetID, eventType string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := t.post(ctx, t.Endpoints.Analytics, map[string]string{"widgetId": widgetID, "eventType": eventType})
	if err == nil {
		resp.Body.Close()
	}
}

func (t *HTTPTransport) post(ctx context.Context, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.Client.Do(req)
}
