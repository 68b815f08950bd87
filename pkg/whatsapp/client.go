// Package whatsapp is a read-only client for the WAHA (WhatsApp HTTP API)
// endpoints that expose chat history and session state.
package whatsapp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"whatsdata/pkg/whatsapp/types"

	"github.com/goccy/go-json"
)

const defaultUserAgent = "whatsdata-fetcher/1.0"

// maxErrorBody caps how much of a failed response is kept in an APIError
const maxErrorBody = 512

type Client interface {
	GetChatMessages(ctx context.Context, req types.ChatMessagesRequest) ([]map[string]any, error)
	GetSession(ctx context.Context) (*types.Session, error)
}

type WhatsAppClient struct {
	config types.ClientConfig
	client *http.Client
}

func NewClient(config types.ClientConfig) Client {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	return &WhatsAppClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// GetChatMessages fetches one page of a chat. WAHA answers with either a bare
// array or an object carrying "messages" or "data".
func (c *WhatsAppClient) GetChatMessages(ctx context.Context, req types.ChatMessagesRequest) ([]map[string]any, error) {
	if req.ChatID == "" {
		return nil, fmt.Errorf("chat id is required")
	}

	params := url.Values{}
	if req.SortBy != "" {
		params.Set("sortBy", req.SortBy)
	}
	if req.SortOrder != "" {
		params.Set("sortOrder", req.SortOrder)
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	params.Set("offset", strconv.Itoa(req.Offset))

	endpoint := fmt.Sprintf("/api/%s/chats/%s/messages?%s",
		url.PathEscape(c.config.SessionName), url.PathEscape(req.ChatID), params.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return decodeMessages(body)
}

func decodeMessages(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []map[string]any{}, nil
	}

	if trimmed[0] == '[' {
		var list []map[string]any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode messages: %w", err)
		}
		return list, nil
	}

	var wrapped types.ChatMessagesResponse
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	switch {
	case wrapped.Messages != nil:
		return wrapped.Messages, nil
	case wrapped.Data != nil:
		return wrapped.Data, nil
	}
	return []map[string]any{}, nil
}

func (c *WhatsAppClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &types.APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return body, nil
}

func (c *WhatsAppClient) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.Header.Set("X-Api-Key", c.config.APIKey)
	}
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}
}
