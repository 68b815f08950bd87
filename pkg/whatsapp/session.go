package whatsapp

import (
	"context"
	"fmt"
	"net/url"

	"whatsdata/pkg/whatsapp/types"

	"github.com/goccy/go-json"
)

// GetSession reports the state of the configured session
func (c *WhatsAppClient) GetSession(ctx context.Context) (*types.Session, error) {
	body, err := c.get(ctx, "/api/sessions/"+url.PathEscape(c.config.SessionName))
	if err != nil {
		return nil, err
	}

	var session types.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if session.Name == "" {
		session.Name = c.config.SessionName
	}
	return &session, nil
}
