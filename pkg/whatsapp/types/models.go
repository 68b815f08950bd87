package types

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the engine state WAHA reports for a session
type SessionStatus string

const (
	SessionStatusStopped    SessionStatus = "STOPPED"
	SessionStatusStarting   SessionStatus = "STARTING"
	SessionStatusScanQRCode SessionStatus = "SCAN_QR_CODE"
	SessionStatusWorking    SessionStatus = "WORKING"
	SessionStatusFailed     SessionStatus = "FAILED"
)

// Session is the subset of GET /api/sessions/{name} the fetcher needs
type Session struct {
	Name   string        `json:"name"`
	Status SessionStatus `json:"status"`
}

// Ready reports whether the session can serve chat history
func (s Session) Ready() bool {
	return s.Status == SessionStatusWorking
}

// ClientConfig holds connection settings for a WAHA server
type ClientConfig struct {
	BaseURL     string        `json:"base_url" validate:"required,url"`
	APIKey      string        `json:"api_key"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
	SessionName string        `json:"session_name" validate:"required"`
	Timeout     time.Duration `json:"timeout" validate:"required"`
	UserAgent   string        `json:"user_agent"`
}

// ChatMessagesRequest selects one page of a chat's history
type ChatMessagesRequest struct {
	ChatID    string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// ChatMessagesResponse is the object form some WAHA versions return instead
// of a bare array
type ChatMessagesResponse struct {
	Messages []map[string]any `json:"messages"`
	Data     []map[string]any `json:"data"`
}

// APIError is a non-2xx answer from WAHA
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("WAHA request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable is true for server side failures
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Hint explains the common 422 session states
func (e *APIError) Hint() string {
	if e.StatusCode != 422 {
		return ""
	}
	switch {
	case strings.Contains(e.Body, string(SessionStatusScanQRCode)):
		return "session needs a QR code scan"
	case strings.Contains(e.Body, "DISCONNECTED"):
		return "session is disconnected; reconnect it in WAHA"
	}
	return ""
}
