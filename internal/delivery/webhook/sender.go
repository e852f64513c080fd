// Package webhook provides message delivery via an HTTP webhook gateway.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Config holds webhook sender configuration.
type Config struct {
	Endpoint string        // gateway URL messages are POSTed to
	Token    string        // bearer token
	Timeout  time.Duration // request timeout
}

// Sender delivers messages by POSTing them to a gateway endpoint.
// Each send is a standalone HTTP request with no session state.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new webhook sender.
// Returns error if the endpoint or token is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Endpoint == "" {
		return nil, errors.New("webhook sender: endpoint is required")
	}
	if config.Token == "" {
		return nil, errors.New("webhook sender: token is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	slog.Info("webhook sender configured",
		"endpoint", config.Endpoint,
		"timeout", config.Timeout,
	)

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns the provider name.
func (s *Sender) Name() string {
	return "webhook"
}

type sendPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send delivers one message to the gateway. Returns the gateway-assigned
// message id on success.
func (s *Sender) Send(ctx context.Context, destination, text string) (string, error) {
	body, err := json.Marshal(sendPayload{To: destination, Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Network failures and timeouts are transient.
		return "", &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, destination)
}

func (s *Sender) handleResponse(resp *http.Response, destination string) (string, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var result sendResponse
		// Gateways are not required to return a body.
		if len(body) > 0 {
			if err := json.Unmarshal(body, &result); err != nil {
				slog.Debug("webhook response not parseable", "error", err)
			}
		}
		slog.Debug("webhook message sent",
			"destination", destination,
			"external_id", result.MessageID,
		)
		return result.MessageID, nil
	}

	switch resp.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return "", &RetryableError{
			Code:    resp.StatusCode,
			Message: "gateway throttled or timed out",
		}

	case http.StatusUnauthorized, http.StatusForbidden:
		return "", &PermanentError{
			Code:    resp.StatusCode,
			Message: "invalid or expired token",
		}

	default:
		if resp.StatusCode >= 500 {
			return "", &RetryableError{
				Code:    resp.StatusCode,
				Message: fmt.Sprintf("server error: %s", string(body)),
			}
		}
		// Remaining 4xx mean the request itself is bad; retrying the
		// same payload cannot succeed.
		return "", &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("gateway rejected message: %s", string(body)),
		}
	}
}

// PermanentError indicates a permanent error that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error that can be retried.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
