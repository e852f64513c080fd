package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Defaults(t *testing.T) {
	sender, err := NewSender(Config{
		Endpoint: "https://gateway.example.com/send",
		Token:    "secret",
	})

	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, sender.config.Timeout)
	assert.NotNil(t, sender.httpClient)
}

func TestNewSender_MissingEndpoint(t *testing.T) {
	_, err := NewSender(Config{Token: "secret"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")
}

func TestNewSender_MissingToken(t *testing.T) {
	_, err := NewSender(Config{Endpoint: "https://gateway.example.com/send"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}

func TestSender_Name(t *testing.T) {
	sender, err := NewSender(Config{Endpoint: "https://example.com", Token: "x"})
	require.NoError(t, err)
	assert.Equal(t, "webhook", sender.Name())
}

func TestSender_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var payload sendPayload
		err := json.NewDecoder(r.Body).Decode(&payload)
		require.NoError(t, err)
		assert.Equal(t, "+5511999990000", payload.To)
		assert.Equal(t, "Lembrete de consulta", payload.Text)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message_id":"msg-123"}`))
	}))
	defer server.Close()

	sender, err := NewSender(Config{Endpoint: server.URL, Token: "secret"})
	require.NoError(t, err)

	externalID, err := sender.Send(context.Background(), "+5511999990000", "Lembrete de consulta")

	assert.NoError(t, err)
	assert.Equal(t, "msg-123", externalID)
}

func TestSender_Send_SuccessEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender, err := NewSender(Config{Endpoint: server.URL, Token: "secret"})
	require.NoError(t, err)

	externalID, err := sender.Send(context.Background(), "+5511999990000", "oi")

	assert.NoError(t, err)
	assert.Empty(t, externalID)
}

func TestSender_Send_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid destination"))
	}))
	defer server.Close()

	sender, err := NewSender(Config{Endpoint: server.URL, Token: "secret"})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), "+5511999990000", "oi")

	require.Error(t, err)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, http.StatusBadRequest, permErr.Code)
	assert.False(t, permErr.IsRetryable())
}

func TestSender_Send_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	sender, err := NewSender(Config{Endpoint: server.URL, Token: "expired"})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), "+5511999990000", "oi")

	require.Error(t, err)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.Contains(t, permErr.Message, "invalid or expired token")
}

func TestSender_Send_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sender, err := NewSender(Config{Endpoint: server.URL, Token: "secret"})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), "+5511999990000", "oi")

	require.Error(t, err)
	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, http.StatusTooManyRequests, retryErr.Code)
	assert.True(t, retryErr.IsRetryable())
}

func TestSender_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender, err := NewSender(Config{Endpoint: server.URL, Token: "secret"})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), "+5511999990000", "oi")

	require.Error(t, err)
	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, http.StatusBadGateway, retryErr.Code)
}

func TestSender_Send_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	sender, err := NewSender(Config{
		Endpoint: server.URL,
		Token:    "secret",
		Timeout:  time.Second,
	})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), "+5511999990000", "oi")

	require.Error(t, err)
	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
	assert.True(t, retryErr.IsRetryable())
}

func TestPermanentError_IsRetryable(t *testing.T) {
	err := &PermanentError{Code: 400, Message: "bad request"}

	assert.False(t, err.IsRetryable())
	assert.Contains(t, err.Error(), "400")
}

func TestRetryableError_IsRetryable(t *testing.T) {
	err := &RetryableError{Message: "connection refused"}

	assert.True(t, err.IsRetryable())
	assert.Contains(t, err.Error(), "connection refused")
}
