// Package session provides message delivery over a persistent gateway
// session. Unlike the webhook sender, the transport is a single stateful
// websocket connection and sends must be serialized through it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"
)

const (
	defaultMinSendInterval = time.Second
	defaultAckTimeout      = 15 * time.Second
	initialReconnectDelay  = 2 * time.Second
	maxReconnectDelay      = time.Minute
)

// Config holds session transport configuration.
type Config struct {
	URL             string        // gateway websocket URL
	Token           string        // session token, sent in the handshake frame
	MinSendInterval time.Duration // minimum spacing between outbound messages
	AckTimeout      time.Duration // how long to wait for the gateway ack
}

// Conn is the subset of the websocket connection the session uses.
// Tests inject an in-memory implementation through DialFunc.
type Conn interface {
	Write(ctx context.Context, v any) error
	Read(ctx context.Context, v any) error
	Close() error
}

// DialFunc establishes a gateway connection.
type DialFunc func(ctx context.Context, url string) (Conn, error)

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Write(ctx context.Context, v any) error {
	return wsjson.Write(ctx, c.conn, v)
}

func (c *wsConn) Read(ctx context.Context, v any) error {
	return wsjson.Read(ctx, c.conn, v)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "shutdown")
}

func defaultDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type sendRequest struct {
	to     string
	text   string
	result chan sendResult
}

type sendResult struct {
	externalID string
	err        error
}

// Session delivers messages over one gateway connection. A single
// dispatch goroutine owns the connection, so messages never interleave
// and the per-session rate limit is enforced in one place.
type Session struct {
	config  Config
	dial    DialFunc
	limiter *rate.Limiter

	requests  chan *sendRequest
	stopCh    chan struct{}
	wg        sync.WaitGroup
	connected atomic.Bool
	seq       atomic.Uint64

	reconnectInitial time.Duration
	reconnectMax     time.Duration
}

// NewSession creates a session sender.
// Returns error if the gateway URL is missing.
func NewSession(config Config) (*Session, error) {
	if config.URL == "" {
		return nil, errors.New("session sender: gateway URL is required")
	}
	if config.MinSendInterval <= 0 {
		config.MinSendInterval = defaultMinSendInterval
	}
	if config.AckTimeout <= 0 {
		config.AckTimeout = defaultAckTimeout
	}

	slog.Info("session sender configured",
		"url", config.URL,
		"min_send_interval", config.MinSendInterval,
	)

	return &Session{
		config:           config,
		dial:             defaultDial,
		limiter:          rate.NewLimiter(rate.Every(config.MinSendInterval), 1),
		requests:         make(chan *sendRequest),
		stopCh:           make(chan struct{}),
		reconnectInitial: initialReconnectDelay,
		reconnectMax:     maxReconnectDelay,
	}, nil
}

// SetDial overrides the dial function. Intended for tests.
func (s *Session) SetDial(dial DialFunc) {
	s.dial = dial
}

// Name returns the provider name.
func (s *Session) Name() string {
	return "session"
}

// Start launches the connection loop.
func (s *Session) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.connectLoop(ctx)
}

// Stop closes the session and waits for the connection loop to exit.
func (s *Session) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("session sender stopped")
}

// Send hands one message to the dispatch goroutine and waits for the
// gateway ack. While the session is disconnected it fails immediately
// with a retryable error so the queue backs the item off instead of
// blocking a batch.
func (s *Session) Send(ctx context.Context, destination, text string) (string, error) {
	if !s.connected.Load() {
		return "", &RetryableError{Message: "session disconnected"}
	}

	req := &sendRequest{
		to:     destination,
		text:   text,
		result: make(chan sendResult, 1),
	}

	// The connection may drop between the check above and the handoff,
	// leaving no dispatch goroutine to take the request. The wait is
	// bounded so a dead session cannot stall the caller's batch.
	handoff := time.NewTimer(s.config.AckTimeout)
	defer handoff.Stop()

	select {
	case s.requests <- req:
	case <-handoff.C:
		return "", &RetryableError{Message: "session disconnected"}
	case <-s.stopCh:
		return "", &RetryableError{Message: "session shutting down"}
	case <-ctx.Done():
		return "", &RetryableError{Message: fmt.Sprintf("send cancelled: %v", ctx.Err())}
	}

	select {
	case res := <-req.result:
		return res.externalID, res.err
	case <-ctx.Done():
		return "", &RetryableError{Message: fmt.Sprintf("send cancelled: %v", ctx.Err())}
	}
}

// connectLoop keeps one connection alive, reconnecting with exponential
// backoff after failures.
func (s *Session) connectLoop(ctx context.Context) {
	defer s.wg.Done()

	retryDelay := s.reconnectInitial

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		err := s.runConnection(ctx)
		if s.connected.Load() {
			// The handshake succeeded during this run, so the backoff
			// restarts from the initial delay.
			retryDelay = s.reconnectInitial
		}
		s.connected.Store(false)
		if err == nil {
			return // clean shutdown
		}

		slog.Warn("session connection lost",
			"error", err,
			"retry_in", retryDelay,
		)

		select {
		case <-time.After(retryDelay):
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}

		retryDelay *= 2
		if retryDelay > s.reconnectMax {
			retryDelay = s.reconnectMax
		}
	}
}

type handshakeFrame struct {
	Op    string `json:"op"`
	Token string `json:"token,omitempty"`
}

type sendFrame struct {
	ID   uint64 `json:"id"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type ackFrame struct {
	ID        uint64 `json:"id"`
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// runConnection dials, authenticates and serves send requests until the
// connection fails or the session is stopped. Returns nil only on a
// clean shutdown.
func (s *Session) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	conn, err := s.dial(dialCtx, s.config.URL)
	cancel()
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Write(ctx, handshakeFrame{Op: "auth", Token: s.config.Token}); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	slog.Info("session connected", "url", s.config.URL)
	s.connected.Store(true)

	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		case req := <-s.requests:
			if err := s.dispatch(ctx, conn, req); err != nil {
				return err
			}
		}
	}
}

// dispatch writes one message and waits for its ack. A transport error
// is reported both to the caller and to runConnection so the connection
// is torn down and redialed.
func (s *Session) dispatch(ctx context.Context, conn Conn, req *sendRequest) error {
	if err := s.limiter.Wait(ctx); err != nil {
		req.result <- sendResult{err: &RetryableError{Message: fmt.Sprintf("rate limiter: %v", err)}}
		return nil
	}

	id := s.seq.Add(1)
	frame := sendFrame{ID: id, To: req.to, Text: req.text}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.AckTimeout)
	defer cancel()

	if err := conn.Write(sendCtx, frame); err != nil {
		req.result <- sendResult{err: &RetryableError{Message: fmt.Sprintf("write frame: %v", err)}}
		return fmt.Errorf("write frame: %w", err)
	}

	var ack ackFrame
	if err := conn.Read(sendCtx, &ack); err != nil {
		req.result <- sendResult{err: &RetryableError{Message: fmt.Sprintf("read ack: %v", err)}}
		return fmt.Errorf("read ack: %w", err)
	}

	if ack.ID != id {
		req.result <- sendResult{err: &RetryableError{Message: "gateway ack out of order"}}
		return fmt.Errorf("ack id mismatch: got %d, want %d", ack.ID, id)
	}

	if ack.Status != "sent" {
		// The gateway accepted the frame but rejected the message,
		// e.g. an unreachable destination. Retrying the same payload
		// cannot succeed.
		req.result <- sendResult{err: &PermanentError{Message: fmt.Sprintf("gateway rejected message: %s", ack.Error)}}
		return nil
	}

	req.result <- sendResult{externalID: ack.MessageID}
	return nil
}

// PermanentError indicates a permanent error that should not be retried.
type PermanentError struct {
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("session error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error that can be retried.
type RetryableError struct {
	Message string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("session error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
