package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lodeworks/toolbridge/internal/errors"
)

// DefaultRequestTimeout bounds how long a caller waits for a response frame.
const DefaultRequestTimeout = 30 * time.Second

// Transport defines the minimal interface needed for protocol operations.
//
// This interface is satisfied by transport.ProcessTransport but allows for
// testing with mock transports.
type Transport interface {
	ReadMessages(ctx context.Context) (<-chan json.RawMessage, <-chan error)
	SendMessage(ctx context.Context, data []byte) error
}

// Conn multiplexes concurrent requests over one tool-server transport.
//
// The Conn handles:
//   - Allocating monotonically increasing request ids
//   - Matching incoming response frames to waiting callers by id
//   - Per-request timeout enforcement
//   - Dropping late responses and malformed frames without disturbing
//     other pending requests
//
// The Conn must be started with Start() before use and owns the goroutine
// that reads and routes frames. There is no ordering guarantee between
// requests and their responses beyond id matching.
type Conn struct {
	log       *slog.Logger
	transport Transport
	timeout   time.Duration

	// Request tracking
	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan *Response

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewConn creates a new protocol connection over the given transport.
//
// A non-positive timeout selects DefaultRequestTimeout. The transport must
// be started before calling Start().
func NewConn(log *slog.Logger, transport Transport, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Conn{
		log:       log.With("component", "protocol"),
		transport: transport,
		timeout:   timeout,
		pending:   make(map[int64]chan *Response, 8),
		done:      make(chan struct{}),
	}
}

// closeDone safely closes the done channel exactly once.
func (c *Conn) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// setFatalError stores a fatal error and broadcasts to all waiters.
func (c *Conn) setFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

// FatalError returns the transport error that stopped the connection, if any.
// A nil return after Done() means the process exited cleanly.
func (c *Conn) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// Done returns a channel that is closed when the connection stops.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Start begins reading frames from the transport and routing responses.
func (c *Conn) Start(ctx context.Context) {
	messages, errs := c.transport.ReadMessages(ctx)

	c.wg.Add(1)

	go c.readLoop(ctx, messages, errs)

	c.log.Debug("Connection started")
}

// Stop shuts down the connection and waits for the read loop to exit.
// Safe to call multiple times. Pending requests fail with ErrChannelClosed.
func (c *Conn) Stop() {
	c.closeDone()
	c.wg.Wait()
	c.log.Debug("Connection stopped")
}

// Call sends a request and waits for the matching response.
//
// The request id is allocated from a strictly increasing counter and is
// never reused while its request is pending. The pending entry is removed
// exactly once: by the matching response, by the timeout, or by the caller
// abandoning the wait.
//
// Returns the raw result member on success, *errors.ServerError when the
// response carries an error member, ErrRequestTimeout when no matching
// frame arrives in time, and ErrChannelClosed when the process exits while
// the request is in flight.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	responseChan := make(chan *Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = responseChan
	c.pendingMu.Unlock()

	c.log.Debug("Sending request", "id", id, "method", method)

	req := Request{JSONRPC: Version, ID: id, Method: method, Params: params}

	data, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)

		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	if err := c.transport.SendMessage(ctx, data); err != nil {
		c.removePending(id)

		return nil, fmt.Errorf("send %s request: %w", method, err)
	}

	select {
	case resp := <-responseChan:
		if resp.Error != nil {
			c.log.Warn("Request returned error", "id", id, "method", method, "error", resp.Error.Message)

			return nil, &errors.ServerError{Code: resp.Error.Code, Message: resp.Error.Message}
		}

		c.log.Debug("Received response", "id", id)

		return resp.Result, nil

	case <-time.After(c.timeout):
		c.removePending(id)
		c.log.Warn("Request timed out", "id", id, "method", method, "timeout", c.timeout)

		return nil, fmt.Errorf("%w: %s after %s", errors.ErrRequestTimeout, method, c.timeout)

	case <-c.done:
		c.removePending(id)

		if err := c.FatalError(); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrChannelClosed, err)
		}

		return nil, errors.ErrChannelClosed

	case <-ctx.Done():
		c.removePending(id)

		return nil, ctx.Err()
	}
}

// Notify sends a notification frame; the server never replies to it.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	data, err := json.Marshal(Notification{JSONRPC: Version, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", method, err)
	}

	if err := c.transport.SendMessage(ctx, data); err != nil {
		return fmt.Errorf("send %s notification: %w", method, err)
	}

	return nil
}

// removePending drops the pending entry for id, if still tracked.
func (c *Conn) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop reads frames from the transport and routes responses by id.
// Malformed frames and decode errors are logged and dropped; a transport
// error or channel close stops the loop and fails all pending requests.
func (c *Conn) readLoop(ctx context.Context, messages <-chan json.RawMessage, errs <-chan error) {
	defer c.wg.Done()
	defer c.closeDone()

	for {
		select {
		case frame, ok := <-messages:
			if !ok {
				c.log.Debug("Frame channel closed")

				return
			}

			c.handleFrame(frame)

		case err, ok := <-errs:
			if !ok {
				return
			}

			var decodeErr *errors.FrameDecodeError
			if stderrors.As(err, &decodeErr) {
				// Logged and dropped; the pending table is untouched.
				c.log.Warn("Dropping malformed frame", "error", err)

				continue
			}

			c.log.Debug("Transport error", "error", err)
			c.setFatalError(err)

			return

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// handleFrame parses one frame and resolves the matching pending request.
func (c *Conn) handleFrame(frame json.RawMessage) {
	var resp Response

	if err := json.Unmarshal(frame, &resp); err != nil {
		c.log.Warn("Dropping frame that does not parse as envelope", "error", err)

		return
	}

	if !resp.IsResponse() {
		// Server-originated notification. This client registers no
		// handlers for them.
		c.log.Debug("Ignoring server notification", "method", resp.Method)

		return
	}

	id := *resp.ID

	// Find and claim the pending request atomically so it is resolved
	// exactly once even if a duplicate frame arrives.
	c.pendingMu.Lock()

	responseChan, exists := c.pending[id]
	if exists {
		delete(c.pending, id)
	}

	c.pendingMu.Unlock()

	if !exists {
		// Late response for a request already timed out or abandoned.
		c.log.Debug("Dropping response with no pending request", "id", id)

		return
	}

	// Channel is buffered; the send cannot block.
	responseChan <- &resp
}
