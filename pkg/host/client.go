// Package host is the parent side of the designer protocol: it waits for the
// editor's READY, pushes workflows and settings, and correlates
// GET_WORKFLOW requests with their responses.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/morezero/designer-bridge/pkg/protocol"
	"github.com/morezero/designer-bridge/pkg/transport"
)

const logPrefix = "host:client"

// ErrClientClosed is returned by calls waiting on a closed client.
var ErrClientClosed = errors.New("host: client closed")

// Client talks to one editor over a transport.
type Client struct {
	transport transport.Transport

	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	pending   map[string]chan protocol.Workflow
	onChanged func(*protocol.WorkflowChangedPayload)
	onError   func(*protocol.ErrorPayload)
}

// NewClient creates a Client. Call Start to begin receiving.
func NewClient(t transport.Transport) *Client {
	return &Client{
		transport: t,
		ready:     make(chan struct{}),
		closed:    make(chan struct{}),
		pending:   make(map[string]chan protocol.Workflow),
	}
}

// Start subscribes to editor envelopes.
func (c *Client) Start() error {
	if err := c.transport.Listen(c.handle); err != nil {
		return fmt.Errorf("%s - failed to listen: %w", logPrefix, err)
	}
	return nil
}

// Ready is closed once the editor announced READY.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// MarkReady records readiness learned outside the transport, such as a
// discovered session announcement. The editor sends READY only once, so a
// client attached after that point never receives it.
func (c *Client) MarkReady() {
	c.readyOnce.Do(func() {
		slog.Info(fmt.Sprintf("%s - editor already READY", logPrefix))
		close(c.ready)
	})
}

// WaitReady blocks until READY arrives, ctx is done or the client closes.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.closed:
		return ErrClientClosed
	case <-ctx.Done():
		return fmt.Errorf("%s - waiting for READY: %w", logPrefix, ctx.Err())
	}
}

// OnWorkflowChanged sets the WORKFLOW_CHANGED callback. It runs on the
// transport's delivery goroutine.
func (c *Client) OnWorkflowChanged(fn func(*protocol.WorkflowChangedPayload)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChanged = fn
}

// OnError sets the ERROR callback.
func (c *Client) OnError(fn func(*protocol.ErrorPayload)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// LoadWorkflow sends a LOAD_WORKFLOW. The editor queues it if it is not ready yet.
func (c *Client) LoadWorkflow(ctx context.Context, p *protocol.LoadWorkflowPayload) error {
	if p == nil || p.Workflow == nil {
		return fmt.Errorf("%s - LoadWorkflow requires a workflow", logPrefix)
	}
	return c.send(ctx, protocol.NewLoadWorkflow(p))
}

// UpdateConfig sends an UPDATE_CONFIG.
func (c *Client) UpdateConfig(ctx context.Context, p *protocol.UpdateConfigPayload) error {
	return c.send(ctx, protocol.NewUpdateConfig(p))
}

// Launch sends envs in order, typically a launch document's LOAD_WORKFLOW
// and UPDATE_CONFIG. Only host-to-editor fire-and-forget kinds are accepted;
// use GetWorkflow for requests.
func (c *Client) Launch(ctx context.Context, envs []*protocol.Envelope) error {
	for _, env := range envs {
		if env == nil || !env.Type.ToEditor() || env.Type == protocol.KindGetWorkflow {
			return fmt.Errorf("%s - Launch cannot send %s", logPrefix, describeKind(env))
		}
	}
	for _, env := range envs {
		if err := c.send(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func describeKind(env *protocol.Envelope) string {
	if env == nil {
		return "a nil envelope"
	}
	return string(env.Type)
}

// GetWorkflow asks for the editor's current workflow and waits for the
// matching WORKFLOW_RESPONSE. A nil workflow means the editor has none.
func (c *Client) GetWorkflow(ctx context.Context) (protocol.Workflow, error) {
	requestID := uuid.NewString()
	ch := make(chan protocol.Workflow, 1)

	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, protocol.NewGetWorkflow(requestID)); err != nil {
		return nil, err
	}

	select {
	case w := <-ch:
		return w, nil
	case <-c.closed:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("%s - waiting for response %s: %w", logPrefix, requestID, ctx.Err())
	}
}

// Close stops the client and its transport.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.transport.Close()
}

func (c *Client) send(ctx context.Context, env *protocol.Envelope) error {
	if err := c.transport.Send(ctx, env); err != nil {
		return fmt.Errorf("%s - failed to send %s: %w", logPrefix, env.Type, err)
	}
	return nil
}

func (c *Client) handle(env *protocol.Envelope) {
	switch env.Type {
	case protocol.KindReady:
		c.readyOnce.Do(func() {
			slog.Info(fmt.Sprintf("%s - editor is READY", logPrefix))
			close(c.ready)
		})

	case protocol.KindWorkflowResponse:
		p, _ := env.Payload.(*protocol.WorkflowResponsePayload)
		c.mu.Lock()
		ch, ok := c.pending[env.RequestID]
		c.mu.Unlock()
		if !ok {
			slog.Warn(fmt.Sprintf("%s - no pending request %q, dropping response", logPrefix, env.RequestID))
			return
		}
		var w protocol.Workflow
		if p != nil {
			w = p.Workflow
		}
		select {
		case ch <- w:
		default:
			slog.Warn(fmt.Sprintf("%s - duplicate response for %q", logPrefix, env.RequestID))
		}

	case protocol.KindWorkflowChanged:
		p, ok := env.Payload.(*protocol.WorkflowChangedPayload)
		if !ok {
			return
		}
		c.mu.Lock()
		fn := c.onChanged
		c.mu.Unlock()
		if fn != nil {
			fn(p)
		}

	case protocol.KindError:
		p, ok := env.Payload.(*protocol.ErrorPayload)
		if !ok {
			return
		}
		slog.Warn(fmt.Sprintf("%s - editor reported error %s: %s", logPrefix, p.Code, p.Message))
		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(p)
		}

	default:
		slog.Debug(fmt.Sprintf("%s - ignoring %s from editor", logPrefix, env.Type))
	}
}
