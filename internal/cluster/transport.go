package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// loggerPrefix namespaces inbound secondary events delivered as MCP logging
// notifications, generalising the teacher's single fixed "kubernetes/<mode>"
// logger name into one prefix per named event.
const loggerPrefix = "secondary/"

// Transport is the wire interface a Session drives to talk to its remote
// secondary. Implementations own the underlying connection lifecycle; the
// Session owns all reconnect policy and never calls Connect concurrently
// with itself.
type Transport interface {
	// Connect establishes a new session. Safe to call again after Disconnect
	// or after an asynchronous disconnect notification.
	Connect(ctx context.Context) error
	// Disconnect tears down the current session, if any. Idempotent.
	Disconnect(ctx context.Context) error
	// Connected reports whether the transport currently believes it has a
	// live session.
	Connected() bool
	// Emit sends a named event with a JSON-marshalable payload.
	Emit(ctx context.Context, event string, data map[string]any) error
	// OnEvent registers the handler invoked when a named inbound event
	// arrives. Must be called before Connect.
	OnEvent(event string, handler func(data map[string]any))
	// OnDisconnect registers the handler invoked when the transport
	// observes the remote end going away, whether or not Disconnect was
	// called locally.
	OnDisconnect(handler func())
}

// MCPTransport implements Transport over a modelcontextprotocol/go-sdk MCP
// client session: Emit is CallTool, and inbound named events arrive as
// logging notifications whose Logger field is "secondary/<event>".
type MCPTransport struct {
	endpoint   string
	httpClient *http.Client
	client     *mcp.Client

	mu        sync.Mutex
	session   *mcp.ClientSession
	handlers  map[string]func(data map[string]any)
	onDisc    func()
	connected bool
}

// sharedTransport is the connection-pooled http.Transport every MCPTransport
// in a coordinator process is built on, carried over from the teacher's
// per-process ConnectionManager pooling settings.
func sharedTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   2,
		MaxConnsPerHost:       10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     false,
		ForceAttemptHTTP2:     true,
	}
}

// NewMCPTransport creates a transport for one secondary's endpoint.
// requestTimeout bounds every individual HTTP round-trip, generalising the
// original socket.io client's ~1 second request_timeout.
func NewMCPTransport(endpoint string, requestTimeout time.Duration, releaseVersion string) *MCPTransport {
	t := &MCPTransport{
		endpoint: endpoint,
		httpClient: &http.Client{
			Transport: sharedTransport(),
			Timeout:   requestTimeout,
		},
		handlers: make(map[string]func(data map[string]any)),
	}
	t.client = mcp.NewClient(
		&mcp.Implementation{Name: "clustercoord", Version: releaseVersion},
		&mcp.ClientOptions{LoggingMessageHandler: t.handleLoggingMessage},
	)
	return t
}

func (t *MCPTransport) handleLoggingMessage(_ context.Context, req *mcp.LoggingMessageRequest) {
	params := req.Params
	event, ok := strings.CutPrefix(params.Logger, loggerPrefix)
	if !ok {
		slog.Debug("ignoring non-matching log message", "logger", params.Logger)
		return
	}

	t.mu.Lock()
	handler := t.handlers[event]
	t.mu.Unlock()
	if handler == nil {
		slog.Debug("no handler registered for secondary event", "event", event)
		return
	}

	jsonData, err := json.Marshal(params.Data)
	if err != nil {
		slog.Error("failed to marshal secondary event payload", "event", event, "error", err)
		return
	}
	var data map[string]any
	if err := json.Unmarshal(jsonData, &data); err != nil {
		slog.Error("failed to unmarshal secondary event payload", "event", event, "error", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("secondary event handler panic recovered", "event", event, "panic", r)
		}
	}()
	handler(data)
}

// OnEvent registers the handler invoked when a named inbound event arrives.
func (t *MCPTransport) OnEvent(event string, handler func(data map[string]any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = handler
}

// OnDisconnect registers the handler invoked when the session ends.
func (t *MCPTransport) OnDisconnect(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisc = handler
}

// Connect establishes a new MCP client session against the secondary's
// streamable-HTTP endpoint.
func (t *MCPTransport) Connect(ctx context.Context) error {
	transport := &mcp.StreamableClientTransport{
		Endpoint:   t.endpoint,
		HTTPClient: t.httpClient,
	}

	session, err := t.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to secondary %s: %w", t.endpoint, err)
	}

	t.mu.Lock()
	t.session = session
	t.connected = true
	t.mu.Unlock()

	go func() {
		if waitErr := session.Wait(); waitErr != nil {
			slog.Debug("secondary session ended with error", "endpoint", t.endpoint, "error", waitErr)
		}

		t.mu.Lock()
		t.connected = false
		onDisc := t.onDisc
		t.mu.Unlock()

		if onDisc != nil {
			onDisc()
		}
	}()

	return nil
}

// Disconnect closes the current session, if any. It is safe to call even
// when already disconnected.
func (t *MCPTransport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	session := t.session
	t.session = nil
	t.connected = false
	t.mu.Unlock()

	if session == nil {
		return nil
	}
	session.Close()
	return nil
}

// Connected reports whether the transport currently believes it has a live
// session.
func (t *MCPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Emit sends a named event as an MCP tool call.
func (t *MCPTransport) Emit(ctx context.Context, event string, data map[string]any) error {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()

	if session == nil {
		return fmt.Errorf("emit %s: not connected", event)
	}
	if _, err := session.CallTool(ctx, &mcp.CallToolParams{Name: event, Arguments: data}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}
