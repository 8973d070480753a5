// Package backendclient implements the abstract Backend Client Port
// (spec component E) over github.com/mark3labs/mcp-go, the same library
// the teacher's pkg/vmcp/client backs its port with. The port is used
// identically for HTTP backends and for locally supervised child
// processes addressed via 127.0.0.1:port — both are plain HTTP(S) base
// URLs from this package's point of view.
package backendclient

import (
	"context"
	"fmt"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
)

// Client is the abstract contract used by discovery, invocation, and the
// health prober to speak to one backend. Never raises for Ping; every
// other operation surfaces a ferrors.Error of kind Transport on failure.
type Client interface {
	ListTools(ctx context.Context) ([]gateway.CapabilityDescriptor, error)
	ListResources(ctx context.Context) (map[string]gateway.CapabilityDescriptor, error)
	ListPrompts(ctx context.Context) ([]gateway.CapabilityDescriptor, error)
	CallTool(ctx context.Context, toolName string, arguments map[string]any) (any, error)
	GetResource(ctx context.Context, uri string) (string, error)
	Ping(ctx context.Context) bool
	Close() error
}

const clientName = "mcp-gateway"

// httpClient backs Client with a streamable-HTTP mcp-go client. One
// instance is created per backend and cached in the client map (see
// pkg/gateway/composition); it is never shared across backends.
type httpClient struct {
	backendName string
	mcp         *mcpclient.Client
	initialized bool
}

// New dials and initializes an mcp-go client against baseURL. The
// transport is always streamable-HTTP: this gateway never proxies
// SSE-only backends (Non-goal: streaming semantics beyond a single
// response per call).
func New(ctx context.Context, backendName, baseURL string) (Client, error) {
	c, err := mcpclient.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, ferrors.NewTransportError(
			fmt.Sprintf("failed to create client for backend %s", backendName), err)
	}

	hc := &httpClient{backendName: backendName, mcp: c}
	if err := hc.ensureInitialized(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return hc, nil
}

func (c *httpClient) ensureInitialized(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.mcp.Start(ctx); err != nil {
		return ferrors.NewTransportError(
			fmt.Sprintf("failed to start transport for backend %s", c.backendName), err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: "0.1.0"}

	if _, err := c.mcp.Initialize(ctx, req); err != nil {
		return ferrors.NewTransportError(
			fmt.Sprintf("failed to initialize client for backend %s", c.backendName), err)
	}
	c.initialized = true
	return nil
}

func (c *httpClient) ListTools(ctx context.Context) ([]gateway.CapabilityDescriptor, error) {
	result, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, ferrors.NewTransportError(
			fmt.Sprintf("failed to list tools for backend %s", c.backendName), err)
	}
	out := make([]gateway.CapabilityDescriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		out = append(out, gateway.CapabilityDescriptor{Name: tool.Name, Description: tool.Description})
	}
	return out, nil
}

func (c *httpClient) ListResources(ctx context.Context) (map[string]gateway.CapabilityDescriptor, error) {
	result, err := c.mcp.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, ferrors.NewTransportError(
			fmt.Sprintf("failed to list resources for backend %s", c.backendName), err)
	}
	out := make(map[string]gateway.CapabilityDescriptor, len(result.Resources))
	for _, r := range result.Resources {
		out[r.URI] = gateway.CapabilityDescriptor{Description: r.Description}
	}
	return out, nil
}

func (c *httpClient) ListPrompts(ctx context.Context) ([]gateway.CapabilityDescriptor, error) {
	result, err := c.mcp.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, ferrors.NewTransportError(
			fmt.Sprintf("failed to list prompts for backend %s", c.backendName), err)
	}
	out := make([]gateway.CapabilityDescriptor, 0, len(result.Prompts))
	for _, p := range result.Prompts {
		out = append(out, gateway.CapabilityDescriptor{Name: p.Name, Description: p.Description})
	}
	return out, nil
}

func (c *httpClient) CallTool(ctx context.Context, toolName string, arguments map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = arguments

	result, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		return nil, ferrors.NewTransportError(
			fmt.Sprintf("call_tool %s failed on backend %s", toolName, c.backendName), err)
	}
	if result != nil && result.IsError {
		return nil, ferrors.NewTransportError(
			fmt.Sprintf("backend %s reported an error for tool %s", c.backendName, toolName), nil)
	}
	return result, nil
}

func (c *httpClient) GetResource(ctx context.Context, uri string) (string, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	result, err := c.mcp.ReadResource(ctx, req)
	if err != nil {
		return "", ferrors.NewTransportError(
			fmt.Sprintf("get_resource %s failed on backend %s", uri, c.backendName), err)
	}

	var text string
	for _, content := range result.Contents {
		if tc, ok := content.(mcp.TextResourceContents); ok {
			text += tc.Text
		}
	}
	return text, nil
}

func (c *httpClient) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.mcp.Ping(pingCtx) == nil
}

func (c *httpClient) Close() error {
	return c.mcp.Close()
}
