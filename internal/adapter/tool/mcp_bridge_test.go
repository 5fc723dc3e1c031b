package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"adjutant/internal/domain"
)

// fakeMCPClient implements mcpClient for bridge tests.
type fakeMCPClient struct {
	tools     []mcp.Tool
	listErr   error
	callRes   *mcp.CallToolResult
	callErr   error
	lastCall  *mcp.CallToolRequest
	closed    bool
	listCalls int
}

func (f *fakeMCPClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeMCPClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.lastCall = &req
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callRes, nil
}

func (f *fakeMCPClient) Close() error {
	f.closed = true
	return nil
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: s}},
	}
}

func TestMCPBridgeDiscoversTools(t *testing.T) {
	fake := &fakeMCPClient{
		tools: []mcp.Tool{
			{Name: "search", Description: "search the docs"},
			{Name: "read-page", Description: ""},
		},
	}

	b, err := newMCPBridgeWithClients(context.Background(),
		[]mcpServerConn{{name: "docs", client: fake}}, newTestLogger())
	if err != nil {
		t.Fatalf("newMCPBridgeWithClients: %v", err)
	}
	defer b.Close()

	tools := b.Tools()
	if len(tools) != 2 {
		t.Fatalf("Tools = %d, want 2", len(tools))
	}
	if tools[0].Name() != "mcp_docs_search" {
		t.Errorf("name = %q, want mcp_docs_search", tools[0].Name())
	}
	// Dashes in tool names get sanitized.
	if tools[1].Name() != "mcp_docs_read_page" {
		t.Errorf("name = %q, want mcp_docs_read_page", tools[1].Name())
	}
	// Empty descriptions get a synthesized one.
	if !strings.Contains(tools[1].Description(), "read-page") {
		t.Errorf("description = %q", tools[1].Description())
	}
}

func TestMCPBridgeSkipsFailedServer(t *testing.T) {
	good := &fakeMCPClient{tools: []mcp.Tool{{Name: "ok"}}}
	bad := &fakeMCPClient{listErr: errors.New("connection refused")}

	b, err := newMCPBridgeWithClients(context.Background(),
		[]mcpServerConn{
			{name: "bad", client: bad},
			{name: "good", client: good},
		}, newTestLogger())
	if err != nil {
		t.Fatalf("partial failure should not abort discovery: %v", err)
	}
	defer b.Close()

	tools := b.Tools()
	if len(tools) != 1 || tools[0].Name() != "mcp_good_ok" {
		t.Errorf("Tools = %v, want only the healthy server's tool", toolNames(tools))
	}
}

func TestMCPBridgeFailsWhenAllServersFail(t *testing.T) {
	bad := &fakeMCPClient{listErr: errors.New("connection refused")}

	_, err := newMCPBridgeWithClients(context.Background(),
		[]mcpServerConn{{name: "bad", client: bad}}, newTestLogger())
	if err == nil {
		t.Fatal("expected error when every server fails discovery")
	}
	if !strings.Contains(err.Error(), "all mcp servers failed") {
		t.Errorf("err = %v", err)
	}
}

func TestMCPToolAdapterExecute(t *testing.T) {
	fake := &fakeMCPClient{
		tools:   []mcp.Tool{{Name: "search"}},
		callRes: textResult("three results found"),
	}

	b, err := newMCPBridgeWithClients(context.Background(),
		[]mcpServerConn{{name: "docs", client: fake}}, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	res, err := b.Tools()[0].Execute(context.Background(), json.RawMessage(`{"q": "sso"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("IsError: %s", res.Content)
	}
	if res.Content != "three results found" {
		t.Errorf("Content = %q", res.Content)
	}
	// The upstream call uses the server-local tool name, not the prefixed one.
	if fake.lastCall == nil || fake.lastCall.Params.Name != "search" {
		t.Errorf("upstream call = %+v", fake.lastCall)
	}
}

func TestMCPToolAdapterCallErrorIsRetryable(t *testing.T) {
	fake := &fakeMCPClient{
		tools:   []mcp.Tool{{Name: "search"}},
		callErr: errors.New("upstream timed out"),
	}

	b, err := newMCPBridgeWithClients(context.Background(),
		[]mcpServerConn{{name: "docs", client: fake}}, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	res, err := b.Tools()[0].Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !res.IsRetryable {
		t.Errorf("result = %+v, want retryable error result", res)
	}
}

func TestMCPBridgeClose(t *testing.T) {
	fake := &fakeMCPClient{tools: []mcp.Tool{{Name: "x"}}}

	b, err := newMCPBridgeWithClients(context.Background(),
		[]mcpServerConn{{name: "s", client: fake}}, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	b.Close()
	if !fake.closed {
		t.Error("client not closed")
	}
}

func TestExtractMCPContentMultipleParts(t *testing.T) {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "part one"},
			mcp.TextContent{Type: "text", Text: "part two"},
		},
	}
	got := extractMCPContent(res)
	if got != "part one\npart two" {
		t.Errorf("extractMCPContent = %q", got)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"plain":      "plain",
		"with-dash":  "with_dash",
		"dots.too":   "dots_too",
		"Mixed_Case": "Mixed_Case",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func toolNames(tools []domain.Tool) []string {
	out := make([]string, len(tools))
	for i, tl := range tools {
		out[i] = tl.Name()
	}
	return out
}
