package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jcdickinson/doxylink/internal/rpc"
)

type fakeBackend struct {
	resolve *rpc.ResolveResponse
	rewrite *rpc.RewriteResponse
	status  *rpc.StatusResponse
	err     error
	lastReq rpc.ResolveRequest
}

func (f *fakeBackend) Resolve(_ context.Context, req rpc.ResolveRequest) (*rpc.ResolveResponse, error) {
	f.lastReq = req
	return f.resolve, f.err
}

func (f *fakeBackend) Rewrite(context.Context, rpc.RewriteRequest) (*rpc.RewriteResponse, error) {
	return f.rewrite, f.err
}

func (f *fakeBackend) Status(context.Context) (*rpc.StatusResponse, error) {
	return f.status, f.err
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return text.Text
}

func TestResolveSymbol(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{resolve: &rpc.ResolveResponse{
		Role: "polyvox", Symbol: "Volume", Resolved: true,
		URL: "https://example.org/pv/class_volume.html", Key: "PolyVox::Volume",
	}}
	s := New(fb)

	res, err := s.handleResolveSymbol(context.Background(), callTool(map[string]any{
		"role": "polyvox", "symbol": "Volume", "trace": true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), "class_volume.html") {
		t.Errorf("got %s", resultText(t, res))
	}
	if !fb.lastReq.Trace {
		t.Error("trace not passed through")
	}
}

func TestResolveSymbol_MissingArgs(t *testing.T) {
	t.Parallel()
	s := New(&fakeBackend{})

	for _, args := range []map[string]any{
		{"symbol": "Volume"},
		{"role": "polyvox"},
	} {
		res, err := s.handleResolveSymbol(context.Background(), callTool(args))
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}

func TestRewriteMarkdown(t *testing.T) {
	t.Parallel()
	s := New(&fakeBackend{rewrite: &rpc.RewriteResponse{
		Markdown: "[v](https://example.org/v.html) nope",
		Warnings: []string{`could not find match for "Nope" in "polyvox" tag file`},
	}})

	res, err := s.handleRewriteMarkdown(context.Background(), callTool(map[string]any{
		"markdown": "[v](polyvox:Volume) [nope](polyvox:Nope)",
	}))
	if err != nil {
		t.Fatal(err)
	}
	got := resultText(t, res)
	if !strings.HasPrefix(got, "[v](https://example.org/v.html) nope") {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(got, "could not find match") {
		t.Errorf("warnings missing: %q", got)
	}
}

func TestBackendError(t *testing.T) {
	t.Parallel()
	s := New(&fakeBackend{err: errors.New("daemon down")})

	res, err := s.handleListRoles(context.Background(), callTool(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "daemon down") {
		t.Errorf("got %+v", res)
	}
}

func TestParseURI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		uri    string
		role   string
		symbol string
		ok     bool
	}{
		{"doxylink://polyvox/PolyVox::Volume", "polyvox", "PolyVox::Volume", true},
		{"doxylink://polyvox/Vec::operator/", "polyvox", "Vec::operator/", true},
		{"doxylink://polyvox/get%28int%29%20const", "polyvox", "get(int) const", true},
		{"doxylink://polyvox/", "", "", false},
		{"doxylink://polyvox", "", "", false},
		{"https://x/y", "", "", false},
	}
	for _, tt := range tests {
		role, symbol, err := parseURI(tt.uri)
		if (err == nil) != tt.ok {
			t.Errorf("parseURI(%q) err = %v", tt.uri, err)
			continue
		}
		if role != tt.role || symbol != tt.symbol {
			t.Errorf("parseURI(%q) = %q, %q", tt.uri, role, symbol)
		}
	}
}

func TestReadResource(t *testing.T) {
	t.Parallel()
	fb := &fakeBackend{resolve: &rpc.ResolveResponse{
		Role: "polyvox", Symbol: "Volume", Resolved: true, Kind: "class", Stage: "fallback",
		URL: "https://example.org/pv/class_volume.html", Key: "PolyVox::Volume",
		Trace: &rpc.TraceInfo{Piecewise: 2, Classes: 2, NoTemplates: 2, Ambiguous: true},
	}}
	s := New(fb)

	var req mcp.ReadResourceRequest
	req.Params.URI = "doxylink://polyvox/Volume"
	contents, err := s.handleReadResource(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents", len(contents))
	}
	text := contents[0].(mcp.TextResourceContents).Text
	for _, want := range []string{"[PolyVox::Volume](https://example.org/pv/class_volume.html)", "Kind: class", "Ambiguous"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}
