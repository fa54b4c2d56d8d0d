package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jcdickinson/doxylink/internal/daemon"
	"github.com/jcdickinson/doxylink/internal/rpc"
)

//go:embed instructions.md
var instructions string

const uriScheme = "doxylink://"

// Backend answers the MCP server's requests. *daemon.Client implements it.
type Backend interface {
	Resolve(ctx context.Context, req rpc.ResolveRequest) (*rpc.ResolveResponse, error)
	Rewrite(ctx context.Context, req rpc.RewriteRequest) (*rpc.RewriteResponse, error)
	Status(ctx context.Context) (*rpc.StatusResponse, error)
}

type Server struct {
	mcpServer *server.MCPServer
	backend   Backend
}

func NewServer(socketPath string) (*Server, error) {
	client, err := daemon.ConnectOrSpawn(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	return New(client), nil
}

func New(backend Backend) *Server {
	s := &Server{backend: backend}

	mcpServer := server.NewMCPServer(
		"doxylink",
		"0.1.0",
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("resolve_symbol",
			mcp.WithDescription("Resolve a C++ symbol to its Doxygen documentation URL. Accepts qualified or unqualified names, optional argument lists and an explicit title (\"title <symbol>\")."),
			mcp.WithString("role",
				mcp.Description("Role (tag file) to search, see list_roles"),
				mcp.Required(),
			),
			mcp.WithString("symbol",
				mcp.Description("Symbol to resolve, e.g. \"Volume\" or \"PolyVox::Volume::getVoxelAt(uint16_t, uint16_t, uint16_t) const\""),
				mcp.Required(),
			),
			mcp.WithString("document",
				mcp.Description("Path of the document the link will appear in; only needed for roles with a relative root_dir"),
			),
			mcp.WithBoolean("trace",
				mcp.Description("Include how many candidates survived each resolution stage"),
			),
		),
		s.handleResolveSymbol,
	)

	mcpServer.AddTool(
		mcp.NewTool("rewrite_markdown",
			mcp.WithDescription("Rewrite [text](role:Symbol) links in a markdown document to documentation URLs. Unresolved links become plain text and are reported."),
			mcp.WithString("markdown",
				mcp.Description("Markdown source"),
				mcp.Required(),
			),
			mcp.WithString("document",
				mcp.Description("Path of the document; used for relative root_dirs and for tracking unresolved references"),
			),
			mcp.WithBoolean("manifest",
				mcp.Description("Prepend front matter listing the resolved links"),
			),
		),
		s.handleRewriteMarkdown,
	)

	mcpServer.AddTool(
		mcp.NewTool("list_roles",
			mcp.WithDescription("List the configured roles and the state of their tag files."),
		),
		s.handleListRoles,
	)
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			uriScheme+"{role}/{symbol}",
			"C++ symbol",
			mcp.WithTemplateDescription("How a symbol resolves in a role's tag file, with its documentation URL."),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.handleReadResource,
	)
}

func (s *Server) handleResolveSymbol(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	role, _ := args["role"].(string)
	symbol, _ := args["symbol"].(string)
	if role == "" {
		return mcp.NewToolResultError("missing required parameter: role"), nil
	}
	if symbol == "" {
		return mcp.NewToolResultError("missing required parameter: symbol"), nil
	}

	resolveReq := rpc.ResolveRequest{Role: role, Symbol: symbol}
	resolveReq.Document, _ = args["document"].(string)
	resolveReq.Trace, _ = args["trace"].(bool)

	resp, err := s.backend.Resolve(ctx, resolveReq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleRewriteMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	markdown, _ := args["markdown"].(string)
	if markdown == "" {
		return mcp.NewToolResultError("missing required parameter: markdown"), nil
	}

	rewriteReq := rpc.RewriteRequest{Markdown: markdown}
	rewriteReq.Document, _ = args["document"].(string)
	rewriteReq.Manifest, _ = args["manifest"].(bool)

	resp, err := s.backend.Rewrite(ctx, rewriteReq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rewrite failed: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString(resp.Markdown)
	if len(resp.Warnings) > 0 {
		b.WriteString("\n\n<!-- doxylink warnings:\n")
		for _, w := range resp.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("-->\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleListRoles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.backend.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp.Roles, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

// parseURI splits doxylink://{role}/{symbol}. The symbol may be
// percent-encoded and may itself contain slashes ("operator/").
func parseURI(uri string) (role, symbol string, err error) {
	trimmed, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", fmt.Errorf("invalid resource URI: %s", uri)
	}
	role, symbol, ok = strings.Cut(trimmed, "/")
	if !ok || role == "" || symbol == "" {
		return "", "", fmt.Errorf("invalid resource URI: %s", uri)
	}
	if unescaped, err := url.PathUnescape(symbol); err == nil {
		symbol = unescaped
	}
	return role, symbol, nil
}

func (s *Server) handleReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	role, symbol, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	resp, err := s.backend.Resolve(ctx, rpc.ResolveRequest{Role: role, Symbol: symbol, Trace: true})
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", symbol, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     describe(resp),
		},
	}, nil
}

func describe(resp *rpc.ResolveResponse) string {
	var b strings.Builder
	if !resp.Resolved {
		fmt.Fprintf(&b, "# %s\n\nNot found in `%s`.\n", resp.Symbol, resp.Role)
		if resp.Warning != "" {
			fmt.Fprintf(&b, "\n> %s\n", resp.Warning)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "# [%s](%s)\n\n", resp.Key, resp.URL)
	fmt.Fprintf(&b, "- Role: `%s`\n", resp.Role)
	fmt.Fprintf(&b, "- Kind: %s\n", resp.Kind)
	fmt.Fprintf(&b, "- Matched by: %s\n", resp.Stage)
	if tr := resp.Trace; tr != nil {
		fmt.Fprintf(&b, "- Candidates: %d by name, %d class-like, %d without templates\n",
			tr.Piecewise, tr.Classes, tr.NoTemplates)
		if tr.Ambiguous {
			b.WriteString("- Ambiguous: picked the first of several equally good matches\n")
		}
	}
	if resp.Warning != "" {
		fmt.Fprintf(&b, "\n> %s\n", resp.Warning)
	}
	return b.String()
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) Shutdown(_ context.Context) error {
	return nil
}
