// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Tracelight tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tracelight/internal/index"
	"github.com/starford/tracelight/internal/linkstore"
	"github.com/starford/tracelight/internal/models"
	"github.com/starford/tracelight/internal/storage"
	"github.com/starford/tracelight/internal/traceservice"
	"github.com/starford/tracelight/internal/version"
)

const itemFormatURI = "tracelight://item-format"

// Server wraps the MCP server with Tracelight tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *traceservice.Service
	store storage.Provider
	db    index.ModelIndex
}

// New creates a new MCP server with all Tracelight tools registered. The
// document tools are only registered when store and db are both set.
func New(svc *traceservice.Service, store storage.Provider, db index.ModelIndex) *Server {
	s := &Server{svc: svc, store: store, db: db}

	s.mcp = server.NewMCPServer(
		"Tracelight",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_items",
		mcp.WithDescription("Search canvas items by id, label, requirement id or document text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchItems)

	s.mcp.AddTool(mcp.NewTool("list_links_for_item",
		mcp.WithDescription("List the requirement links touching an item, with pin state and effective status."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item id (e.g. R1)")),
	), s.listLinksForItem)

	s.mcp.AddTool(mcp.NewTool("run_health_checks",
		mcp.WithDescription("Run every traceability health check: stale pins, dangling links, "+
			"orphans, circular dependencies and uncovered requirements."),
	), s.runHealthChecks)

	s.mcp.AddTool(mcp.NewTool("impact_analysis",
		mcp.WithDescription("Report which items a version change would reach and which pinned links would go stale."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item whose version would change")),
		mcp.WithString("version", mcp.Description("Proposed version; empty means any change")),
	), s.impactAnalysis)

	s.mcp.AddTool(mcp.NewTool("item_hierarchy",
		mcp.WithDescription("Show an item's containment parent and children and the items it conflicts with."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item id")),
	), s.itemHierarchy)

	s.mcp.AddTool(mcp.NewTool("add_link",
		mcp.WithDescription("Create a proposed, floating requirement link between two items."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source item id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target item id")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Link type"),
			mcp.Enum(string(models.LinkSatisfies), string(models.LinkVerifies), string(models.LinkDerives),
				string(models.LinkRefines), string(models.LinkConflicts))),
		mcp.WithString("notes", mcp.Description("Optional rationale")),
		mcp.WithString("author", mcp.Description("Optional author")),
	), s.addLink)

	s.mcp.AddTool(mcp.NewTool("set_link_status",
		mcp.WithDescription("Move a link one step forward through proposed → agreed → implemented → verified, "+
			"or reset it to proposed."),
		mcp.WithString("link_id", mcp.Required(), mcp.Description("Link id")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status"),
			mcp.Enum(string(models.StatusProposed), string(models.StatusAgreed),
				string(models.StatusImplemented), string(models.StatusVerified))),
	), s.setLinkStatus)

	s.mcp.AddTool(mcp.NewTool("pin_link",
		mcp.WithDescription("Pin a link at the current versions of both endpoint items."),
		mcp.WithString("link_id", mcp.Required(), mcp.Description("Link id")),
	), s.pinLink)

	s.mcp.AddTool(mcp.NewTool("get_item_format",
		mcp.WithDescription("Returns the item document format. "+
			"Call this before writing item documents to ensure correct structure."),
	), s.getItemFormat)

	if store != nil && db != nil {
		s.mcp.AddTool(mcp.NewTool("read_item_document",
			mcp.WithDescription("Read the raw content of an item document."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. reqs/R1.md)")),
		), s.readItemDocument)

		s.mcp.AddTool(mcp.NewTool("list_item_documents",
			mcp.WithDescription("List all item documents or the documents in a specific folder."),
			mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
		), s.listItemDocuments)

		s.mcp.AddTool(mcp.NewTool("create_item_document",
			mcp.WithDescription("Create a new item document at the specified path. "+
				"Content MUST follow the item document format; read it first via "+
				"the get_item_format tool or the "+itemFormatURI+" resource."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new document (must end with .md)")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Document content following the item format")),
		), s.createItemDocument)
	}

	s.mcp.AddResource(
		mcp.NewResource(itemFormatURI, "Item Document Format",
			mcp.WithResourceDescription("Markdown item document format that all model documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readItemFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.svc.SearchItems(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items), nil
}

func (s *Server) listLinksForItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.GetLinksForNode(ctx, id)), nil
}

func (s *Server) runHealthChecks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issues := s.svc.RunHealthChecks(ctx)
	if len(issues) == 0 {
		return mcp.NewToolResultText("no issues found"), nil
	}
	return jsonResult(issues), nil
}

func (s *Server) impactAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.GetImpactAnalysis(ctx, id, req.GetString("version", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) itemHierarchy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.GetHierarchy(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) addLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	link, err := s.svc.AddLink(ctx, linkstore.AddRequest{
		SourceItemID: src,
		TargetItemID: dst,
		Type:         models.LinkType(typ),
		Notes:        req.GetString("notes", ""),
		Author:       req.GetString("author", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(link), nil
}

func (s *Server) setLinkStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("link_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	link, err := s.svc.UpdateLinkStatus(ctx, id, models.LinkStatus(status))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(link), nil
}

func (s *Server) pinLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("link_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	link, err := s.svc.PinLink(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(link), nil
}

func (s *Server) getItemFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ItemFormatContract), nil
}

func (s *Server) readItemFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      itemFormatURI,
			MIMEType: "text/markdown",
			Text:     ItemFormatContract,
		},
	}, nil
}

func (s *Server) readItemDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listItemDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.store.List(req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) createItemDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.HasSuffix(path, ".md") {
		return mcp.NewToolResultError(fmt.Sprintf("path must end with .md: %s", path)), nil
	}
	if _, readErr := s.store.Read(path); readErr == nil {
		return mcp.NewToolResultError(fmt.Sprintf("document already exists: %s", path)), nil
	}

	data := []byte(content)
	doc, err := index.ParseDocument(path, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if prev, err := s.db.GetItem(doc.Item.ID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	} else if prev != nil && version.Less(doc.Item.Version, prev.Version) {
		return mcp.NewToolResultError(fmt.Sprintf("item %s version %s is older than indexed %s",
			doc.Item.ID, doc.Item.Version, prev.Version)), nil
	}
	if err := s.store.Write(path, data); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.db.UpsertDocument(doc); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (item %s)", path, doc.Item.ID)), nil
}
