// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Girder-backed contents tree as tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nbgirder/internal/contents"
	"github.com/starford/nbgirder/internal/models"
	"github.com/starford/nbgirder/internal/notebook"
)

const rootURI = "nbgirder://root"

// Contents is the part of the contents manager the tools use.
type Contents interface {
	Root() string
	Get(ctx context.Context, path string, opts contents.GetOptions) (*models.Model, error)
	Save(ctx context.Context, model *models.Model, path string) (*models.Model, error)
	Delete(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) (*models.Model, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Server wraps the MCP server with the contents tools.
type Server struct {
	mcp   *server.MCPServer
	store Contents
}

// New creates a new MCP server with all tools registered.
func New(store Contents, version string) *Server {
	s := &Server{store: store}

	s.mcp = server.NewMCPServer(
		"nbgirder",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List the files, notebooks and directories in a directory."),
		mcp.WithString("path", mcp.Description("Directory path relative to the root (empty for the root)")),
	), s.listDirectory)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a file or notebook. Notebooks are returned as nbformat JSON."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path relative to the root")),
		mcp.WithString("format", mcp.Description("text or base64; empty tries text first"), mcp.Enum("", "text", "base64")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Create or overwrite a file. Paths ending in .ipynb are stored as notebooks "+
			"and their content must be nbformat 4 JSON. Read the path rules first via the "+
			rootURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path relative to the root")),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		mcp.WithString("format", mcp.Description("Encoding of content: text (default) or base64"), mcp.Enum("text", "base64")),
	), s.writeFile)

	s.mcp.AddTool(mcp.NewTool("make_directory",
		mcp.WithDescription("Create a directory, including any missing parents."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory path relative to the root")),
	), s.makeDirectory)

	s.mcp.AddTool(mcp.NewTool("delete_path",
		mcp.WithDescription("Delete a file or directory."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the root")),
	), s.deletePath)

	s.mcp.AddTool(mcp.NewTool("rename_path",
		mcp.WithDescription("Rename a file or directory within its parent directory."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Current path")),
		mcp.WithString("new_path", mcp.Required(), mcp.Description("New path in the same directory")),
	), s.renamePath)

	s.mcp.AddTool(mcp.NewTool("upload_file",
		mcp.WithDescription("Fetch a file from an http(s) URL or a base64 data URI and store it in a directory."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("directory", mcp.Description("Target directory relative to the root")),
		mcp.WithString("filename", mcp.Description("Name to store the file under; derived from the URL when empty")),
	), s.uploadFile)

	s.mcp.AddResource(
		mcp.NewResource(rootURI, "Contents root",
			mcp.WithResourceDescription("Where the contents tree lives in Girder and how paths map onto it."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRootResource,
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

type entry struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Type         string    `json:"type"`
	Writable     bool      `json:"writable"`
	LastModified time.Time `json:"last_modified"`
	Size         *int64    `json:"size,omitempty"`
}

func (s *Server) listDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	model, err := s.store.Get(ctx, path, contents.GetOptions{Content: true, Type: models.TypeDirectory})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	children := model.Listing()
	out := make([]entry, 0, len(children))
	for _, c := range children {
		out = append(out, entry{
			Name:         c.Name,
			Path:         c.Path,
			Type:         c.Type,
			Writable:     c.Writable,
			LastModified: c.LastModified,
			Size:         c.Size,
		})
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	model, err := s.store.Get(ctx, path, contents.GetOptions{Content: true, Format: req.GetString("format", "")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch model.Type {
	case models.TypeDirectory:
		return mcp.NewToolResultError(fmt.Sprintf("%s is a directory; use list_directory", path)), nil
	case models.TypeNotebook:
		nb, err := notebook.FromContent(model.Content)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := notebook.Encode(nb)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}

	text, _ := model.Content.(string)
	if model.FormatValue() == models.FormatBase64 {
		return mcp.NewToolResultText(fmt.Sprintf("[base64 %s]\n%s", model.MimetypeValue(), text)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) writeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := req.GetString("format", models.FormatText)

	model := &models.Model{Type: models.TypeFile, Content: content}
	if strings.HasSuffix(path, ".ipynb") && format == models.FormatText {
		nb, err := notebook.Parse([]byte(content))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid notebook JSON: %v", err)), nil
		}
		model = &models.Model{Type: models.TypeNotebook, Content: nb}
		format = models.FormatJSON
	}
	model.SetFormat(format)

	existed, err := s.store.Exists(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saved, err := s.store.Save(ctx, model, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	verb := "created"
	if existed {
		verb = "updated"
	}
	if saved.Message != nil {
		return mcp.NewToolResultText(fmt.Sprintf("%s: %s (warning: %s)", verb, saved.Path, *saved.Message)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", verb, saved.Path)), nil
}

func (s *Server) makeDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saved, err := s.store.Save(ctx, &models.Model{Type: models.TypeDirectory}, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", saved.Path)), nil
}

func (s *Server) deletePath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.Delete(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", path)), nil
}

func (s *Server) renamePath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newPath, err := req.RequireString("new_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	model, err := s.store.Rename(ctx, path, newPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s -> %s", path, model.Path)), nil
}

func (s *Server) readRootResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rootURI,
			MIMEType: "text/markdown",
			Text:     rootDescription(s.store.Root()),
		},
	}, nil
}
