// Package mcpsrv exposes vaultmind's search and indexing-control surface as
// MCP tools over stdio, so AI assistants can drive retrieval and ingestion
// directly. It wraps the same *app.Application the HTTP surface uses.
package mcpsrv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ahart-dev/vaultmind/internal/app"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/search"
	"github.com/ahart-dev/vaultmind/pkg/version"
)

// Server bridges an *app.Application to the MCP SDK.
type Server struct {
	sdk *mcp.Server
	app *app.Application
}

// SearchInput is the search tool's input schema.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the search query to execute"`
	Vault    string `json:"vault,omitempty" jsonschema:"which vault to search: work or personal"`
	Mode     string `json:"mode,omitempty" jsonschema:"search mode: vector, bm25, hybrid, or query (default hybrid)"`
	Category string `json:"category,omitempty" jsonschema:"filter by document category"`
	Person   string `json:"person,omitempty" jsonschema:"filter by a person mentioned in the document"`
	DateFrom string `json:"date_from,omitempty" jsonschema:"earliest document date, YYYY-MM-DD"`
	DateTo   string `json:"date_to,omitempty" jsonschema:"latest document date, YYYY-MM-DD"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results"`
}

// SearchOutput is the search tool's output schema.
type SearchOutput struct {
	Results []search.Result `json:"results" jsonschema:"ranked search results"`
}

// IndexStartInput is the index_start tool's input schema.
type IndexStartInput struct {
	Vault       string `json:"vault" jsonschema:"which vault to index: work or personal"`
	Full        bool   `json:"full,omitempty" jsonschema:"force a full reindex instead of incremental"`
	CallbackURL string `json:"callback_url,omitempty" jsonschema:"URL to POST a completion notice to"`
}

// IndexStartOutput is the index_start tool's output schema.
type IndexStartOutput struct {
	JobID  string `json:"job_id" jsonschema:"id of the started indexing job"`
	Status string `json:"status" jsonschema:"initial job status"`
}

// IndexStatusInput is the index_status tool's input schema.
type IndexStatusInput struct {
	JobID string `json:"job_id" jsonschema:"id returned by index_start"`
}

// IndexStatusOutput is the index_status tool's output schema.
type IndexStatusOutput struct {
	Status       string  `json:"status" jsonschema:"pending, running, completed, or failed"`
	Percent      float64 `json:"percent" jsonschema:"indexing progress percent"`
	IndexedCount int     `json:"indexed_count" jsonschema:"documents indexed so far"`
	Error        string  `json:"error,omitempty" jsonschema:"error message if the job failed"`
}

// IndexCancelInput is the index_cancel tool's input schema.
type IndexCancelInput struct {
	JobID string `json:"job_id" jsonschema:"id returned by index_start"`
}

// IndexCancelOutput is the index_cancel tool's output schema.
type IndexCancelOutput struct {
	Cancelled bool `json:"cancelled" jsonschema:"true if the job was running and is now cancelling"`
}

// New builds a Server around application and registers its tools.
func New(application *app.Application) *Server {
	s := &Server{app: application}
	s.sdk = mcp.NewServer(&mcp.Implementation{Name: "vaultmind", Version: version.Version}, nil)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.sdk, &mcp.Tool{
		Name:        "search",
		Description: "Search a personal knowledge vault of markdown notes and PDFs using hybrid vector+keyword retrieval, with optional person and date-range filters.",
	}, s.handleSearch)

	mcp.AddTool(s.sdk, &mcp.Tool{
		Name:        "index_start",
		Description: "Start an asynchronous indexing job for a vault. Returns immediately with a job id to poll via index_status.",
	}, s.handleIndexStart)

	mcp.AddTool(s.sdk, &mcp.Tool{
		Name:        "index_status",
		Description: "Check the status and progress of an indexing job started via index_start.",
	}, s.handleIndexStatus)

	mcp.AddTool(s.sdk, &mcp.Tool{
		Name:        "index_cancel",
		Description: "Cancel the currently running indexing job.",
	}, s.handleIndexCancel)
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, fmt.Errorf("mcpsrv: query is required")
	}
	mode := search.Mode(input.Mode)
	if mode == "" {
		mode = search.ModeHybrid
	}
	vault := model.Vault(input.Vault)
	if vault == "" {
		vault = model.VaultWork
	}

	results, err := s.app.Engine.Search(ctx, search.Request{
		Query:    input.Query,
		Vault:    vault,
		Mode:     mode,
		Category: input.Category,
		Person:   input.Person,
		DateFrom: input.DateFrom,
		DateTo:   input.DateTo,
		Limit:    input.Limit,
	})
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("mcpsrv: search: %w", err)
	}
	return nil, SearchOutput{Results: results}, nil
}

func (s *Server) handleIndexStart(ctx context.Context, _ *mcp.CallToolRequest, input IndexStartInput) (*mcp.CallToolResult, IndexStartOutput, error) {
	sub, err := s.app.Jobs.Start(ctx, model.Vault(input.Vault), input.Full, input.CallbackURL)
	if err != nil {
		return nil, IndexStartOutput{}, fmt.Errorf("mcpsrv: start indexing job: %w", err)
	}
	return nil, IndexStartOutput{JobID: sub.JobID, Status: string(sub.Status)}, nil
}

func (s *Server) handleIndexStatus(_ context.Context, _ *mcp.CallToolRequest, input IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	j, ok := s.app.Jobs.Status(input.JobID)
	if !ok {
		return nil, IndexStatusOutput{}, fmt.Errorf("mcpsrv: job %q not found", input.JobID)
	}
	return nil, IndexStatusOutput{
		Status:       string(j.Status),
		Percent:      j.Progress.Percent,
		IndexedCount: j.IndexedCount,
		Error:        j.Error,
	}, nil
}

func (s *Server) handleIndexCancel(_ context.Context, _ *mcp.CallToolRequest, input IndexCancelInput) (*mcp.CallToolResult, IndexCancelOutput, error) {
	cancelled := s.app.Jobs.Cancel(input.JobID)
	return nil, IndexCancelOutput{Cancelled: cancelled}, nil
}

// Serve runs the MCP server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	slog.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.sdk.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		slog.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	slog.Info("mcp_server_stopped")
	return nil
}
