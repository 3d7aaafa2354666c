// Package mcp exposes the audit engine and resolution workflow as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/service"
)

// RulesetURI is the resource URI of the active ruleset.
const RulesetURI = "gdmt://ruleset"

// Server represents the GDMT audit MCP server
type Server struct {
	mcpServer   *mcp.Server
	audits      *service.AuditService
	resolutions *service.ResolutionService
	logger      *logrus.Logger
}

// NewServer creates an MCP server with every tool and resource registered.
func NewServer(cfg domain.MCPConfig, audits *service.AuditService, resolutions *service.ResolutionService, logger *logrus.Logger) *Server {
	name, version := cfg.ServerName, cfg.ServerVersion
	if name == "" {
		name = "gdmt-audit-server"
	}
	if version == "" {
		version = "v1.0.0"
	}

	s := &Server{
		mcpServer:   mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		audits:      audits,
		resolutions: resolutions,
		logger:      logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting GDMT audit MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Connect serves a single session over the given transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, transport, nil)
}

// registerTools registers the tool table with the SDK.
func (s *Server) registerTools() {
	for _, t := range s.tools() {
		s.mcpServer.AddTool(&mcp.Tool{
			Name:        t.name,
			Description: t.description,
			InputSchema: json.RawMessage(t.schema),
		}, s.wrap(t.name, t.handle))
		s.logger.WithField("tool_name", t.name).Debug("Registered MCP tool")
	}
}

// registerResources exposes the active ruleset as a read-only JSON resource.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         RulesetURI,
		Name:        "ruleset",
		Description: "Active Guideline-as-Code ruleset: version, class thresholds and rules",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		data, err := json.MarshalIndent(s.audits.Ruleset().Document(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode ruleset: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      RulesetURI,
				MIMEType: "application/json",
				Text:     string(data),
			}},
		}, nil
	})
}

// toolFunc handles decoded tool arguments and returns the value to serialize.
type toolFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

// wrap adapts a toolFunc to the SDK handler, reporting failures as tool errors.
func (s *Server) wrap(name string, fn toolFunc) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := s.logger.WithField("tool", name)
		log.Debug("Tool invoked")

		out, err := fn(ctx, req.Params.Arguments)
		if err != nil {
			log.WithError(err).Warn("Tool call failed")
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s result: %w", name, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	}
}

// decode unmarshals tool arguments, treating empty arguments as an empty object.
func decode(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
