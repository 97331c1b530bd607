// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/binkynet/PinControl/pkg/service/tools"
)

// Config of the MCP server.
type Config struct {
	// Name & version reported to MCP clients
	Name    string
	Version string
}

// Dependencies of the MCP server.
type Dependencies struct {
	Log      zerolog.Logger
	Registry *tools.Registry
}

// Server exposes all tools of a registry over the Model Context Protocol.
type Server struct {
	log      zerolog.Logger
	registry *tools.Registry
	mcp      *server.MCPServer
	http     *server.StreamableHTTPServer
}

// New creates a new MCP server with one MCP tool per registered tool.
func New(conf Config, deps Dependencies) *Server {
	if conf.Name == "" {
		conf.Name = "pincontrol"
	}
	s := &Server{
		log:      deps.Log.With().Str("component", "mcp").Logger(),
		registry: deps.Registry,
		mcp: server.NewMCPServer(conf.Name, conf.Version,
			server.WithToolCapabilities(false),
		),
	}
	for _, t := range deps.Registry.List() {
		schema := t.Schema()
		s.mcp.AddTool(mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters), s.handler(schema.Name))
		s.log.Debug().Str("tool", schema.Name).Msg("Added MCP tool")
	}
	s.http = server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
	return s
}

// Handler returns an HTTP handler serving the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return s.http
}

// ServeStdio serves MCP over stdin/stdout until stdin is closed.
func (s *Server) ServeStdio() error {
	s.log.Info().Msg("Serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

// handler returns an MCP tool handler that invokes the registry tool
// with given name.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		result := s.registry.Invoke(ctx, name, params)
		if result.IsError {
			return mcp.NewToolResultError(result.Content), nil
		}
		return mcp.NewToolResultText(result.Content), nil
	}
}
