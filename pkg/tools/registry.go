package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zaie-n/carbontool/pkg/distance"
	"github.com/zaie-n/carbontool/pkg/monitoring"
	"github.com/zaie-n/carbontool/pkg/tracing"
)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger *slog.Logger
	calc   Calculator
}

// NewRegistry creates a new tool registry backed by calc
func NewRegistry(logger *slog.Logger, calc Calculator) *Registry {
	return &Registry{
		logger: logger,
		calc:   calc,
	}
}

// ToolDefinition represents a carbon calculator MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version information for this carbon calculator",
			Tool:        GetVersionTool(),
			Handler:     HandleGetVersion,
		},
		{
			Name:        "hempcrete_carbon",
			Description: "Compute the carbon balance of a hempcrete wall. Parameters: area_sqft (number), zip (string)",
			Tool:        HempcreteCarbonTool(),
			Handler:     HandleHempcreteCarbon(r.calc),
		},
		{
			Name:        "declared_units",
			Description: "Convert wall area to declared units. Parameters: area_sqft (number)",
			Tool:        DeclaredUnitsTool(),
			Handler:     HandleDeclaredUnits,
		},
		{
			Name:        "emission_factors",
			Description: "List emission factors and formulas",
			Tool:        EmissionFactorsTool(),
			Handler:     HandleEmissionFactors(r.calc, distance.WindingFactor),
		},
	}
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, r.wrapWithTracing(def.Name, def.Handler))
	}
}

// wrapWithTracing wraps a tool handler with OpenTelemetry tracing and request metrics
func (r *Registry) wrapWithTracing(toolName string, handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spanName := fmt.Sprintf("mcp.tool.%s", toolName)
		ctx, span := tracing.StartSpan(ctx, spanName,
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()

		result, err := handler(ctx, req)

		duration := time.Since(startTime)
		durationMs := duration.Milliseconds()

		// Tool-level failures come back as error results, not Go errors
		status := tracing.StatusSuccess
		if err != nil {
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if result != nil && result.IsError {
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned error result")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(
			attribute.String(tracing.AttrMCPToolStatus, status),
			attribute.Int64(tracing.AttrMCPToolDuration, durationMs),
			attribute.Int(tracing.AttrMCPResultSize, resultSize),
		)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", durationMs,
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// RegisterAll registers all tools and prompts with the MCP server.
func (r *Registry) RegisterAll(mcpServer *server.MCPServer) {
	r.RegisterTools(mcpServer)
	r.logger.Info("registering prompts")
	RegisterPrompts(mcpServer, r.calc.Model())
}

// Call invokes the named tool through the same tracing wrapper used for MCP requests.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	for _, def := range r.GetToolDefinitions() {
		if def.Name == name {
			return r.wrapWithTracing(name, def.Handler)(ctx, NewToolRequest(name, args))
		}
	}
	return nil, fmt.Errorf("unknown tool %q", name)
}
