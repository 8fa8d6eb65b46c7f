// Package tools provides the MCP tools of the hempcrete carbon calculator.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zaie-n/carbontool/pkg/core"
)

// InputParser is a generic function to parse request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	// Convert the arguments to JSON
	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, invalidInput(fmt.Sprintf("Invalid input format: %v", err)), err
	}

	// Parse into the specified type
	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, invalidInput(fmt.Sprintf("Failed to parse input: %v", err)), err
	}

	return input, nil, nil
}

// WithParsedInput is a higher-order function that handles request parsing and error handling.
// Handler errors are reported through CalculationError.
func WithParsedInput[T any](
	handlerName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (interface{}, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := slog.Default().With("tool", handlerName)

		// Parse the input
		input, errResult, err := InputParser[T](req)
		if err != nil {
			logger.Info("failed to parse input", "error", err)
			return errResult, nil
		}

		result, err := handler(ctx, input, logger)
		if err != nil {
			mcpErr := CalculationError(err)
			logger.Info("handler error", "code", mcpErr.Code, "error", err)
			return mcpErr.ToMCPResult(), nil
		}

		return JSONResult(result)
	}
}

// JSONResult marshals v as the text content of a tool result.
func JSONResult(v interface{}) (*mcp.CallToolResult, error) {
	resultBytes, err := json.Marshal(v)
	if err != nil {
		slog.Default().Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}

// ErrorResponse returns an internal error result with message.
func ErrorResponse(message string) *mcp.CallToolResult {
	return core.NewError(core.ErrInternalError, message).ToMCPResult()
}

func invalidInput(message string) *mcp.CallToolResult {
	return core.NewValidationError(core.ErrInvalidInput, message).ToMCPResult()
}

// NewToolRequest builds a tool call request for name with args.
func NewToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// ResultText returns the first text content of a result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// ResultError decodes the MCPError carried by an error result.
func ResultError(result *mcp.CallToolResult) (*core.MCPError, bool) {
	if result == nil || !result.IsError {
		return nil, false
	}
	var mcpErr core.MCPError
	if err := json.Unmarshal([]byte(ResultText(result)), &mcpErr); err != nil {
		return core.NewError(core.ErrInternalError, ResultText(result)), true
	}
	return &mcpErr, true
}
