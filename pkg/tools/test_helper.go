package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zaie-n/carbontool/pkg/core"
)

// IsErrorResult checks if a CallToolResult represents an error
func IsErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// AssertErrorResult checks that a result is an error result and fails the test if not
func AssertErrorResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if !IsErrorResult(result) {
		t.Error(message)
	}
}

// AssertErrorCode checks that a result is an error result with the given code
func AssertErrorCode(t *testing.T, result *mcp.CallToolResult, code core.ErrorCode) {
	t.Helper()
	mcpErr, ok := ResultError(result)
	if !ok {
		t.Fatalf("expected %s error result, got success: %s", code, ResultText(result))
	}
	if mcpErr.Code != string(code) {
		t.Errorf("error code = %s, want %s (%s)", mcpErr.Code, code, mcpErr.Message)
	}
}

// AssertSuccessResult checks that a result is a success result and fails the test if not
func AssertSuccessResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if IsErrorResult(result) {
		t.Errorf("%s. Got error: %s", message, ResultText(result))
	}
}

// ParseResultJSON parses the JSON content from a CallToolResult
func ParseResultJSON(result *mcp.CallToolResult, out interface{}) error {
	return json.Unmarshal([]byte(ResultText(result)), out)
}
