package tools

import (
	"context"
	"runtime"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zaie-n/carbontool/pkg/version"
)

// VersionInfo represents version information for the service
type VersionInfo struct {
	Version     string `json:"version"`
	GoVersion   string `json:"go_version,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
	VCSRevision string `json:"vcs_revision,omitempty"`
}

// GetVersionTool returns a tool definition for retrieving version information
func GetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the version and build information of the hempcrete carbon calculator"),
	)
}

// HandleGetVersion implements version information retrieval
func HandleGetVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return JSONResult(VersionInfo{
		Version:     version.BuildVersion,
		GoVersion:   runtime.Version(),
		BuildTime:   version.BuildDate,
		VCSRevision: version.BuildCommit,
	})
}
