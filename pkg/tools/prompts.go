package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zaie-n/carbontool/pkg/emission"
)

// CarbonReportPromptName is the name of the interpretation prompt.
const CarbonReportPromptName = "hempcrete_carbon_guide"

// CarbonReportPrompt explains how to read a hempcrete_carbon result.
func CarbonReportPrompt(model *emission.Model) string {
	var b strings.Builder
	b.WriteString("You can compute the embodied carbon of hempcrete walls with the hempcrete_carbon tool.\n\n")
	b.WriteString("Inputs: area_sqft (wall area in square feet, positive) and zip (US ZIP code).\n")
	b.WriteString("The wall is shipped by truck from Port Newark, NJ. The road distance comes from a routing service; ")
	b.WriteString("when it is unavailable the great-circle distance times 1.2 is used instead.\n\n")
	b.WriteString("Modules, in kg CO2e:\n")
	for _, f := range model.Formulas() {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nA negative total means the wall stores more biogenic carbon than its life cycle emits. ")
	b.WriteString("Report the total, the sign, and the largest contributing modules.")
	return b.String()
}

// RegisterPrompts adds the interpretation prompt to the MCP server.
func RegisterPrompts(mcpServer *server.MCPServer, model *emission.Model) {
	prompt := mcp.NewPrompt(CarbonReportPromptName,
		mcp.WithPromptDescription("How to call hempcrete_carbon and interpret its breakdown"),
	)

	mcpServer.AddPrompt(prompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return mcp.NewGetPromptResult(
			"Hempcrete Carbon Guide",
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(
					mcp.RoleAssistant,
					mcp.NewTextContent(CarbonReportPrompt(model)),
				),
			},
		), nil
	})
}
