package tools

import (
	"errors"

	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/geocode"
	"github.com/zaie-n/carbontool/pkg/pipeline"
)

// Guidance messages shown with validation failures.
const (
	GuidanceArea = "Provide area_sqft as a positive number of square feet, for example 1000."
	GuidanceZip  = "Provide a US ZIP code as five digits (10007) or ZIP+4 (10007-1234)."

	GuidanceZipUnavailable = "The ZIP code could not be checked because the geocoding service did not answer. Please try again in a few moments."
)

// CalculationError maps a pipeline error onto the MCPError taxonomy.
func CalculationError(err error) *core.MCPError {
	if mcpErr, ok := err.(*core.MCPError); ok {
		return mcpErr
	}

	var mcpErr *core.MCPError
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return core.NewError(core.ErrInvalidInput, err.Error()).
			WithGuidance(GuidanceArea).
			WithCause(err)
	case errors.Is(err, pipeline.ErrInvalidZip) && errors.Is(err, geocode.ErrUnavailable):
		return core.NewError(core.ErrInvalidZip, pipeline.ErrInvalidZip.Error()).
			WithGuidance(GuidanceZipUnavailable).
			WithCause(err)
	case errors.Is(err, pipeline.ErrInvalidZip):
		return core.NewError(core.ErrInvalidZip, pipeline.ErrInvalidZip.Error()).
			WithGuidance(GuidanceZip).
			WithCause(err)
	case errors.As(err, &mcpErr):
		return mcpErr
	default:
		return core.NewError(core.ErrInternalError, "calculation failed").WithCause(err)
	}
}

// GetToolUsageExample returns an example JSON snippet for using a specific tool
func GetToolUsageExample(toolName string) string {
	examples := map[string]string{
		"hempcrete_carbon": `{
  "area_sqft": 1000,
  "zip": "10007"
}`,
		"declared_units": `{
  "area_sqft": 1000
}`,
		"emission_factors": `{}`,
		"get_version":      `{}`,
	}

	if example, exists := examples[toolName]; exists {
		return example
	}
	return `{}`
}
