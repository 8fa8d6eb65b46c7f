package tools

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/emission"
	"github.com/zaie-n/carbontool/pkg/geo"
	"github.com/zaie-n/carbontool/pkg/pipeline"
)

// Calculator is the pipeline behind the carbon tools.
type Calculator interface {
	Compute(ctx context.Context, wallAreaSqFt float64, postalCode string) (*pipeline.Result, error)
	Model() *emission.Model
}

// HempcreteCarbonInput defines the input parameters for a carbon calculation
type HempcreteCarbonInput struct {
	AreaSqFt float64 `json:"area_sqft"`
	Zip      string  `json:"zip"`
}

// HempcreteCarbonOutput is the calculation result plus derived fields for display
type HempcreteCarbonOutput struct {
	*pipeline.Result
	NetStorage bool     `json:"net_storage"`
	Formulas   []string `json:"formulas,omitempty"`
}

// HempcreteCarbonTool returns a tool definition for the full carbon calculation
func HempcreteCarbonTool() mcp.Tool {
	return mcp.NewTool("hempcrete_carbon",
		mcp.WithDescription("Compute the life-cycle carbon balance (A1, A2, A4, A5, B1, C1-C4) of a hempcrete wall shipped by truck from Port Newark, NJ to a US ZIP code. A negative total means net carbon storage."),
		mcp.WithNumber("area_sqft",
			mcp.Required(),
			mcp.Description("Wall area in square feet, must be positive"),
		),
		mcp.WithString("zip",
			mcp.Required(),
			mcp.Description("Destination US ZIP code, 5 digits or ZIP+4"),
		),
		mcp.WithBoolean("include_formulas",
			mcp.Description("Include the calculation formulas in the result"),
		),
	)
}

// HandleHempcreteCarbon returns the handler for hempcrete_carbon bound to calc.
func HandleHempcreteCarbon(calc Calculator) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type input struct {
		HempcreteCarbonInput
		IncludeFormulas bool `json:"include_formulas"`
	}

	return WithParsedInput("hempcrete_carbon", func(ctx context.Context, in input, logger *slog.Logger) (interface{}, error) {
		res, err := calc.Compute(ctx, in.AreaSqFt, in.Zip)
		if err != nil {
			mcpErr := CalculationError(err)
			if mcpErr.Code == string(core.ErrInvalidZip) {
				mcpErr = mcpErr.WithQuery(in.Zip)
			}
			return nil, mcpErr
		}

		logger.Debug("carbon balance computed", "zip", in.Zip, "total_kgco2e", res.Total)

		out := HempcreteCarbonOutput{
			Result:     res,
			NetStorage: res.Total < 0,
		}
		if in.IncludeFormulas {
			out.Formulas = calc.Model().Formulas()
		}
		return out, nil
	})
}

// DeclaredUnitsInput defines the input for a DU conversion
type DeclaredUnitsInput struct {
	AreaSqFt float64 `json:"area_sqft"`
}

// DeclaredUnitsOutput defines the output for a DU conversion
type DeclaredUnitsOutput struct {
	AreaSqFt      float64 `json:"area_sqft"`
	DeclaredUnits float64 `json:"declared_units"`
	Formula       string  `json:"formula"`
}

// DeclaredUnitsTool returns a tool definition for converting wall area to declared units
func DeclaredUnitsTool() mcp.Tool {
	return mcp.NewTool("declared_units",
		mcp.WithDescription("Convert a wall area in square feet to declared units (1 m² of hempcrete wall at 0.3 m thickness)"),
		mcp.WithNumber("area_sqft",
			mcp.Required(),
			mcp.Description("Wall area in square feet, must be positive"),
		),
	)
}

// HandleDeclaredUnits implements the DU conversion
func HandleDeclaredUnits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("declared_units", func(ctx context.Context, in DeclaredUnitsInput, logger *slog.Logger) (interface{}, error) {
		if math.IsNaN(in.AreaSqFt) || math.IsInf(in.AreaSqFt, 0) || in.AreaSqFt <= 0 {
			return nil, fmt.Errorf("%w: got %v", pipeline.ErrInvalidInput, in.AreaSqFt)
		}
		return DeclaredUnitsOutput{
			AreaSqFt:      in.AreaSqFt,
			DeclaredUnits: emission.DeclaredUnits(in.AreaSqFt),
			Formula:       fmt.Sprintf("DU = wall_area_ft² × %g", emission.SqFtToSqM),
		}, nil
	})(ctx, req)
}

// EmissionFactorsOutput lists the factors and origin the calculator uses
type EmissionFactorsOutput struct {
	Factors       emission.Factors `json:"factors"`
	SqFtToDU      float64          `json:"sqft_to_du"`
	Origin        geo.Location     `json:"origin"`
	WindingFactor float64          `json:"road_winding_factor"`
	Formulas      []string         `json:"formulas"`
}

// EmissionFactorsTool returns a tool definition for listing emission factors
func EmissionFactorsTool() mcp.Tool {
	return mcp.NewTool("emission_factors",
		mcp.WithDescription("List the per-declared-unit emission factors, truck transport factor and formulas used by hempcrete_carbon"),
	)
}

// HandleEmissionFactors returns the handler for emission_factors bound to calc.
func HandleEmissionFactors(calc Calculator, windingFactor float64) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model := calc.Model()
		return JSONResult(EmissionFactorsOutput{
			Factors:       model.Factors,
			SqFtToDU:      emission.SqFtToSqM,
			Origin:        pipeline.Origin,
			WindingFactor: windingFactor,
			Formulas:      model.Formulas(),
		})
	}
}
