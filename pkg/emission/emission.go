// Package emission computes the life-cycle carbon balance of a hempcrete wall.
//
// Quantities are expressed per declared unit (DU): one square meter of wall
// at 0.3 m thickness. Module values are in kg CO2e; negative values are
// carbon storage.
package emission

import "fmt"

const (
	// SqFtToSqM converts wall area in square feet to declared units.
	SqFtToSqM = 0.092903

	// Per-DU emission factors in kg CO2e.
	A1PerDU = -43.95
	A2PerDU = 8.42
	A5PerDU = 42.44
	B1PerDU = -31.70
	CPerDU  = 11.94

	// MassTonnesPerDU is the shipped mass of one DU.
	MassTonnesPerDU = 0.0617

	// TruckKgCO2ePerTonneKm is the road freight emission factor.
	TruckKgCO2ePerTonneKm = 0.08
)

// Module codes in breakdown order.
const (
	ModuleA1 = "A1"
	ModuleA2 = "A2"
	ModuleA4 = "A4"
	ModuleA5 = "A5"
	ModuleB1 = "B1"
	ModuleC  = "C1-C4"
)

// Factors holds every coefficient the model uses.
type Factors struct {
	A1PerDU               float64 `json:"a1_per_du"`
	A2PerDU               float64 `json:"a2_per_du"`
	A5PerDU               float64 `json:"a5_per_du"`
	B1PerDU               float64 `json:"b1_per_du"`
	CPerDU                float64 `json:"c_per_du"`
	MassTonnesPerDU       float64 `json:"mass_tonnes_per_du"`
	TruckKgCO2ePerTonneKm float64 `json:"truck_kgco2e_per_tonne_km"`
}

// DefaultFactors returns the published hempcrete factors.
func DefaultFactors() Factors {
	return Factors{
		A1PerDU:               A1PerDU,
		A2PerDU:               A2PerDU,
		A5PerDU:               A5PerDU,
		B1PerDU:               B1PerDU,
		CPerDU:                CPerDU,
		MassTonnesPerDU:       MassTonnesPerDU,
		TruckKgCO2ePerTonneKm: TruckKgCO2ePerTonneKm,
	}
}

// Module is one life-cycle stage of the breakdown.
type Module struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	KgCO2e float64 `json:"kg_co2e"`
}

// Breakdown is the ordered list of modules A1, A2, A4, A5, B1, C1-C4.
type Breakdown []Module

// Total sums every module. Negative means net storage.
func (b Breakdown) Total() float64 {
	var total float64
	for _, m := range b {
		total += m.KgCO2e
	}
	return total
}

// Module looks up a module by code.
func (b Breakdown) Module(code string) (Module, bool) {
	for _, m := range b {
		if m.Code == code {
			return m, true
		}
	}
	return Module{}, false
}

// DeclaredUnits converts a wall area in square feet to DU.
func DeclaredUnits(wallAreaSqFt float64) float64 {
	return wallAreaSqFt * SqFtToSqM
}

// Model evaluates the breakdown with a fixed set of factors.
type Model struct {
	Factors Factors
}

// NewModel returns a model using DefaultFactors.
func NewModel() *Model {
	return &Model{Factors: DefaultFactors()}
}

// A4 is site transport: DU mass in tonnes times distance times the truck factor.
func (m *Model) A4(du, distanceKm float64) float64 {
	tonneKm := du * m.Factors.MassTonnesPerDU * distanceKm
	return tonneKm * m.Factors.TruckKgCO2ePerTonneKm
}

// Compute returns the per-module breakdown. A4 is the only distance-dependent module.
func (m *Model) Compute(du, distanceKm float64) Breakdown {
	f := m.Factors
	return Breakdown{
		{Code: ModuleA1, Name: "A1 Raw materials", KgCO2e: du * f.A1PerDU},
		{Code: ModuleA2, Name: "A2 Upstream transport", KgCO2e: du * f.A2PerDU},
		{Code: ModuleA4, Name: "A4 Site transport", KgCO2e: m.A4(du, distanceKm)},
		{Code: ModuleA5, Name: "A5 Installation", KgCO2e: du * f.A5PerDU},
		{Code: ModuleB1, Name: "B1 Use phase", KgCO2e: du * f.B1PerDU},
		{Code: ModuleC, Name: "C1–C4 End-of-life", KgCO2e: du * f.CPerDU},
	}
}

// Formulas renders the calculation details for display.
func (m *Model) Formulas() []string {
	f := m.Factors
	return []string{
		fmt.Sprintf("DU = wall_area_ft² × %g", SqFtToSqM),
		fmt.Sprintf("A1 = DU × %g", f.A1PerDU),
		fmt.Sprintf("A2 = DU × %g", f.A2PerDU),
		fmt.Sprintf("A4 = (DU × %g t) × distance_km × %g", f.MassTonnesPerDU, f.TruckKgCO2ePerTonneKm),
		fmt.Sprintf("A5 = DU × %g", f.A5PerDU),
		fmt.Sprintf("B1 = DU × %g", f.B1PerDU),
		fmt.Sprintf("C1–C4 = DU × %g", f.CPerDU),
	}
}
