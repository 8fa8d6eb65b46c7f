package emission

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestDeclaredUnits(t *testing.T) {
	if du := DeclaredUnits(1000); !almostEqual(du, 92.903, 1e-9) {
		t.Errorf("DeclaredUnits(1000) = %f, want 92.903", du)
	}

	for _, area := range []float64{1, 10, 123.4, 5000} {
		if got, want := DeclaredUnits(2*area), 2*DeclaredUnits(area); !almostEqual(got, want, 1e-9) {
			t.Errorf("DeclaredUnits not linear at %f: %f != %f", area, got, want)
		}
	}

	if du := DeclaredUnits(1e-12); du <= 0 || du > 1e-12 {
		t.Errorf("DeclaredUnits near zero = %g, expected small positive value", du)
	}
}

func TestComputeWallOf1000SqFt(t *testing.T) {
	m := NewModel()
	du := DeclaredUnits(1000)
	b := m.Compute(du, 0)

	want := []struct {
		code string
		kg   float64
	}{
		{ModuleA1, -4083.3},
		{ModuleA2, 782.2},
		{ModuleA4, 0},
		{ModuleA5, 3942.7},
		{ModuleB1, -2945.0},
		{ModuleC, 1109.1},
	}

	if len(b) != len(want) {
		t.Fatalf("expected %d modules, got %d", len(want), len(b))
	}
	for i, w := range want {
		if b[i].Code != w.code {
			t.Errorf("module %d: expected code %s, got %s", i, w.code, b[i].Code)
		}
		if !almostEqual(b[i].KgCO2e, w.kg, 0.5) {
			t.Errorf("module %s: expected ~%f, got %f", w.code, w.kg, b[i].KgCO2e)
		}
	}

	if total := b.Total(); !almostEqual(total, -1194.3, 1.0) {
		t.Errorf("expected total ~-1194.3, got %f", total)
	}
	if total, exact := b.Total(), du*(A1PerDU+A2PerDU+A5PerDU+B1PerDU+CPerDU); !almostEqual(total, exact, 1e-9) {
		t.Errorf("expected total %f, got %f", exact, total)
	}
}

func TestTotalIsSumOfModules(t *testing.T) {
	m := NewModel()
	for _, du := range []float64{0, 1, 17.5, 929.03} {
		for _, km := range []float64{0, 12.3, 1500} {
			b := m.Compute(du, km)
			var sum float64
			for _, code := range []string{ModuleA1, ModuleA2, ModuleA4, ModuleA5, ModuleB1, ModuleC} {
				mod, ok := b.Module(code)
				if !ok {
					t.Fatalf("missing module %s", code)
				}
				sum += mod.KgCO2e
			}
			if !almostEqual(b.Total(), sum, 1e-9) {
				t.Errorf("du=%f km=%f: total %f != sum %f", du, km, b.Total(), sum)
			}
		}
	}
}

func TestOnlyA4DependsOnDistance(t *testing.T) {
	m := NewModel()
	du := DeclaredUnits(750)
	near := m.Compute(du, 100)
	far := m.Compute(du, 200)

	for i := range near {
		if near[i].Code == ModuleA4 {
			if !almostEqual(far[i].KgCO2e, 2*near[i].KgCO2e, 1e-9) {
				t.Errorf("doubling distance should double A4: %f vs %f", near[i].KgCO2e, far[i].KgCO2e)
			}
			continue
		}
		if near[i].KgCO2e != far[i].KgCO2e {
			t.Errorf("module %s changed with distance: %f vs %f", near[i].Code, near[i].KgCO2e, far[i].KgCO2e)
		}
	}

	a4Near, _ := near.Module(ModuleA4)
	a4Far, _ := far.Module(ModuleA4)
	if delta := far.Total() - near.Total(); !almostEqual(delta, a4Far.KgCO2e-a4Near.KgCO2e, 1e-9) {
		t.Errorf("total delta %f != A4 delta %f", delta, a4Far.KgCO2e-a4Near.KgCO2e)
	}
}

func TestA4(t *testing.T) {
	m := NewModel()
	// 10 DU * 0.0617 t * 100 km * 0.08 kg/tkm
	if got := m.A4(10, 100); !almostEqual(got, 4.936, 1e-9) {
		t.Errorf("A4(10, 100) = %f, want 4.936", got)
	}
	if got := m.A4(10, 0); got != 0 {
		t.Errorf("A4 at zero distance = %f, want 0", got)
	}
}

func TestModuleSigns(t *testing.T) {
	m := NewModel()
	for _, du := range []float64{0, 0.5, 92.903, 10000} {
		for _, km := range []float64{0, 1, 4000} {
			for _, mod := range m.Compute(du, km) {
				switch mod.Code {
				case ModuleA1, ModuleB1:
					if mod.KgCO2e > 0 {
						t.Errorf("%s should store carbon, got %f", mod.Code, mod.KgCO2e)
					}
				default:
					if mod.KgCO2e < 0 {
						t.Errorf("%s should emit carbon, got %f", mod.Code, mod.KgCO2e)
					}
				}
			}
		}
	}
}

func TestFormulas(t *testing.T) {
	lines := NewModel().Formulas()
	if len(lines) != 7 {
		t.Fatalf("expected 7 formula lines, got %d", len(lines))
	}
	if lines[0] != "DU = wall_area_ft² × 0.092903" {
		t.Errorf("unexpected DU formula %q", lines[0])
	}
	if lines[3] != "A4 = (DU × 0.0617 t) × distance_km × 0.08" {
		t.Errorf("unexpected A4 formula %q", lines[3])
	}
}
