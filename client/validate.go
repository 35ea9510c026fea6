package client

import "fmt"

// Range is a closed interval.
type Range struct {
	Min, Max float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Advisory working envelope. The controller clamps out-of-range targets itself,
// so a violation is reported but never blocks the command.
var (
	XRange      = Range{-5, 5}
	YRange      = Range{6, 18}
	ZRange      = Range{13, 18}
	AlphaRange  = Range{-180, 180}
	Alpha1Range = Range{-180, 0}
	Alpha2Range = Range{0, 180}
)

// ValidationWarning describes one argument outside its advisory range.
type ValidationWarning struct {
	Field string
	Value float64
	Range Range
}

func (w ValidationWarning) Error() string {
	return fmt.Sprintf("%s=%g outside [%g, %g]", w.Field, w.Value, w.Range.Min, w.Range.Max)
}

type check struct {
	field string
	value float64
	rng   Range
}

func collect(checks ...check) []ValidationWarning {
	var warnings []ValidationWarning
	for _, c := range checks {
		if !c.rng.Contains(c.value) {
			warnings = append(warnings, ValidationWarning{Field: c.field, Value: c.value, Range: c.rng})
		}
	}
	return warnings
}

// ValidateMove checks a MoveXYZ target against the working envelope.
func ValidateMove(x, y, z float64) []ValidationWarning {
	return collect(
		check{"x", x, XRange},
		check{"y", y, YRange},
		check{"z", z, ZRange},
	)
}

// ValidateAngles checks the joint angles of a MoveAngles command.
func ValidateAngles(alpha, alpha1, alpha2 float64) []ValidationWarning {
	return collect(
		check{"alpha", alpha, AlphaRange},
		check{"alpha1", alpha1, Alpha1Range},
		check{"alpha2", alpha2, Alpha2Range},
	)
}
