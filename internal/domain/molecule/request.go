package molecule

import (
	"fmt"
	"math"

	"github.com/turtacn/MolForge/pkg/errors"
)

// Batch size limits for a single generation cycle.
const (
	MinMolecules     = 10
	MaxMolecules     = 100
	DefaultMolecules = 20
	MoleculesStep    = 10
)

// LogP constraint bounds accepted by the generation service.
const (
	MinLogPBound = -5.0
	MaxLogPBound = 10.0
)

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the interval.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Constraints bound the properties of generated molecules.
type Constraints struct {
	MolecularWeight Range `json:"molecular_weight"`
	LogP            Range `json:"logp"`
}

// DefaultConstraints mirrors the defaults shown in the advanced form.
func DefaultConstraints() Constraints {
	return Constraints{
		MolecularWeight: Range{Min: 200, Max: 500},
		LogP:            Range{Min: -1, Max: 5},
	}
}

// GenerationRequest is one submitted generation form.
type GenerationRequest struct {
	TargetDisease Disease      `json:"target_disease"`
	NumMolecules  int          `json:"num_molecules"`
	Constraints   *Constraints `json:"constraints,omitempty"`
}

// Validate checks every request invariant. The returned error is a
// ValidationError naming the first offending field.
func (r GenerationRequest) Validate() error {
	if !r.TargetDisease.IsValid() {
		return errors.Validation("target_disease is required").
			WithDetail(fmt.Sprintf("unsupported value %q", r.TargetDisease))
	}
	if r.NumMolecules < MinMolecules || r.NumMolecules > MaxMolecules {
		return errors.Validation(fmt.Sprintf("num_molecules must be between %d and %d", MinMolecules, MaxMolecules)).
			WithDetail(fmt.Sprintf("got %d", r.NumMolecules))
	}
	if c := r.Constraints; c != nil {
		for _, v := range []float64{c.MolecularWeight.Min, c.MolecularWeight.Max, c.LogP.Min, c.LogP.Max} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Validation("constraint bounds must be finite numbers")
			}
		}
		if c.MolecularWeight.Min <= 0 {
			return errors.Validation("molecular weight minimum must be positive")
		}
		if c.MolecularWeight.Min > c.MolecularWeight.Max {
			return errors.Validation("molecular weight range min must not exceed max").
				WithDetail(fmt.Sprintf("[%g, %g]", c.MolecularWeight.Min, c.MolecularWeight.Max))
		}
		if c.LogP.Min < MinLogPBound || c.LogP.Max > MaxLogPBound {
			return errors.Validation(fmt.Sprintf("logP bounds must lie within [%g, %g]", MinLogPBound, MaxLogPBound))
		}
		if c.LogP.Min > c.LogP.Max {
			return errors.Validation("logP range min must not exceed max").
				WithDetail(fmt.Sprintf("[%g, %g]", c.LogP.Min, c.LogP.Max))
		}
	}
	return nil
}
