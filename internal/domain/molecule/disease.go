// Package molecule holds the domain model shared by generation and
// enrichment: target diseases, generation requests, molecules and the
// per-molecule lookup results.
package molecule

import (
	"sort"
	"strings"

	"github.com/turtacn/MolForge/pkg/errors"
)

// Disease is the wire code of a supported generation target.
type Disease string

const (
	DiseaseHepatitisB Disease = "hepatitis_b"
	DiseaseGLP1       Disease = "glp1"
	DiseaseAlzheimers Disease = "alzheimers"
	DiseaseHairLoss   Disease = "hair_loss"
	DiseaseLongevity  Disease = "longevity"
)

var diseaseLabels = map[Disease]string{
	DiseaseHepatitisB: "Hepatitis B",
	DiseaseGLP1:       "GLP-1 (obesity / type 2 diabetes)",
	DiseaseAlzheimers: "Alzheimer's disease",
	DiseaseHairLoss:   "Hair loss",
	DiseaseLongevity:  "Longevity",
}

// namePrefix is used by generators to label candidates ("HBV-Lead-01").
var namePrefix = map[Disease]string{
	DiseaseHepatitisB: "HBV",
	DiseaseGLP1:       "GLP1",
	DiseaseAlzheimers: "ALZ",
	DiseaseHairLoss:   "HAIR",
	DiseaseLongevity:  "LONG",
}

// String returns the wire code.
func (d Disease) String() string { return string(d) }

// IsValid reports whether d is a supported target.
func (d Disease) IsValid() bool {
	_, ok := diseaseLabels[d]
	return ok
}

// Label returns the display label, or the raw code for unknown values.
func (d Disease) Label() string {
	if l, ok := diseaseLabels[d]; ok {
		return l
	}
	return string(d)
}

// NamePrefix returns the short prefix used when naming candidates.
func (d Disease) NamePrefix() string {
	if p, ok := namePrefix[d]; ok {
		return p
	}
	return strings.ToUpper(string(d))
}

// SupportedDiseases returns every supported target, sorted by code.
func SupportedDiseases() []Disease {
	out := make([]Disease, 0, len(diseaseLabels))
	for d := range diseaseLabels {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseDisease converts user input into a Disease. Matching is case-insensitive
// and tolerates '-' in place of '_'.
func ParseDisease(s string) (Disease, error) {
	d := Disease(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !d.IsValid() {
		return "", errors.Newf(errors.ErrCodeDiseaseUnsupported, "unsupported target disease %q", s)
	}
	return d, nil
}
