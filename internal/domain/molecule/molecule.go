package molecule

import (
	"fmt"
	"strings"
	"time"
)

// Molecule is one generated candidate. It is immutable once committed; a new
// generation batch replaces the whole list.
type Molecule struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	SMILES          string   `json:"smiles"`
	MolecularWeight float64  `json:"molecular_weight"`
	LogP            float64  `json:"logp"`
	TPSA            float64  `json:"tpsa"`
	TargetDisease   Disease  `json:"target_disease"`
	BindingAffinity *float64 `json:"binding_affinity,omitempty"`
	SynthesisScore  *float64 `json:"synthesis_score,omitempty"`
}

// Float returns a pointer to v, for the optional scores.
func Float(v float64) *float64 { return &v }

// ─────────────────────────────────────────────────────────────────────────────
// Detailed properties
// ─────────────────────────────────────────────────────────────────────────────

// Rule-of-five thresholds.
const (
	LipinskiMaxWeight = 500.0
	LipinskiMaxLogP   = 5.0
	LipinskiMaxHBD    = 5
	LipinskiMaxHBA    = 10
)

// DetailedProperties are the computed attributes of one smiles.
type DetailedProperties struct {
	HBD                int     `json:"hbd"`
	HBA                int     `json:"hba"`
	RotatableBonds     int     `json:"rotatable_bonds"`
	QED                float64 `json:"qed"`
	MolecularWeight    float64 `json:"molecular_weight"`
	LogP               float64 `json:"logp"`
	LipinskiViolations int     `json:"lipinski_violations"`
}

// LipinskiCheck is one rule-of-five line for display.
type LipinskiCheck struct {
	Rule  string  `json:"rule"`
	Value float64 `json:"value"`
	Limit float64 `json:"limit"`
	Pass  bool    `json:"pass"`
}

// LipinskiChecks evaluates the four rules against p.
func (p DetailedProperties) LipinskiChecks() []LipinskiCheck {
	return []LipinskiCheck{
		{Rule: "molecular_weight", Value: p.MolecularWeight, Limit: LipinskiMaxWeight, Pass: p.MolecularWeight <= LipinskiMaxWeight},
		{Rule: "logp", Value: p.LogP, Limit: LipinskiMaxLogP, Pass: p.LogP <= LipinskiMaxLogP},
		{Rule: "hbd", Value: float64(p.HBD), Limit: LipinskiMaxHBD, Pass: p.HBD <= LipinskiMaxHBD},
		{Rule: "hba", Value: float64(p.HBA), Limit: LipinskiMaxHBA, Pass: p.HBA <= LipinskiMaxHBA},
	}
}

// DrugLike reports at most one rule-of-five violation.
func (p DetailedProperties) DrugLike() bool {
	failed := 0
	for _, c := range p.LipinskiChecks() {
		if !c.Pass {
			failed++
		}
	}
	return failed <= 1
}

// ─────────────────────────────────────────────────────────────────────────────
// ADMET
// ─────────────────────────────────────────────────────────────────────────────

// ADMETDetails is the detail record of a prediction.
type ADMETDetails struct {
	Caco2Permeability float64  `json:"caco2_permeability"`
	Bioavailability   float64  `json:"bioavailability"`
	BBBPenetration    float64  `json:"bbb_penetration"`
	PgpSubstrate      bool     `json:"pgp_substrate"`
	CYPInhibition     []string `json:"cyp_inhibition"`
	HalfLife          float64  `json:"half_life"`
	Clearance         float64  `json:"clearance"`
	LD50              float64  `json:"ld50"`
	HERGInhibition    bool     `json:"herg_inhibition"`
	Hepatotoxicity    bool     `json:"hepatotoxicity"`
	SkinSensitization bool     `json:"skin_sensitization"`
}

// ADMETResult is one prediction. Category scores lie in [0,1].
type ADMETResult struct {
	SMILES       string       `json:"smiles"`
	Absorption   float64      `json:"absorption"`
	Distribution float64      `json:"distribution"`
	Metabolism   float64      `json:"metabolism"`
	Excretion    float64      `json:"excretion"`
	Toxicity     float64      `json:"toxicity"`
	OverallScore float64      `json:"overall_score"`
	Details      ADMETDetails `json:"details"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Scores returns the five category scores keyed by category name, in
// absorption..toxicity order.
func (r ADMETResult) Scores() []CategoryScore {
	return []CategoryScore{
		{"absorption", r.Absorption},
		{"distribution", r.Distribution},
		{"metabolism", r.Metabolism},
		{"excretion", r.Excretion},
		{"toxicity", r.Toxicity},
	}
}

// ToxicityFlags lists the raised boolean toxicity flags.
func (r ADMETResult) ToxicityFlags() []string {
	var flags []string
	if r.Details.HERGInhibition {
		flags = append(flags, "hERG inhibition")
	}
	if r.Details.Hepatotoxicity {
		flags = append(flags, "hepatotoxicity")
	}
	if r.Details.SkinSensitization {
		flags = append(flags, "skin sensitization")
	}
	return flags
}

// CategoryScore pairs an ADMET category with its score.
type CategoryScore struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// ScoreGrade buckets a [0,1] score for display.
func ScoreGrade(score float64) string {
	switch {
	case score >= 0.7:
		return "good"
	case score >= 0.4:
		return "moderate"
	default:
		return "poor"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Similarity
// ─────────────────────────────────────────────────────────────────────────────

// Similarity query limits.
const (
	MinSimilarityThreshold     = 0.5
	MaxSimilarityThreshold     = 1.0
	DefaultSimilarityThreshold = 0.7
	DefaultSimilarityLimit     = 10
)

// SimilarityMatch is one hit of a similarity query, kept in service order.
type SimilarityMatch struct {
	Name            string  `json:"name"`
	SMILES          string  `json:"smiles"`
	Similarity      float64 `json:"similarity"`
	MolecularWeight float64 `json:"molecular_weight"`
	LogP            float64 `json:"logp"`
	TPSA            float64 `json:"tpsa"`
}

// ─────────────────────────────────────────────────────────────────────────────
// 3D structure
// ─────────────────────────────────────────────────────────────────────────────

// PlaceholderSDF returns the fixed six-membered ring shown when the real
// structure of smiles cannot be fetched.
func PlaceholderSDF(smiles string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Molecule from %s\n", smiles)
	sb.WriteString("  3DMol.js\n\n")
	sb.WriteString("  6  5  0  0  0  0  0  0  0  0999 V2000\n")
	coords := [][2]float64{
		{0, 0}, {1.2, 0}, {1.8, 1.0392}, {1.2, 2.0784}, {0, 2.0784}, {-0.6, 1.0392},
	}
	for _, c := range coords {
		fmt.Fprintf(&sb, "%10.4f%10.4f%10.4f C   0  0  0  0  0  0  0  0  0  0  0  0\n", c[0], c[1], 0.0)
	}
	bonds := [][3]int{{1, 2, 1}, {2, 3, 2}, {3, 4, 1}, {4, 5, 2}, {5, 6, 1}}
	for _, b := range bonds {
		fmt.Fprintf(&sb, "%3d%3d%3d  0  0  0  0\n", b[0], b[1], b[2])
	}
	sb.WriteString("M  END\n$$$$\n")
	return sb.String()
}
