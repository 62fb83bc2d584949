// Package synthesis defines the molecule synthesis oracle contract and a
// deterministic mock implementation used when no generation backend is
// reachable.
package synthesis

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/pkg/errors"
)

// Oracle maps (disease, count, constraints) to an ordered list of candidate
// molecules. Implementations must be deterministic for identical inputs and
// return exactly count molecules with unique ids.
type Oracle interface {
	Synthesize(disease molecule.Disease, count int, constraints *molecule.Constraints) ([]molecule.Molecule, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(disease molecule.Disease, count int, constraints *molecule.Constraints) ([]molecule.Molecule, error)

// Synthesize calls f.
func (f OracleFunc) Synthesize(disease molecule.Disease, count int, constraints *molecule.Constraints) ([]molecule.Molecule, error) {
	return f(disease, count, constraints)
}

// scaffolds are plausible drug-like cores per target. They are only used as
// text for display; no chemistry is computed on them.
var scaffolds = map[molecule.Disease][]string{
	molecule.DiseaseHepatitisB: {
		"CC(=O)Nc1ccc(O)cc1",
		"Nc1ncnc2n(cnc12)C1OC(CO)C(O)C1",
		"O=C1NC(=O)C(F)=CN1",
		"CC1=CN(C2CC(N=[N+]=[N-])C(CO)O2)C(=O)NC1=O",
	},
	molecule.DiseaseGLP1: {
		"CC(C)Cc1ccc(cc1)C(C)C(=O)O",
		"COc1ccc2[nH]c(nc2c1)S(=O)Cc1ncc(C)c(OC)c1C",
		"O=C(O)c1ccccc1Nc1cccc(c1)C(F)(F)F",
		"CN(C)C(=N)NC(=N)N",
	},
	molecule.DiseaseAlzheimers: {
		"COc1cc2c(cc1OC)C(=O)C(C2)CC1CCN(Cc2ccccc2)CC1",
		"CN(C)CCc1c[nH]c2ccc(O)cc12",
		"CC(N)Cc1ccccc1",
		"CNC(=O)Oc1ccc2c(c1)C1(C)CCN(C)C1N2C",
	},
	molecule.DiseaseHairLoss: {
		"CC12CCC3C(CCC4NC(=O)C=CC34C)C1CCC2C(=O)NC(C)(C)C",
		"Nc1cc(N2CCCCC2)nc(N)[n+]1[O-]",
		"CC(=O)OC1CCC2(C)C(CCC3C2CCC2(C)C3CCC2=O)C1",
		"O=C(O)CCc1ccc(O)cc1",
	},
	molecule.DiseaseLongevity: {
		"CN(C)C(=N)N=C(N)N",
		"Oc1ccc(C=Cc2cc(O)cc(O)c2)cc1",
		"NC(=O)c1cccnc1",
		"CC(C)CC1NC(=O)C(CC(=O)O)NC1=O",
	},
}

var substituents = []string{"", "C", "F", "Cl", "OC", "N", "C(F)(F)F", "O", "CC", "C#N"}

// Mock is the deterministic fallback oracle.
type Mock struct{}

// NewMock returns the fallback oracle.
func NewMock() *Mock { return &Mock{} }

// Synthesize produces count molecules seeded by the inputs. Property values
// are drawn inside the constraint ranges when constraints are given.
func (m *Mock) Synthesize(disease molecule.Disease, count int, constraints *molecule.Constraints) ([]molecule.Molecule, error) {
	if !disease.IsValid() {
		return nil, errors.Newf(errors.ErrCodeOracleFailed, "no scaffolds for disease %q", disease)
	}
	if count <= 0 {
		return nil, errors.Newf(errors.ErrCodeOracleFailed, "count must be positive, got %d", count)
	}

	c := molecule.DefaultConstraints()
	if constraints != nil {
		c = *constraints
	}

	rng := rand.New(rand.NewSource(seed(disease, count, c)))
	cores := scaffolds[disease]
	prefix := disease.NamePrefix()

	out := make([]molecule.Molecule, 0, count)
	for i := 0; i < count; i++ {
		core := cores[i%len(cores)]
		sub := substituents[rng.Intn(len(substituents))]
		smiles := core
		if sub != "" {
			smiles = sub + core
		}
		out = append(out, molecule.Molecule{
			ID:              fmt.Sprintf("mock-%s-%04d", disease, i+1),
			Name:            fmt.Sprintf("%s-Cand-%03d", prefix, i+1),
			SMILES:          smiles,
			MolecularWeight: draw(rng, c.MolecularWeight),
			LogP:            draw(rng, c.LogP),
			TPSA:            round2(20 + rng.Float64()*120),
			TargetDisease:   disease,
			BindingAffinity: molecule.Float(round2(0.3 + rng.Float64()*0.65)),
			SynthesisScore:  molecule.Float(round2(0.4 + rng.Float64()*0.55)),
		})
	}
	return out, nil
}

func seed(disease molecule.Disease, count int, c molecule.Constraints) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%g|%g|%g|%g", disease, count,
		c.MolecularWeight.Min, c.MolecularWeight.Max, c.LogP.Min, c.LogP.Max)
	return int64(h.Sum64() & math.MaxInt64)
}

// draw returns a value in r rounded to two decimals, clamped back into r.
func draw(rng *rand.Rand, r molecule.Range) float64 {
	v := round2(r.Min + rng.Float64()*(r.Max-r.Min))
	return math.Max(r.Min, math.Min(r.Max, v))
}

func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
