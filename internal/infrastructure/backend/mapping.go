package backend

import (
	"time"

	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/pkg/client"
)

func toGenerateRequest(req molecule.GenerationRequest) *client.GenerateRequest {
	out := &client.GenerateRequest{
		TargetDisease: req.TargetDisease.String(),
		NumMolecules:  req.NumMolecules,
	}
	if c := req.Constraints; c != nil {
		out.Constraints = &client.Constraints{
			MolecularWeightMin: c.MolecularWeight.Min,
			MolecularWeightMax: c.MolecularWeight.Max,
			LogPMin:            c.LogP.Min,
			LogPMax:            c.LogP.Max,
		}
	}
	return out
}

func fromGenerated(d molecule.Disease, in []client.GeneratedMolecule) []molecule.Molecule {
	out := make([]molecule.Molecule, len(in))
	for i, g := range in {
		out[i] = molecule.Molecule{
			Name:            g.Name,
			SMILES:          g.SMILES,
			MolecularWeight: g.MolecularWeight,
			LogP:            g.LogP,
			TPSA:            g.TPSA,
			TargetDisease:   d,
			BindingAffinity: g.BindingAffinity,
			SynthesisScore:  g.SynthesisScore,
		}
	}
	return out
}

func fromProperties(p *client.Properties) molecule.DetailedProperties {
	return molecule.DetailedProperties{
		HBD:                p.HBD,
		HBA:                p.HBA,
		RotatableBonds:     p.RotatableBonds,
		QED:                p.QED,
		MolecularWeight:    p.MolecularWeight,
		LogP:               p.LogP,
		LipinskiViolations: p.LipinskiViolations,
	}
}

// fromPrediction maps an ADMET reply. An unparseable timestamp falls back to
// the receive time and is reported alongside the result.
func fromPrediction(p *client.ADMETPrediction) (molecule.ADMETResult, error) {
	ts, err := p.ParsedTimestamp()
	if err != nil {
		ts = time.Now().UTC()
	}
	return molecule.ADMETResult{
		SMILES:       p.SMILES,
		Absorption:   p.Absorption,
		Distribution: p.Distribution,
		Metabolism:   p.Metabolism,
		Excretion:    p.Excretion,
		Toxicity:     p.Toxicity,
		OverallScore: p.OverallScore,
		Details: molecule.ADMETDetails{
			Caco2Permeability: p.Details.Caco2Permeability,
			Bioavailability:   p.Details.Bioavailability,
			BBBPenetration:    p.Details.BBBPenetration,
			PgpSubstrate:      p.Details.PgpSubstrate,
			CYPInhibition:     append([]string(nil), p.Details.CYPInhibition...),
			HalfLife:          p.Details.HalfLife,
			Clearance:         p.Details.Clearance,
			LD50:              p.Details.LD50,
			HERGInhibition:    p.Details.HERGInhibition,
			Hepatotoxicity:    p.Details.Hepatotoxicity,
			SkinSensitization: p.Details.SkinSensitization,
		},
		Timestamp: ts,
	}, err
}

func fromSimilar(in []client.SimilarMolecule) []molecule.SimilarityMatch {
	out := make([]molecule.SimilarityMatch, len(in))
	for i, m := range in {
		out[i] = molecule.SimilarityMatch{
			Name:            m.Name,
			SMILES:          m.SMILES,
			Similarity:      m.Similarity,
			MolecularWeight: m.MolecularWeight,
			LogP:            m.LogP,
			TPSA:            m.TPSA,
		}
	}
	return out
}
