package client

import (
	"context"
	"strings"

	"github.com/turtacn/MolForge/pkg/errors"
)

// GenerationClient wraps POST /api/v1/generate.
type GenerationClient struct {
	client *Client
}

// Constraints is the flat wire form of generation constraints.
type Constraints struct {
	MolecularWeightMin float64 `json:"molecular_weight_min"`
	MolecularWeightMax float64 `json:"molecular_weight_max"`
	LogPMin            float64 `json:"logp_min"`
	LogPMax            float64 `json:"logp_max"`
}

// GenerateRequest is the body of a generation call.
type GenerateRequest struct {
	TargetDisease string       `json:"target_disease"`
	NumMolecules  int          `json:"num_molecules"`
	Constraints   *Constraints `json:"constraints,omitempty"`
}

// GeneratedMolecule is one molecule as returned by the service. The service
// does not allocate ids.
type GeneratedMolecule struct {
	Name            string   `json:"name"`
	SMILES          string   `json:"smiles"`
	MolecularWeight float64  `json:"molecular_weight"`
	LogP            float64  `json:"logp"`
	TPSA            float64  `json:"tpsa"`
	HBD             int      `json:"hbd,omitempty"`
	HBA             int      `json:"hba,omitempty"`
	BindingAffinity *float64 `json:"binding_affinity,omitempty"`
	SynthesisScore  *float64 `json:"synthesis_score,omitempty"`
}

// GenerateResponse is the service reply. Status, TargetDisease and
// NumGenerated are optional.
type GenerateResponse struct {
	Status        string              `json:"status,omitempty"`
	TargetDisease string              `json:"target_disease,omitempty"`
	NumGenerated  int                 `json:"num_generated,omitempty"`
	Molecules     []GeneratedMolecule `json:"molecules"`
}

// Generate requests a batch of molecules.
func (g *GenerationClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil {
		return nil, errors.Validation("generate request is required")
	}
	if strings.TrimSpace(req.TargetDisease) == "" {
		return nil, errors.Validation("target_disease is required")
	}
	if req.NumMolecules <= 0 {
		return nil, errors.Validation("num_molecules must be positive")
	}

	var resp GenerateResponse
	if err := g.client.post(ctx, "/api/v1/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
