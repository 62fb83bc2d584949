package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/turtacn/MolForge/pkg/errors"
)

// MoleculesClient wraps the per-smiles lookup endpoints.
type MoleculesClient struct {
	client *Client
}

// Properties is the body of GET /api/v1/molecules/{smiles}/properties.
type Properties struct {
	HBD                int     `json:"hbd"`
	HBA                int     `json:"hba"`
	RotatableBonds     int     `json:"rotatable_bonds"`
	QED                float64 `json:"qed"`
	MolecularWeight    float64 `json:"molecular_weight"`
	LogP               float64 `json:"logp"`
	LipinskiViolations int     `json:"lipinski_violations"`
}

// SimilarMolecule is one similarity hit.
type SimilarMolecule struct {
	Name            string  `json:"name"`
	SMILES          string  `json:"smiles"`
	Similarity      float64 `json:"similarity"`
	MolecularWeight float64 `json:"molecular_weight"`
	LogP            float64 `json:"logp"`
	TPSA            float64 `json:"tpsa"`
}

// SimilarRequest holds the query triple of a similarity search.
type SimilarRequest struct {
	QuerySMILES string
	Threshold   float64
	Limit       int
}

// SimilarResponse is the body of the similarity search.
type SimilarResponse struct {
	Molecules []SimilarMolecule `json:"molecules"`
}

func smilesPath(smiles, suffix string) string {
	return "/api/v1/molecules/" + url.PathEscape(smiles) + suffix
}

// Properties fetches the computed properties of smiles.
func (m *MoleculesClient) Properties(ctx context.Context, smiles string) (*Properties, error) {
	if strings.TrimSpace(smiles) == "" {
		return nil, errors.New(errors.ErrCodeMoleculeInvalidSMILES, "smiles is required")
	}
	var out Properties
	if err := m.client.get(ctx, smilesPath(smiles, "/properties"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchSimilar runs a similarity query. Parameters travel in the query
// string of a body-less POST. Results keep the service order.
func (m *MoleculesClient) SearchSimilar(ctx context.Context, req *SimilarRequest) (*SimilarResponse, error) {
	if req == nil || strings.TrimSpace(req.QuerySMILES) == "" {
		return nil, errors.New(errors.ErrCodeMoleculeInvalidSMILES, "query smiles is required")
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return nil, errors.Newf(errors.ErrCodeSimilarityThresholdInvalid, "threshold %.2f outside [0, 1]", req.Threshold)
	}
	if req.Limit <= 0 {
		return nil, errors.Validation("limit must be positive")
	}

	q := url.Values{}
	q.Set("query_smiles", req.QuerySMILES)
	q.Set("threshold", strconv.FormatFloat(req.Threshold, 'f', -1, 64))
	q.Set("limit", strconv.Itoa(req.Limit))

	var out SimilarResponse
	if err := m.client.post(ctx, "/api/v1/molecules/search/similar?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Molecules == nil {
		out.Molecules = []SimilarMolecule{}
	}
	return &out, nil
}

// SDF fetches the 3D structure of smiles as SDF text.
func (m *MoleculesClient) SDF(ctx context.Context, smiles string) (string, error) {
	if strings.TrimSpace(smiles) == "" {
		return "", errors.New(errors.ErrCodeMoleculeInvalidSMILES, "smiles is required")
	}
	var raw []byte
	if err := m.client.get(ctx, smilesPath(smiles, "/sdf"), &raw); err != nil {
		return "", err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", errors.New(errors.ErrCodeNotFound, "empty structure payload")
	}
	return string(raw), nil
}
