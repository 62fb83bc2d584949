package client

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/turtacn/MolForge/pkg/errors"
)

// ADMETClient wraps POST /api/v1/admet/predict.
type ADMETClient struct {
	client *Client
}

// ADMETDetails is the detail block of a prediction.
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

// ADMETPrediction is the service reply. Timestamp is kept as sent; the
// backend emits ISO-8601 without a zone.
type ADMETPrediction struct {
	SMILES       string       `json:"smiles"`
	Absorption   float64      `json:"absorption"`
	Distribution float64      `json:"distribution"`
	Metabolism   float64      `json:"metabolism"`
	Excretion    float64      `json:"excretion"`
	Toxicity     float64      `json:"toxicity"`
	OverallScore float64      `json:"overall_score"`
	Details      ADMETDetails `json:"details"`
	Timestamp    string       `json:"timestamp"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParsedTimestamp parses Timestamp, treating zone-less values as UTC.
func (p *ADMETPrediction) ParsedTimestamp() (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, p.Timestamp)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, errors.Wrap(lastErr, errors.ErrCodeSerialization, "unparseable prediction timestamp")
}

// Predict runs one ADMET prediction. Every call is a fresh request.
func (a *ADMETClient) Predict(ctx context.Context, smiles string) (*ADMETPrediction, error) {
	if strings.TrimSpace(smiles) == "" {
		return nil, errors.New(errors.ErrCodeMoleculeInvalidSMILES, "smiles is required")
	}
	q := url.Values{}
	q.Set("smiles", smiles)

	var out ADMETPrediction
	if err := a.client.post(ctx, "/api/v1/admet/predict?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
