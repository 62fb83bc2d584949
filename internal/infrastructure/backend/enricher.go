package backend

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/client"
	"github.com/turtacn/MolForge/pkg/errors"
)

// Enricher serves the per-molecule lookups. All calls share one outbound
// rate limiter.
type Enricher struct {
	molecules *client.MoleculesClient
	admet     *client.ADMETClient
	limiter   *rate.Limiter
	log       logging.Logger
}

// NewEnricher wraps c's lookup endpoints. A non-positive limit disables
// throttling.
func NewEnricher(c *client.Client, limit float64, burst int, log logging.Logger) *Enricher {
	if log == nil {
		log = logging.NewNopLogger()
	}
	l := rate.NewLimiter(rate.Inf, 0)
	if limit > 0 {
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return &Enricher{
		molecules: c.Molecules(),
		admet:     c.ADMET(),
		limiter:   l,
		log:       log.Named("backend"),
	}
}

func (e *Enricher) wait(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeTooManyRequests, "enrichment rate limit wait aborted")
	}
	return nil
}

// Properties fetches the detailed properties of smiles.
func (e *Enricher) Properties(ctx context.Context, smiles string) (molecule.DetailedProperties, error) {
	if err := e.wait(ctx); err != nil {
		return molecule.DetailedProperties{}, err
	}
	p, err := e.molecules.Properties(ctx, smiles)
	if err != nil {
		return molecule.DetailedProperties{}, errors.Wrap(err, errors.ErrCodeExternalService, "properties request failed")
	}
	return fromProperties(p), nil
}

// PredictADMET runs a fresh ADMET prediction.
func (e *Enricher) PredictADMET(ctx context.Context, smiles string) (molecule.ADMETResult, error) {
	if err := e.wait(ctx); err != nil {
		return molecule.ADMETResult{}, err
	}
	p, err := e.admet.Predict(ctx, smiles)
	if err != nil {
		return molecule.ADMETResult{}, errors.Wrap(err, errors.ErrCodeExternalService, "ADMET request failed")
	}
	r, tsErr := fromPrediction(p)
	if tsErr != nil {
		e.log.Debug("ADMET timestamp not parsed", logging.String("timestamp", p.Timestamp), logging.Err(tsErr))
	}
	return r, nil
}

// SearchSimilar runs a similarity query.
func (e *Enricher) SearchSimilar(ctx context.Context, smiles string, threshold float64, limit int) ([]molecule.SimilarityMatch, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := e.molecules.SearchSimilar(ctx, &client.SimilarRequest{QuerySMILES: smiles, Threshold: threshold, Limit: limit})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "similarity request failed")
	}
	return fromSimilar(resp.Molecules), nil
}

// Structure fetches the SDF text of smiles.
func (e *Enricher) Structure(ctx context.Context, smiles string) (string, error) {
	if err := e.wait(ctx); err != nil {
		return "", err
	}
	sdf, err := e.molecules.SDF(ctx, smiles)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "structure request failed")
	}
	return sdf, nil
}
