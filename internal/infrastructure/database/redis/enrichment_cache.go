package redis

import (
	"context"
	"time"

	"github.com/turtacn/MolForge/internal/application/enrichment"
	"github.com/turtacn/MolForge/internal/domain/molecule"
)

const (
	propertiesKeyPrefix = "enrich:props:"
	structureKeyPrefix  = "enrich:sdf:"
)

// EnrichmentCache is an enrichment.Service that keeps properties and 3D
// structures in Redis. ADMET predictions and similarity searches are passed
// through so a retry always reaches the service. Entries live only as long as
// the detail views that fetched them: closing a view evicts its smiles.
type EnrichmentCache struct {
	next  enrichment.Service
	cache *Cache
	ttl   time.Duration
}

var (
	_ enrichment.Service = (*EnrichmentCache)(nil)
	_ enrichment.Evicter = (*EnrichmentCache)(nil)
)

// NewEnrichmentCache wraps next. A zero ttl uses the cache default.
func NewEnrichmentCache(next enrichment.Service, cache *Cache, ttl time.Duration) *EnrichmentCache {
	return &EnrichmentCache{next: next, cache: cache, ttl: ttl}
}

func (e *EnrichmentCache) Properties(ctx context.Context, smiles string) (molecule.DetailedProperties, error) {
	var p molecule.DetailedProperties
	err := e.cache.GetOrLoad(ctx, propertiesKeyPrefix+smiles, &p, e.ttl, func(loadCtx context.Context) (interface{}, error) {
		v, err := e.next.Properties(loadCtx, smiles)
		return v, detached(ctx, err)
	})
	return p, err
}

func (e *EnrichmentCache) PredictADMET(ctx context.Context, smiles string) (molecule.ADMETResult, error) {
	return e.next.PredictADMET(ctx, smiles)
}

func (e *EnrichmentCache) SearchSimilar(ctx context.Context, smiles string, threshold float64, limit int) ([]molecule.SimilarityMatch, error) {
	return e.next.SearchSimilar(ctx, smiles, threshold, limit)
}

func (e *EnrichmentCache) Structure(ctx context.Context, smiles string) (string, error) {
	var sdf string
	err := e.cache.GetOrLoad(ctx, structureKeyPrefix+smiles, &sdf, e.ttl, func(loadCtx context.Context) (interface{}, error) {
		v, err := e.next.Structure(loadCtx, smiles)
		return v, detached(ctx, err)
	})
	return sdf, err
}

// Evict drops the cached properties and structures of smiles.
func (e *EnrichmentCache) Evict(ctx context.Context, smiles ...string) error {
	keys := make([]string, 0, 2*len(smiles))
	for _, s := range smiles {
		keys = append(keys, propertiesKeyPrefix+s, structureKeyPrefix+s)
	}
	return e.cache.Delete(ctx, keys...)
}

// detached keeps a load whose view closed meanwhile out of the cache, so it
// cannot land after the view's eviction.
func detached(ctx context.Context, err error) error {
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
