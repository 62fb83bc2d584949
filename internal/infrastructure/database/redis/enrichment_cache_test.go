package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/application/enrichment"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/MolForge/pkg/errors"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Properties(ctx context.Context, smiles string) (molecule.DetailedProperties, error) {
	args := m.Called(ctx, smiles)
	return args.Get(0).(molecule.DetailedProperties), args.Error(1)
}

func (m *mockService) PredictADMET(ctx context.Context, smiles string) (molecule.ADMETResult, error) {
	args := m.Called(ctx, smiles)
	return args.Get(0).(molecule.ADMETResult), args.Error(1)
}

func (m *mockService) SearchSimilar(ctx context.Context, smiles string, threshold float64, limit int) ([]molecule.SimilarityMatch, error) {
	args := m.Called(ctx, smiles, threshold, limit)
	return args.Get(0).([]molecule.SimilarityMatch), args.Error(1)
}

func (m *mockService) Structure(ctx context.Context, smiles string) (string, error) {
	args := m.Called(ctx, smiles)
	return args.String(0), args.Error(1)
}

func newTestEnrichmentCache(t *testing.T) (*EnrichmentCache, *mockService, redismock.ClientMock) {
	t.Helper()
	db, rmock := redismock.NewClientMock()
	t.Cleanup(func() { assert.NoError(t, rmock.ExpectationsWereMet()) })

	svc := &mockService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })

	cache := NewCache(newClient(db, logging.NewNopLogger()), nil, WithTTLJitter(0))
	return NewEnrichmentCache(svc, cache, 6*time.Hour), svc, rmock
}

func TestEnrichmentCache_PropertiesLoadedOnce(t *testing.T) {
	ec, svc, rmock := newTestEnrichmentCache(t)
	props := molecule.DetailedProperties{HBD: 1, HBA: 4, RotatableBonds: 3, QED: 0.55, MolecularWeight: 180.16, LogP: 1.19}

	rmock.ExpectGet("molforge:enrich:props:CCO").RedisNil()
	rmock.ExpectSet("molforge:enrich:props:CCO", encode(props), 6*time.Hour).SetVal("OK")
	rmock.ExpectGet("molforge:enrich:props:CCO").SetVal(encode(props))
	svc.On("Properties", mock.Anything, "CCO").Return(props, nil).Once()

	first, err := ec.Properties(context.Background(), "CCO")
	require.NoError(t, err)
	second, err := ec.Properties(context.Background(), "CCO")
	require.NoError(t, err)

	assert.Equal(t, props, first)
	assert.Equal(t, props, second)
}

func TestEnrichmentCache_StructureFailureNotStored(t *testing.T) {
	ec, svc, rmock := newTestEnrichmentCache(t)
	rmock.ExpectGet("molforge:enrich:sdf:CCO").RedisNil()
	svc.On("Structure", mock.Anything, "CCO").
		Return("", pkgerrors.New(pkgerrors.ErrCodeEnrichmentFailed, "no conformer")).Once()

	_, err := ec.Structure(context.Background(), "CCO")
	assert.True(t, pkgerrors.IsEnrichment(err))
}

func TestEnrichmentCache_StructureHit(t *testing.T) {
	ec, _, rmock := newTestEnrichmentCache(t)
	sdf := "CCO\n  RDKit          3D\n\nM  END\n$$$$\n"
	rmock.ExpectGet("molforge:enrich:sdf:CCO").SetVal(encode(sdf))

	got, err := ec.Structure(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Equal(t, sdf, got)
}

func TestEnrichmentCache_PassThrough(t *testing.T) {
	ec, svc, _ := newTestEnrichmentCache(t)
	res := molecule.ADMETResult{SMILES: "CCO", OverallScore: 0.66}
	matches := []molecule.SimilarityMatch{{Name: "Aspirin", Similarity: 0.95}}

	svc.On("PredictADMET", mock.Anything, "CCO").Return(res, nil).Twice()
	svc.On("SearchSimilar", mock.Anything, "CCO", 0.8, 5).Return(matches, nil).Once()

	for i := 0; i < 2; i++ {
		got, err := ec.PredictADMET(context.Background(), "CCO")
		require.NoError(t, err)
		assert.Equal(t, res, got)
	}
	got, err := ec.SearchSimilar(context.Background(), "CCO", 0.8, 5)
	require.NoError(t, err)
	assert.Equal(t, matches, got)
}

func TestEnrichmentCache_Evict(t *testing.T) {
	ec, _, rmock := newTestEnrichmentCache(t)
	rmock.ExpectDel("molforge:enrich:props:CCO", "molforge:enrich:sdf:CCO",
		"molforge:enrich:props:c1ccccc1", "molforge:enrich:sdf:c1ccccc1").SetVal(3)

	require.NoError(t, ec.Evict(context.Background(), "CCO", "c1ccccc1"))
	require.NoError(t, ec.Evict(context.Background()))
}

func TestEnrichmentCache_ReopenedViewAfterResetReachesBackend(t *testing.T) {
	ec, svc, rmock := newTestEnrichmentCache(t)
	props := molecule.DetailedProperties{HBD: 0, HBA: 1, RotatableBonds: 0, QED: 0.41, MolecularWeight: 46.07, LogP: -0.31}
	svc.On("Properties", mock.Anything, "CCO").Return(props, nil).Twice()
	views := enrichment.NewViews(ec, enrichment.DefaultConfig(), nil)
	ctx := context.Background()

	rmock.ExpectGet("molforge:enrich:props:CCO").RedisNil()
	rmock.ExpectSet("molforge:enrich:props:CCO", encode(props), 6*time.Hour).SetVal("OK")
	_, err := views.Open("mol-1").FetchProperties(ctx, "CCO")
	require.NoError(t, err)

	// Session reset closes every view.
	rmock.ExpectDel("molforge:enrich:props:CCO", "molforge:enrich:sdf:CCO").SetVal(1)
	views.CloseAll()
	require.NoError(t, rmock.ExpectationsWereMet())

	rmock.ExpectGet("molforge:enrich:props:CCO").RedisNil()
	rmock.ExpectSet("molforge:enrich:props:CCO", encode(props), 6*time.Hour).SetVal("OK")
	got, err := views.Open("mol-1").FetchProperties(ctx, "CCO")
	require.NoError(t, err)
	assert.Equal(t, props, got)
}

func TestEnrichmentCache_ClosedViewIsEvicted(t *testing.T) {
	ec, svc, rmock := newTestEnrichmentCache(t)
	svc.On("Structure", mock.Anything, "CCO").Return("CCO\nM  END\n$$$$\n", nil).Once()
	views := enrichment.NewViews(ec, enrichment.DefaultConfig(), nil)

	rmock.ExpectGet("molforge:enrich:sdf:CCO").RedisNil()
	rmock.ExpectSet("molforge:enrich:sdf:CCO", encode("CCO\nM  END\n$$$$\n"), 6*time.Hour).SetVal("OK")
	_, err := views.Open("mol-1").FetchStructure(context.Background(), "CCO")
	require.NoError(t, err)

	rmock.ExpectDel("molforge:enrich:props:CCO", "molforge:enrich:sdf:CCO").SetVal(1)
	assert.True(t, views.Close("mol-1"))
	assert.False(t, views.Close("mol-1"))
}
