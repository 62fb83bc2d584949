package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/application/generation"
	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/intelligence/synthesis"
	"github.com/turtacn/MolForge/internal/testutil"
)

// --- Mock enrichment service ---

type mockEnrichmentService struct {
	mock.Mock
}

func (m *mockEnrichmentService) Properties(ctx context.Context, smiles string) (molecule.DetailedProperties, error) {
	args := m.Called(ctx, smiles)
	return args.Get(0).(molecule.DetailedProperties), args.Error(1)
}

func (m *mockEnrichmentService) PredictADMET(ctx context.Context, smiles string) (molecule.ADMETResult, error) {
	args := m.Called(ctx, smiles)
	return args.Get(0).(molecule.ADMETResult), args.Error(1)
}

func (m *mockEnrichmentService) SearchSimilar(ctx context.Context, smiles string, threshold float64, limit int) ([]molecule.SimilarityMatch, error) {
	args := m.Called(ctx, smiles, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]molecule.SimilarityMatch), args.Error(1)
}

func (m *mockEnrichmentService) Structure(ctx context.Context, smiles string) (string, error) {
	args := m.Called(ctx, smiles)
	return args.String(0), args.Error(1)
}

// --- Helpers ---

func newTestCoordinator(t *testing.T) (*generation.Coordinator, *session.Store) {
	t.Helper()
	store := session.NewStore()
	cfg := generation.Config{FallbackLatency: time.Millisecond, BannerTTL: time.Hour}
	coord := generation.NewCoordinator(store, synthesis.NewMock(), cfg, testutil.NewMockLogger())
	t.Cleanup(coord.Close)
	return coord, store
}

// seedSession commits one oracle batch and returns the first molecule.
func seedSession(t *testing.T, coord *generation.Coordinator) molecule.Molecule {
	t.Helper()
	req := molecule.GenerationRequest{TargetDisease: molecule.DiseaseGLP1, NumMolecules: 10}
	require.NoError(t, coord.Submit(context.Background(), req))
	mols := coord.Store().Snapshot().Molecules
	require.Len(t, mols, 10)
	return mols[0]
}

func withMoleculeID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("moleculeID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func doRequest(h http.HandlerFunc, method, target, body, id string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	if id != "" {
		r = withMoleculeID(r, id)
	}
	w := httptest.NewRecorder()
	h(w, r)
	return w
}
