package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/application/enrichment"
	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/testutil"
	"github.com/turtacn/MolForge/pkg/errors"
)

type enrichmentFixture struct {
	handler *EnrichmentHandler
	svc     *mockEnrichmentService
	views   *enrichment.Views
	store   session.Reader
	mol     molecule.Molecule
	gauge   *fakeGauge
}

type fakeGauge struct {
	mu sync.Mutex
	v  float64
}

func (g *fakeGauge) Set(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.v = v
}

func (g *fakeGauge) Inc() { g.Set(g.value() + 1) }
func (g *fakeGauge) Dec() { g.Set(g.value() - 1) }

func (g *fakeGauge) value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

func newEnrichmentFixture(t *testing.T) *enrichmentFixture {
	t.Helper()
	coord, _ := newTestCoordinator(t)
	mol := seedSession(t, coord)

	svc := new(mockEnrichmentService)
	views := enrichment.NewViews(svc, enrichment.DefaultConfig(), testutil.NewMockLogger())
	t.Cleanup(views.CloseAll)
	gauge := &fakeGauge{}
	return &enrichmentFixture{
		handler: NewEnrichmentHandler(coord.Store(), views, nil, gauge),
		svc:     svc,
		views:   views,
		store:   coord.Store(),
		mol:     mol,
		gauge:   gauge,
	}
}

func TestEnrichmentHandler_Properties(t *testing.T) {
	fx := newEnrichmentFixture(t)
	props := molecule.DetailedProperties{HBD: 1, HBA: 4, RotatableBonds: 3, QED: 0.55, MolecularWeight: 180.16, LogP: 1.19}
	fx.svc.On("Properties", mock.Anything, fx.mol.SMILES).Return(props, nil).Once()

	w := doRequest(fx.handler.Properties, http.MethodPost, "/", "", fx.mol.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp PropertiesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, enrichment.StatusReady, resp.Status)
	require.NotNil(t, resp.Value)
	assert.Equal(t, 4, resp.Value.HBA)
	require.NotNil(t, resp.DrugLike)
	assert.True(t, *resp.DrugLike)
	assert.Len(t, resp.Lipinski, 4)
	assert.Equal(t, float64(1), fx.gauge.value())

	// Second call is served from the view cache.
	w = doRequest(fx.handler.Properties, http.MethodPost, "/", "", fx.mol.ID)
	assert.Equal(t, http.StatusOK, w.Code)
	fx.svc.AssertNumberOfCalls(t, "Properties", 1)
}

func TestEnrichmentHandler_Properties_OverlappingRequests(t *testing.T) {
	fx := newEnrichmentFixture(t)
	props := molecule.DetailedProperties{HBD: 1, HBA: 4, RotatableBonds: 3, QED: 0.55, MolecularWeight: 180.16, LogP: 1.19}
	started := make(chan struct{})
	release := make(chan struct{})
	fx.svc.On("Properties", mock.Anything, fx.mol.SMILES).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(props, nil).Once()

	codes := make(chan *httptest.ResponseRecorder, 2)
	go func() { codes <- doRequest(fx.handler.Properties, http.MethodPost, "/", "", fx.mol.ID) }()
	<-started
	go func() { codes <- doRequest(fx.handler.Properties, http.MethodPost, "/", "", fx.mol.ID) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		w := <-codes
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp PropertiesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, enrichment.StatusReady, resp.Status)
		require.NotNil(t, resp.Value)
		assert.Equal(t, 4, resp.Value.HBA)
	}
	fx.svc.AssertNumberOfCalls(t, "Properties", 1)
}

func TestEnrichmentHandler_Properties_SilentFailure(t *testing.T) {
	fx := newEnrichmentFixture(t)
	fx.svc.On("Properties", mock.Anything, fx.mol.SMILES).
		Return(molecule.DetailedProperties{}, errors.New(errors.ErrCodeExternalService, "backend down"))

	w := doRequest(fx.handler.Properties, http.MethodPost, "/", "", fx.mol.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp PropertiesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, enrichment.StatusUnresolved, resp.Status)
	assert.Nil(t, resp.Value)
	assert.Nil(t, resp.DrugLike)
}

func TestEnrichmentHandler_UnknownMolecule(t *testing.T) {
	fx := newEnrichmentFixture(t)

	for name, h := range map[string]http.HandlerFunc{
		"properties": fx.handler.Properties,
		"admet":      fx.handler.ADMET,
		"structure":  fx.handler.Structure,
		"snapshot":   fx.handler.Snapshot,
	} {
		t.Run(name, func(t *testing.T) {
			w := doRequest(h, http.MethodGet, "/", "", "no-such-id")
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Contains(t, w.Body.String(), "MOL_004")
		})
	}
	assert.Equal(t, 0, fx.views.Len())
	fx.svc.AssertNotCalled(t, "Properties", mock.Anything, mock.Anything)
}

func TestEnrichmentHandler_ADMET(t *testing.T) {
	fx := newEnrichmentFixture(t)
	res := molecule.ADMETResult{
		SMILES: fx.mol.SMILES, Absorption: 0.8, Distribution: 0.6, Metabolism: 0.5,
		Excretion: 0.7, Toxicity: 0.3, OverallScore: 0.72,
		Details: molecule.ADMETDetails{HERGInhibition: true},
	}
	fx.svc.On("PredictADMET", mock.Anything, fx.mol.SMILES).Return(res, nil).Once()

	w := doRequest(fx.handler.ADMET, http.MethodPost, "/", "", fx.mol.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ADMETResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "good", resp.Grade)
	assert.Len(t, resp.Scores, 5)
	assert.Equal(t, []string{"hERG inhibition"}, resp.ToxicityFlags)
	assert.InDelta(t, 0.72, resp.Result.OverallScore, 1e-9)
}

func TestEnrichmentHandler_ADMET_FailureIsBadGateway(t *testing.T) {
	fx := newEnrichmentFixture(t)
	fx.svc.On("PredictADMET", mock.Anything, fx.mol.SMILES).
		Return(molecule.ADMETResult{}, errors.New(errors.ErrCodeExternalService, "model offline"))

	w := doRequest(fx.handler.ADMET, http.MethodPost, "/", "", fx.mol.ID)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ENR_001", resp.Code)

	// The failure is recorded in the view and is retryable.
	w = doRequest(fx.handler.Snapshot, http.MethodGet, "/", "", fx.mol.ID)
	var snap enrichment.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, enrichment.StatusFailed, snap.ADMET.Status)
	assert.Equal(t, "ENR_001", snap.ADMET.Code)
}

func TestEnrichmentHandler_Similar(t *testing.T) {
	fx := newEnrichmentFixture(t)
	matches := []molecule.SimilarityMatch{
		{Name: "Semaglutide", SMILES: "CCO", Similarity: 0.91},
		{Name: "Liraglutide", SMILES: "CCN", Similarity: 0.84},
	}
	fx.svc.On("SearchSimilar", mock.Anything, fx.mol.SMILES, 0.8, 5).Return(matches, nil).Once()

	w := doRequest(fx.handler.Similar, http.MethodPost, "/?threshold=0.8&limit=5", "", fx.mol.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SimilarResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.8, resp.Threshold)
	assert.Equal(t, 5, resp.Limit)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, "Semaglutide", resp.Matches[0].Name)
}

func TestEnrichmentHandler_Similar_Defaults(t *testing.T) {
	fx := newEnrichmentFixture(t)
	fx.svc.On("SearchSimilar", mock.Anything, fx.mol.SMILES,
		molecule.DefaultSimilarityThreshold, molecule.DefaultSimilarityLimit).
		Return([]molecule.SimilarityMatch{}, nil).Once()

	w := doRequest(fx.handler.Similar, http.MethodPost, "/", "", fx.mol.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SimilarResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Matches)
	fx.svc.AssertExpectations(t)
}

func TestEnrichmentHandler_Similar_RejectsBadQuery(t *testing.T) {
	fx := newEnrichmentFixture(t)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"threshold below range", "?threshold=0.4", "MOL_010"},
		{"threshold above range", "?threshold=1.2", "MOL_010"},
		{"threshold not a number", "?threshold=high", "MOL_010"},
		{"limit zero", "?limit=0", "COMMON_010"},
		{"limit not a number", "?limit=ten", "COMMON_010"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(fx.handler.Similar, http.MethodPost, "/"+tt.query, "", fx.mol.ID)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
	fx.svc.AssertNotCalled(t, "SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEnrichmentHandler_Structure(t *testing.T) {
	fx := newEnrichmentFixture(t)
	fx.svc.On("Structure", mock.Anything, fx.mol.SMILES).Return("real-sdf\n$$$$\n", nil).Once()

	w := doRequest(fx.handler.Structure, http.MethodGet, "/", "", fx.mol.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var s enrichment.Structure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "real-sdf\n$$$$\n", s.SDF)
	assert.False(t, s.Placeholder)
}

func TestEnrichmentHandler_Structure_PlaceholderAsSDF(t *testing.T) {
	fx := newEnrichmentFixture(t)
	fx.svc.On("Structure", mock.Anything, fx.mol.SMILES).Return("", errors.NotFound("no 3D structure"))

	r := withMoleculeID(httptest.NewRequest(http.MethodGet, "/", nil), fx.mol.ID)
	r.Header.Set("Accept", "chemical/x-mdl-sdfile")
	w := httptest.NewRecorder()
	fx.handler.Structure(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "chemical/x-mdl-sdfile", w.Header().Get("Content-Type"))
	assert.Equal(t, "true", w.Header().Get("X-Structure-Placeholder"))
	assert.Equal(t, molecule.PlaceholderSDF(fx.mol.SMILES), w.Body.String())
}

func TestEnrichmentHandler_Close(t *testing.T) {
	fx := newEnrichmentFixture(t)

	w := doRequest(fx.handler.Close, http.MethodDelete, "/", "", fx.mol.ID)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(fx.handler.Snapshot, http.MethodGet, "/", "", fx.mol.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fx.views.Len())

	w = doRequest(fx.handler.Close, http.MethodDelete, "/", "", fx.mol.ID)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, fx.views.Len())
	assert.Equal(t, float64(0), fx.gauge.value())
}

func TestEnrichmentHandler_CloseAll(t *testing.T) {
	fx := newEnrichmentFixture(t)
	other := fx.store.Snapshot().Molecules[1]

	doRequest(fx.handler.Snapshot, http.MethodGet, "/", "", fx.mol.ID)
	doRequest(fx.handler.Snapshot, http.MethodGet, "/", "", other.ID)
	require.Equal(t, float64(2), fx.gauge.value())

	fx.handler.CloseAll()
	assert.Equal(t, 0, fx.views.Len())
	assert.Equal(t, float64(0), fx.gauge.value())
}
