package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/application/enrichment"
	"github.com/turtacn/MolForge/internal/application/generation"
	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/internal/intelligence/synthesis"
	"github.com/turtacn/MolForge/internal/interfaces/http/handlers"
	"github.com/turtacn/MolForge/internal/interfaces/http/middleware"
	"github.com/turtacn/MolForge/internal/testutil"
)

// stubService answers every enrichment lookup with fixed data.
type stubService struct{}

func (stubService) Properties(context.Context, string) (molecule.DetailedProperties, error) {
	return molecule.DetailedProperties{HBD: 2, HBA: 5, MolecularWeight: 320, LogP: 2.1, QED: 0.6}, nil
}

func (stubService) PredictADMET(_ context.Context, smiles string) (molecule.ADMETResult, error) {
	return molecule.ADMETResult{SMILES: smiles, OverallScore: 0.5}, nil
}

func (stubService) SearchSimilar(context.Context, string, float64, int) ([]molecule.SimilarityMatch, error) {
	return []molecule.SimilarityMatch{{Name: "hit", SMILES: "CCO", Similarity: 0.9}}, nil
}

func (stubService) Structure(context.Context, string) (string, error) {
	return "sdf\n$$$$\n", nil
}

type routerFixture struct {
	router    http.Handler
	store     *session.Store
	collector prometheus.MetricsCollector
	log       *testutil.MockLogger
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	log := testutil.NewMockLogger()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "router_test"}, log)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	store := session.NewStore()
	coord := generation.NewCoordinator(store, synthesis.NewMock(),
		generation.Config{FallbackLatency: time.Millisecond, BannerTTL: time.Hour}, log)
	t.Cleanup(coord.Close)
	views := enrichment.NewViews(stubService{}, enrichment.DefaultConfig(), log)
	t.Cleanup(views.CloseAll)

	enrich := handlers.NewEnrichmentHandler(coord.Store(), views, log, nil)
	sess := handlers.NewSessionHandler(context.Background(), coord, log, handlers.WithResetHook(enrich.CloseAll))
	t.Cleanup(sess.Wait)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = []string{"http://localhost:3000"}

	router := NewRouter(RouterConfig{
		SessionHandler:    sess,
		EnrichmentHandler: enrich,
		StreamHandler:     handlers.NewStreamHandler(coord.Store(), middleware.OriginMatcher(cors.AllowedOrigins), log, nil),
		HealthHandler:     handlers.NewHealthHandler("test"),
		CORS:              &cors,
		Logger:            log,
		Metrics:           metrics,
		MetricsCollector:  collector,
	})
	return &routerFixture{router: router, store: store, collector: collector, log: log}
}

func (fx *routerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func (fx *routerFixture) generate(t *testing.T) molecule.Molecule {
	t.Helper()
	rec := fx.do(http.MethodPost, "/api/v1/session/generate", `{"target_disease":"hepatitis_b","num_molecules":10}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return len(fx.store.Snapshot().Molecules) == 10 },
		2*time.Second, 5*time.Millisecond)
	return fx.store.Snapshot().Molecules[0]
}

func TestNewRouter_HealthEndpoints(t *testing.T) {
	fx := newRouterFixture(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := fx.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	// Probes are not logged.
	assert.False(t, fx.log.HasMessage(logging.LevelInfo, "HTTP request completed"))

	fx.do(http.MethodGet, "/api/v1/session", "")
	assert.True(t, fx.log.HasMessage(logging.LevelInfo, "HTTP request completed"))
}

func TestNewRouter_SessionFlow(t *testing.T) {
	fx := newRouterFixture(t)
	mol := fx.generate(t)

	rec := fx.do(http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st session.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Len(t, st.Molecules, 10)
	assert.Equal(t, session.SourceOracle, st.Source)

	rec = fx.do(http.MethodGet, "/api/v1/session/molecules/"+mol.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodDelete, "/api/v1/session/banner", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = fx.do(http.MethodDelete, "/api/v1/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, fx.store.Snapshot().Molecules)
}

func TestNewRouter_EnrichmentRoutes(t *testing.T) {
	fx := newRouterFixture(t)
	mol := fx.generate(t)
	base := "/api/v1/session/molecules/" + mol.ID

	routes := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, base + "/properties", http.StatusOK},
		{http.MethodPost, base + "/admet", http.StatusOK},
		{http.MethodPost, base + "/similar?threshold=0.6", http.StatusOK},
		{http.MethodGet, base + "/structure", http.StatusOK},
		{http.MethodGet, base + "/enrichment", http.StatusOK},
		{http.MethodDelete, base + "/enrichment", http.StatusNoContent},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := fx.do(rt.method, rt.path, "")
			assert.Equal(t, rt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestNewRouter_ResetClosesViews(t *testing.T) {
	fx := newRouterFixture(t)
	mol := fx.generate(t)

	rec := fx.do(http.MethodGet, "/api/v1/session/molecules/"+mol.ID+"/enrichment", "")
	require.Equal(t, http.StatusOK, rec.Code)

	fx.do(http.MethodDelete, "/api/v1/session", "")
	rec = fx.do(http.MethodDelete, "/api/v1/session/molecules/"+mol.ID+"/enrichment", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRouter_UnknownRoute(t *testing.T) {
	fx := newRouterFixture(t)
	rec := fx.do(http.MethodGet, "/api/v1/patents", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	fx := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/session/generate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_RequestIDAndMetrics(t *testing.T) {
	fx := newRouterFixture(t)

	rec := fx.do(http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "router_test_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/api/v1/session/"`)
}

func TestNewRouter_NilHandlers_NoPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		router := NewRouter(RouterConfig{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
