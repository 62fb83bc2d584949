package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/MolForge/internal/application/enrichment"
	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/pkg/errors"
)

// EnrichmentHandler serves the molecule detail view. Each molecule id maps to
// one open view whose lookups are independent of each other.
type EnrichmentHandler struct {
	store     session.Reader
	views     *enrichment.Views
	logger    logging.Logger
	openViews prometheus.Gauge
}

// NewEnrichmentHandler creates an EnrichmentHandler. openViews may be nil.
func NewEnrichmentHandler(store session.Reader, views *enrichment.Views, logger logging.Logger, openViews prometheus.Gauge) *EnrichmentHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EnrichmentHandler{store: store, views: views, logger: logger, openViews: openViews}
}

// PropertiesResponse carries the property state plus the Lipinski breakdown
// when properties resolved.
type PropertiesResponse struct {
	enrichment.PropertiesState
	Lipinski []molecule.LipinskiCheck `json:"lipinski,omitempty"`
	DrugLike *bool                    `json:"drug_like,omitempty"`
}

// ADMETResponse is a prediction with its display breakdown.
type ADMETResponse struct {
	Result        molecule.ADMETResult     `json:"result"`
	Scores        []molecule.CategoryScore `json:"scores"`
	Grade         string                   `json:"grade"`
	ToxicityFlags []string                 `json:"toxicity_flags"`
}

// SimilarResponse is one similarity search result.
type SimilarResponse struct {
	Threshold float64                    `json:"threshold"`
	Limit     int                        `json:"limit"`
	Matches   []molecule.SimilarityMatch `json:"matches"`
}

// Properties handles POST .../{moleculeID}/properties. A failed or overtaken
// lookup is not an HTTP error; the response carries the current state.
func (h *EnrichmentHandler) Properties(w http.ResponseWriter, r *http.Request) {
	mol, f, ok := h.open(w, r)
	if !ok {
		return
	}
	_, err := f.FetchProperties(r.Context(), mol.SMILES)
	if err != nil && !errors.IsEnrichment(err) && !(errors.IsStale(err) && !f.Closed()) {
		writeAppError(w, err)
		return
	}

	resp := PropertiesResponse{PropertiesState: f.Snapshot(mol.SMILES).Properties}
	if v := resp.Value; v != nil {
		drugLike := v.DrugLike()
		resp.Lipinski = v.LipinskiChecks()
		resp.DrugLike = &drugLike
	}
	writeJSON(w, http.StatusOK, resp)
}

// ADMET handles POST .../{moleculeID}/admet.
func (h *EnrichmentHandler) ADMET(w http.ResponseWriter, r *http.Request) {
	mol, f, ok := h.open(w, r)
	if !ok {
		return
	}
	res, err := f.PredictADMET(r.Context(), mol.SMILES)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ADMETResponse{
		Result:        res,
		Scores:        res.Scores(),
		Grade:         molecule.ScoreGrade(res.OverallScore),
		ToxicityFlags: res.ToxicityFlags(),
	})
}

// Similar handles POST .../{moleculeID}/similar?threshold=&limit=.
func (h *EnrichmentHandler) Similar(w http.ResponseWriter, r *http.Request) {
	cfg := h.views.Config()
	threshold, limit := cfg.SimilarityThreshold, cfg.SimilarityLimit

	q := r.URL.Query()
	if v := q.Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeAppError(w, errors.Newf(errors.ErrCodeSimilarityThresholdInvalid, "threshold %q is not a number", v))
			return
		}
		threshold = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeAppError(w, errors.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if err := enrichment.CheckThreshold(threshold); err != nil {
		writeAppError(w, err)
		return
	}

	mol, f, ok := h.open(w, r)
	if !ok {
		return
	}
	matches, err := f.FindSimilar(r.Context(), mol.SMILES, threshold, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SimilarResponse{Threshold: threshold, Limit: limit, Matches: matches})
}

// Structure handles GET .../{moleculeID}/structure. Clients asking for
// chemical/x-mdl-sdfile get the raw SDF text.
func (h *EnrichmentHandler) Structure(w http.ResponseWriter, r *http.Request) {
	mol, f, ok := h.open(w, r)
	if !ok {
		return
	}
	s, err := f.FetchStructure(r.Context(), mol.SMILES)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if r.Header.Get("Accept") == "chemical/x-mdl-sdfile" {
		w.Header().Set("Content-Type", "chemical/x-mdl-sdfile")
		if s.Placeholder {
			w.Header().Set("X-Structure-Placeholder", "true")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s.SDF))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Snapshot handles GET .../{moleculeID}/enrichment.
func (h *EnrichmentHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	mol, f, ok := h.open(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Snapshot(mol.SMILES))
}

// Close handles DELETE .../{moleculeID}/enrichment. In-flight lookups of the
// view are cancelled and their late results dropped.
func (h *EnrichmentHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "moleculeID")
	if !h.views.Close(id) {
		writeAppError(w, errors.NotFound("no open detail view").WithDetail(id))
		return
	}
	h.publishOpenViews()
	w.WriteHeader(http.StatusNoContent)
}

// CloseAll closes every view. Used on session reset and shutdown.
func (h *EnrichmentHandler) CloseAll() {
	h.views.CloseAll()
	h.publishOpenViews()
}

func (h *EnrichmentHandler) open(w http.ResponseWriter, r *http.Request) (molecule.Molecule, *enrichment.Fetcher, bool) {
	id := chi.URLParam(r, "moleculeID")
	mol, ok := h.store.Molecule(id)
	if !ok {
		writeAppError(w, errors.New(errors.ErrCodeMoleculeNotFound, "molecule not found").WithDetail(id))
		return molecule.Molecule{}, nil, false
	}
	f := h.views.Open(id)
	h.publishOpenViews()
	return mol, f, true
}

func (h *EnrichmentHandler) publishOpenViews() {
	if h.openViews != nil {
		h.openViews.Set(float64(h.views.Len()))
	}
}
