package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/MolForge/internal/application/generation"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/errors"
)

// SessionHandler exposes the generation session. Submissions are validated
// inline and then run in the background; progress is observed through the
// session snapshot or the stream.
type SessionHandler struct {
	coord   *generation.Coordinator
	ctx     context.Context
	logger  logging.Logger
	onReset func()

	wg sync.WaitGroup
}

// SessionOption configures a SessionHandler.
type SessionOption func(*SessionHandler)

// WithResetHook runs fn after every session reset.
func WithResetHook(fn func()) SessionOption {
	return func(h *SessionHandler) { h.onReset = fn }
}

// NewSessionHandler creates a SessionHandler. Background cycles run under
// ctx and are cancelled with it.
func NewSessionHandler(ctx context.Context, coord *generation.Coordinator, logger logging.Logger, opts ...SessionOption) *SessionHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &SessionHandler{coord: coord, ctx: ctx, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AcceptedResponse is returned by the asynchronous session endpoints.
type AcceptedResponse struct {
	Status string `json:"status"`
	Source string `json:"source"`
}

// Get handles GET /api/v1/session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Store().Snapshot())
}

// Generate handles POST /api/v1/session/generate.
func (h *SessionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req molecule.GenerationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeAppError(w, err)
		return
	}

	h.run(func(ctx context.Context) error { return h.coord.Submit(ctx, req) })
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted", Source: string(h.coord.Source())})
}

// Retry handles POST /api/v1/session/retry.
func (h *SessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if h.coord.Store().Snapshot().Form == nil {
		writeAppError(w, errors.Validation("nothing to retry: no generation has been submitted"))
		return
	}
	h.run(h.coord.Retry)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted", Source: string(h.coord.Source())})
}

// DismissBanner handles DELETE /api/v1/session/banner.
func (h *SessionHandler) DismissBanner(w http.ResponseWriter, r *http.Request) {
	if !h.coord.DismissBanner() {
		writeAppError(w, errors.NotFound("no banner is shown"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles DELETE /api/v1/session.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.coord.Reset()
	if h.onReset != nil {
		h.onReset()
	}
	w.WriteHeader(http.StatusNoContent)
}

// Molecule handles GET /api/v1/session/molecules/{moleculeID}.
func (h *SessionHandler) Molecule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "moleculeID")
	mol, ok := h.coord.Store().Molecule(id)
	if !ok {
		writeAppError(w, errors.New(errors.ErrCodeMoleculeNotFound, "molecule not found").WithDetail(id))
		return
	}
	writeJSON(w, http.StatusOK, mol)
}

// Wait blocks until every background cycle started by this handler ended.
func (h *SessionHandler) Wait() { h.wg.Wait() }

func (h *SessionHandler) run(fn func(context.Context) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := fn(h.ctx)
		switch {
		case err == nil:
		case errors.IsSuperseded(err), errors.IsCode(err, errors.ErrCodeGenerationClosed):
			h.logger.Debug("background generation ended early", logging.Err(err))
		default:
			// The coordinator already logged the failure and raised the banner.
			h.logger.Debug("background generation failed", logging.Code(err))
		}
	}()
}
