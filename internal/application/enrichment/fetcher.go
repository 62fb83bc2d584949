// Package enrichment runs the per-molecule lookups of a detail view:
// detailed properties, ADMET prediction, similarity search and the 3D
// structure. Every lookup kind keeps its own loading, error and result state
// per smiles, so one failing lookup never disturbs another.
//
// Only the most recently started call for a (kind, smiles) pair may write
// state. An overtaken call's response is dropped and its caller receives a
// StaleResult error, except for property lookups that shared the newer
// call's backend request: those callers get the shared outcome.
package enrichment

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/errors"
)

// Service is the backend the fetcher reads from.
type Service interface {
	Properties(ctx context.Context, smiles string) (molecule.DetailedProperties, error)
	PredictADMET(ctx context.Context, smiles string) (molecule.ADMETResult, error)
	SearchSimilar(ctx context.Context, smiles string, threshold float64, limit int) ([]molecule.SimilarityMatch, error)
	Structure(ctx context.Context, smiles string) (string, error)
}

// Evicter is implemented by services that keep results outside the fetcher.
// A closing fetcher evicts every smiles it looked up, so a reopened view
// reaches the backend again.
type Evicter interface {
	Evict(ctx context.Context, smiles ...string) error
}

// evictTimeout bounds the eviction done by Close.
const evictTimeout = 2 * time.Second

// Kind names a lookup.
type Kind string

const (
	KindProperties Kind = "properties"
	KindADMET      Kind = "admet"
	KindSimilar    Kind = "similar"
	KindStructure  Kind = "structure"
)

// Status is the lifecycle state of one lookup.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
	// StatusUnresolved is a properties lookup that failed with nothing cached;
	// views render a dash.
	StatusUnresolved Status = "unresolved"
	// StatusNoMatches is a similarity search that succeeded with zero hits.
	StatusNoMatches Status = "no_matches"
	// StatusPlaceholder is a structure lookup that fell back to the fixed ring.
	StatusPlaceholder Status = "placeholder"
)

// Lookup outcomes reported to Metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeEmpty       = "empty"
	OutcomeCached      = "cached"
	OutcomeFailed      = "failed"
	OutcomeStale       = "stale"
	OutcomePlaceholder = "placeholder"
)

// Metrics receives one observation per finished lookup.
type Metrics interface {
	ObserveEnrichment(kind Kind, outcome string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveEnrichment(Kind, string, time.Duration) {}

// Config sizes the caches and supplies similarity defaults.
type Config struct {
	CacheSize           int
	SimilarityThreshold float64
	SimilarityLimit     int
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		CacheSize:           128,
		SimilarityThreshold: molecule.DefaultSimilarityThreshold,
		SimilarityLimit:     molecule.DefaultSimilarityLimit,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.SimilarityLimit <= 0 {
		c.SimilarityLimit = d.SimilarityLimit
	}
	return c
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMetrics sets the lookup metrics sink.
func WithMetrics(m Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Exposed state
// ─────────────────────────────────────────────────────────────────────────────

// PropertiesState is silent: failures never carry a message.
type PropertiesState struct {
	Status Status                       `json:"status"`
	Value  *molecule.DetailedProperties `json:"value,omitempty"`
}

type ADMETState struct {
	Status Status                `json:"status"`
	Result *molecule.ADMETResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
	Code   string                `json:"code,omitempty"`
}

type SimilarState struct {
	Status    Status                     `json:"status"`
	Threshold float64                    `json:"threshold,omitempty"`
	Limit     int                        `json:"limit,omitempty"`
	Matches   []molecule.SimilarityMatch `json:"matches,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Code      string                     `json:"code,omitempty"`
}

type StructureState struct {
	Status Status `json:"status"`
	SDF    string `json:"sdf,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Snapshot is a copy of every lookup state for one smiles.
type Snapshot struct {
	SMILES     string          `json:"smiles"`
	Properties PropertiesState `json:"properties"`
	ADMET      ADMETState      `json:"admet"`
	Similar    SimilarState    `json:"similar"`
	Structure  StructureState  `json:"structure"`
}

// Structure is the result of FetchStructure.
type Structure struct {
	SMILES      string `json:"smiles"`
	SDF         string `json:"sdf"`
	Placeholder bool   `json:"placeholder"`
}

type entry struct {
	seq       map[Kind]uint64
	props     PropertiesState
	admet     ADMETState
	similar   SimilarState
	structure StructureState
}

func newEntry() *entry {
	return &entry{
		seq:       map[Kind]uint64{},
		props:     PropertiesState{Status: StatusIdle},
		admet:     ADMETState{Status: StatusIdle},
		similar:   SimilarState{Status: StatusIdle},
		structure: StructureState{Status: StatusIdle},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Fetcher
// ─────────────────────────────────────────────────────────────────────────────

// Fetcher owns the lookups of one detail view. Properties and structures are
// cached per smiles for the fetcher's lifetime; ADMET predictions and
// similarity searches always go to the backend. All methods are safe for
// concurrent use.
type Fetcher struct {
	svc     Service
	cfg     Config
	log     logging.Logger
	metrics Metrics

	props  *lru.Cache[string, molecule.DetailedProperties]
	sdf    *lru.Cache[string, string]
	flight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewFetcher creates a fetcher reading from svc.
func NewFetcher(svc Service, cfg Config, log logging.Logger, opts ...Option) *Fetcher {
	if log == nil {
		log = logging.NewNopLogger()
	}
	cfg = cfg.normalized()
	// lru.New only fails for non-positive sizes.
	props, _ := lru.New[string, molecule.DetailedProperties](cfg.CacheSize)
	sdf, _ := lru.New[string, string](cfg.CacheSize)

	ctx, cancel := context.WithCancel(context.Background())
	f := &Fetcher{
		svc:     svc,
		cfg:     cfg,
		log:     log.Named("enrichment"),
		metrics: nopMetrics{},
		props:   props,
		sdf:     sdf,
		ctx:     ctx,
		cancel:  cancel,
		entries: map[string]*entry{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the effective settings.
func (f *Fetcher) Config() Config { return f.cfg }

// FetchProperties returns the detailed properties of smiles, from cache when
// present. Concurrent calls for one smiles share a single backend request.
// A failure keeps whatever value was shown before and is only logged; the
// returned error is for callers that want it. A caller overtaken by a newer
// call that joined the same request receives that request's outcome.
func (f *Fetcher) FetchProperties(ctx context.Context, smiles string) (molecule.DetailedProperties, error) {
	var zero molecule.DetailedProperties
	if err := checkSMILES(smiles); err != nil {
		return zero, err
	}
	if p, ok := f.props.Get(smiles); ok {
		if f.touch(smiles, func(e *entry) { e.props = PropertiesState{Status: StatusReady, Value: &p} }) {
			f.metrics.ObserveEnrichment(KindProperties, OutcomeCached, 0)
			return p, nil
		}
		return zero, errClosed()
	}

	seq, err := f.start(KindProperties, smiles, func(e *entry) { e.props.Status = StatusLoading })
	if err != nil {
		return zero, err
	}
	start := time.Now()

	ch := f.flight.DoChan(smiles, func() (interface{}, error) {
		p, err := f.svc.Properties(f.ctx, smiles)
		if err == nil && f.ctx.Err() == nil {
			f.props.Add(smiles, p)
		}
		return p, err
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}

	if res.Err != nil {
		err := errors.Wrap(res.Err, errors.ErrCodeEnrichmentFailed, "property lookup failed")
		f.log.Warn("property lookup failed", logging.String("smiles", smiles), logging.Err(res.Err))
		applied := f.apply(KindProperties, smiles, seq, func(e *entry) {
			if e.props.Value != nil {
				e.props.Status = StatusReady
			} else {
				e.props.Status = StatusUnresolved
			}
		})
		if !applied {
			if res.Shared && !f.Closed() {
				return zero, err
			}
			return zero, f.stale(KindProperties, smiles, start)
		}
		f.metrics.ObserveEnrichment(KindProperties, OutcomeFailed, time.Since(start))
		return zero, err
	}

	p := res.Val.(molecule.DetailedProperties)
	if !f.apply(KindProperties, smiles, seq, func(e *entry) {
		e.props = PropertiesState{Status: StatusReady, Value: &p}
	}) {
		if res.Shared && !f.Closed() {
			// The newer caller writes this same value.
			f.metrics.ObserveEnrichment(KindProperties, OutcomeSuccess, time.Since(start))
			return p, nil
		}
		return zero, f.stale(KindProperties, smiles, start)
	}
	f.metrics.ObserveEnrichment(KindProperties, OutcomeSuccess, time.Since(start))
	return p, nil
}

// PredictADMET requests a fresh prediction for smiles. Every call goes to the
// backend; a failure leaves a retryable failed state.
func (f *Fetcher) PredictADMET(ctx context.Context, smiles string) (molecule.ADMETResult, error) {
	var zero molecule.ADMETResult
	if err := checkSMILES(smiles); err != nil {
		return zero, err
	}
	seq, err := f.start(KindADMET, smiles, func(e *entry) {
		e.admet.Status = StatusLoading
		e.admet.Error, e.admet.Code = "", ""
	})
	if err != nil {
		return zero, err
	}
	start := time.Now()

	ctx, cancel := f.bind(ctx)
	defer cancel()
	r, err := f.svc.PredictADMET(ctx, smiles)
	if err != nil {
		err := errors.Wrap(err, errors.ErrCodeEnrichmentFailed, "ADMET prediction failed")
		if !f.apply(KindADMET, smiles, seq, func(e *entry) {
			e.admet.Status = StatusFailed
			e.admet.Error = err.Message
			e.admet.Code = err.Code.String()
		}) {
			return zero, f.stale(KindADMET, smiles, start)
		}
		f.log.Warn("ADMET prediction failed", logging.String("smiles", smiles), logging.Err(err.Cause))
		f.metrics.ObserveEnrichment(KindADMET, OutcomeFailed, time.Since(start))
		return zero, err
	}

	if !f.apply(KindADMET, smiles, seq, func(e *entry) {
		res := r
		res.Details.CYPInhibition = append([]string(nil), r.Details.CYPInhibition...)
		e.admet = ADMETState{Status: StatusReady, Result: &res}
	}) {
		return zero, f.stale(KindADMET, smiles, start)
	}
	f.metrics.ObserveEnrichment(KindADMET, OutcomeSuccess, time.Since(start))
	return r, nil
}

// FindSimilar searches for molecules similar to smiles. threshold must lie
// in [0.5, 1.0]; a non-positive limit uses the configured default. An empty
// result is a success with status no_matches.
func (f *Fetcher) FindSimilar(ctx context.Context, smiles string, threshold float64, limit int) ([]molecule.SimilarityMatch, error) {
	if err := checkSMILES(smiles); err != nil {
		return nil, err
	}
	if err := CheckThreshold(threshold); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = f.cfg.SimilarityLimit
	}
	seq, err := f.start(KindSimilar, smiles, func(e *entry) {
		e.similar = SimilarState{Status: StatusLoading, Threshold: threshold, Limit: limit}
	})
	if err != nil {
		return nil, err
	}
	start := time.Now()

	ctx, cancel := f.bind(ctx)
	defer cancel()
	matches, err := f.svc.SearchSimilar(ctx, smiles, threshold, limit)
	if err != nil {
		err := errors.Wrap(err, errors.ErrCodeEnrichmentFailed, "similarity search failed")
		if !f.apply(KindSimilar, smiles, seq, func(e *entry) {
			e.similar.Status = StatusFailed
			e.similar.Error = err.Message
			e.similar.Code = err.Code.String()
		}) {
			return nil, f.stale(KindSimilar, smiles, start)
		}
		f.log.Warn("similarity search failed", logging.String("smiles", smiles), logging.Err(err.Cause))
		f.metrics.ObserveEnrichment(KindSimilar, OutcomeFailed, time.Since(start))
		return nil, err
	}

	out := make([]molecule.SimilarityMatch, len(matches))
	copy(out, matches)
	status, outcome := StatusReady, OutcomeSuccess
	if len(out) == 0 {
		status, outcome = StatusNoMatches, OutcomeEmpty
	}
	if !f.apply(KindSimilar, smiles, seq, func(e *entry) {
		e.similar.Status = status
		e.similar.Matches = out
	}) {
		return nil, f.stale(KindSimilar, smiles, start)
	}
	f.metrics.ObserveEnrichment(KindSimilar, outcome, time.Since(start))

	result := make([]molecule.SimilarityMatch, len(out))
	copy(result, out)
	return result, nil
}

// FetchStructure returns the SDF text of smiles. When the backend cannot
// supply it the fixed placeholder ring is returned with Placeholder set and
// no error; only stale or closed calls return an error.
func (f *Fetcher) FetchStructure(ctx context.Context, smiles string) (Structure, error) {
	if err := checkSMILES(smiles); err != nil {
		return Structure{}, err
	}
	if sdf, ok := f.sdf.Get(smiles); ok {
		if f.touch(smiles, func(e *entry) { e.structure = StructureState{Status: StatusReady, SDF: sdf} }) {
			f.metrics.ObserveEnrichment(KindStructure, OutcomeCached, 0)
			return Structure{SMILES: smiles, SDF: sdf}, nil
		}
		return Structure{}, errClosed()
	}

	seq, err := f.start(KindStructure, smiles, func(e *entry) { e.structure = StructureState{Status: StatusLoading} })
	if err != nil {
		return Structure{}, err
	}
	start := time.Now()

	ctx, cancel := f.bind(ctx)
	defer cancel()
	sdf, err := f.svc.Structure(ctx, smiles)
	if err == nil && sdf == "" {
		err = errors.NotFound("empty structure payload")
	}
	if err != nil {
		placeholder := molecule.PlaceholderSDF(smiles)
		if !f.apply(KindStructure, smiles, seq, func(e *entry) {
			e.structure = StructureState{Status: StatusPlaceholder, SDF: placeholder, Error: errors.Message(err)}
		}) {
			return Structure{}, f.stale(KindStructure, smiles, start)
		}
		f.log.Warn("structure lookup failed, using placeholder", logging.String("smiles", smiles), logging.Err(err))
		f.metrics.ObserveEnrichment(KindStructure, OutcomePlaceholder, time.Since(start))
		return Structure{SMILES: smiles, SDF: placeholder, Placeholder: true}, nil
	}

	if !f.apply(KindStructure, smiles, seq, func(e *entry) {
		e.structure = StructureState{Status: StatusReady, SDF: sdf}
	}) {
		return Structure{}, f.stale(KindStructure, smiles, start)
	}
	f.sdf.Add(smiles, sdf)
	f.metrics.ObserveEnrichment(KindStructure, OutcomeSuccess, time.Since(start))
	return Structure{SMILES: smiles, SDF: sdf}, nil
}

// Snapshot returns a copy of every lookup state for smiles. Unknown smiles
// report all lookups idle.
func (f *Fetcher) Snapshot(smiles string) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[smiles]
	if !ok {
		e = newEntry()
	}
	snap := Snapshot{
		SMILES:     smiles,
		Properties: e.props,
		ADMET:      e.admet,
		Similar:    e.similar,
		Structure:  e.structure,
	}
	if e.props.Value != nil {
		v := *e.props.Value
		snap.Properties.Value = &v
	}
	if e.admet.Result != nil {
		r := *e.admet.Result
		r.Details.CYPInhibition = append([]string(nil), r.Details.CYPInhibition...)
		snap.ADMET.Result = &r
	}
	if e.similar.Matches != nil {
		snap.Similar.Matches = append([]molecule.SimilarityMatch(nil), e.similar.Matches...)
	}
	return snap
}

// Close discards all state and caches and cancels outstanding requests.
// Responses arriving afterwards are dropped. When the service is an Evicter
// the looked-up smiles are evicted from it too. Close is idempotent.
func (f *Fetcher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	smiles := make([]string, 0, len(f.entries))
	for s := range f.entries {
		smiles = append(smiles, s)
	}
	f.entries = map[string]*entry{}
	f.mu.Unlock()

	f.cancel()
	f.props.Purge()
	f.sdf.Purge()

	ev, ok := f.svc.(Evicter)
	if !ok || len(smiles) == 0 {
		return
	}
	sort.Strings(smiles)
	ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
	defer cancel()
	if err := ev.Evict(ctx, smiles...); err != nil {
		f.log.Warn("evicting shared results failed", logging.Int("smiles", len(smiles)), logging.Err(err))
	}
}

// Closed reports whether Close has been called.
func (f *Fetcher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// CheckThreshold validates a similarity threshold.
func CheckThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < molecule.MinSimilarityThreshold || threshold > molecule.MaxSimilarityThreshold {
		return errors.Newf(errors.ErrCodeSimilarityThresholdInvalid,
			"similarity threshold %.2f must be between %.1f and %.1f",
			threshold, molecule.MinSimilarityThreshold, molecule.MaxSimilarityThreshold)
	}
	return nil
}

func checkSMILES(smiles string) error {
	if smiles == "" {
		return errors.New(errors.ErrCodeMoleculeInvalidSMILES, "smiles is required")
	}
	return nil
}

func errClosed() error {
	return errors.New(errors.ErrCodeStaleResult, "enrichment view closed")
}

// start issues the next sequence number for (kind, smiles) and marks the
// entry under the lock.
func (f *Fetcher) start(kind Kind, smiles string, mark func(*entry)) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errClosed()
	}
	e := f.entryLocked(smiles)
	e.seq[kind]++
	mark(e)
	return e.seq[kind], nil
}

// apply runs write only if seq is still the latest issued for (kind, smiles).
func (f *Fetcher) apply(kind Kind, smiles string, seq uint64, write func(*entry)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	e, ok := f.entries[smiles]
	if !ok || e.seq[kind] != seq {
		return false
	}
	write(e)
	return true
}

// touch writes without taking a sequence number; used for cache hits.
func (f *Fetcher) touch(smiles string, write func(*entry)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	write(f.entryLocked(smiles))
	return true
}

func (f *Fetcher) entryLocked(smiles string) *entry {
	e, ok := f.entries[smiles]
	if !ok {
		e = newEntry()
		f.entries[smiles] = e
	}
	return e
}

func (f *Fetcher) stale(kind Kind, smiles string, start time.Time) error {
	f.log.Debug("enrichment result discarded",
		logging.String("kind", string(kind)), logging.String("smiles", smiles))
	f.metrics.ObserveEnrichment(kind, OutcomeStale, time.Since(start))
	if f.Closed() {
		return errClosed()
	}
	return errors.Newf(errors.ErrCodeStaleResult, "%s result for %s superseded by a newer call", kind, smiles)
}

// bind derives a context that is also cancelled when the fetcher closes.
func (f *Fetcher) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(f.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
