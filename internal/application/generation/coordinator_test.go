package generation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/intelligence/synthesis"
	"github.com/turtacn/MolForge/internal/testutil"
	"github.com/turtacn/MolForge/pkg/errors"
)

func testConfig() Config {
	return Config{FallbackLatency: 20 * time.Millisecond, BannerTTL: 60 * time.Millisecond}
}

type countingOracle struct {
	calls int32
	inner synthesis.Oracle
}

func (o *countingOracle) Synthesize(d molecule.Disease, n int, c *molecule.Constraints) ([]molecule.Molecule, error) {
	atomic.AddInt32(&o.calls, 1)
	return o.inner.Synthesize(d, n, c)
}

func (o *countingOracle) Calls() int { return int(atomic.LoadInt32(&o.calls)) }

// fakeRemote answers from a function; when gate is non-nil each call blocks
// until a value is sent on it, ignoring ctx like an uncancellable request.
type fakeRemote struct {
	fn    func(req molecule.GenerationRequest) ([]molecule.Molecule, error)
	gate  chan struct{}
	calls int32
}

func (f *fakeRemote) Generate(ctx context.Context, req molecule.GenerationRequest) ([]molecule.Molecule, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	return f.fn(req)
}

func remoteBatch(n int, name string) func(molecule.GenerationRequest) ([]molecule.Molecule, error) {
	return func(req molecule.GenerationRequest) ([]molecule.Molecule, error) {
		out := make([]molecule.Molecule, n)
		for i := range out {
			out[i] = molecule.Molecule{Name: fmt.Sprintf("%s-%d", name, i), SMILES: "CCO", MolecularWeight: 46.07}
		}
		return out, nil
	}
}

func request(d molecule.Disease, n int) molecule.GenerationRequest {
	return molecule.GenerationRequest{TargetDisease: d, NumMolecules: n}
}

func TestSubmit_OracleEndToEnd(t *testing.T) {
	store := session.NewStore()
	c := NewCoordinator(store, synthesis.NewMock(), testConfig(), nil)
	assert.Equal(t, session.SourceOracle, c.Source())

	start := time.Now()
	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseHepatitisB, 20)))
	assert.GreaterOrEqual(t, time.Since(start), testConfig().FallbackLatency)

	st := store.Snapshot()
	assert.False(t, st.InFlight)
	require.Len(t, st.Molecules, 20)
	for _, m := range st.Molecules {
		assert.Equal(t, molecule.DiseaseHepatitisB, m.TargetDisease)
	}
	require.NotNil(t, st.Banner)
	assert.Equal(t, session.BannerSuccess, st.Banner.Kind)
	assert.Contains(t, st.Banner.Message, "20 molecules")

	assert.Eventually(t, func() bool { return store.Snapshot().Banner == nil },
		time.Second, 5*time.Millisecond, "success banner clears itself")
}

func TestSubmit_ValidationBeforeAnyWork(t *testing.T) {
	store := session.NewStore()
	oracle := &countingOracle{inner: synthesis.NewMock()}
	remote := &fakeRemote{fn: remoteBatch(10, "r")}

	for _, opts := range [][]Option{nil, {WithRemote(remote)}} {
		c := NewCoordinator(store, oracle, testConfig(), nil, opts...)
		for _, n := range []int{0, 9, 101} {
			err := c.Submit(context.Background(), request(molecule.DiseaseGLP1, n))
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		}
	}

	st := store.Snapshot()
	assert.Equal(t, uint64(0), st.Cycle)
	assert.Nil(t, st.Form)
	assert.False(t, st.InFlight)
	assert.Equal(t, 0, oracle.Calls())
	assert.Equal(t, int32(0), atomic.LoadInt32(&remote.calls))
}

func TestSubmit_RemoteCommitsExactlyN(t *testing.T) {
	for _, served := range []int{25, 40} {
		t.Run(fmt.Sprintf("served_%d", served), func(t *testing.T) {
			store := session.NewStore()
			remote := &fakeRemote{fn: remoteBatch(served, "r")}
			c := NewCoordinator(store, nil, testConfig(), nil, WithRemote(remote))

			require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseAlzheimers, 25)))

			st := store.Snapshot()
			require.Len(t, st.Molecules, 25)
			assert.Equal(t, session.SourceRemote, st.Source)
			ids := map[string]bool{}
			for _, m := range st.Molecules {
				assert.Equal(t, molecule.DiseaseAlzheimers, m.TargetDisease)
				assert.Len(t, m.ID, 36)
				assert.False(t, ids[m.ID])
				ids[m.ID] = true
			}
		})
	}
}

func TestSubmit_RemoteShortBatchFails(t *testing.T) {
	store := session.NewStore()
	c := NewCoordinator(store, nil, testConfig(), nil, WithRemote(&fakeRemote{fn: remoteBatch(5, "r")}))

	err := c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10))
	require.Error(t, err)
	assert.True(t, errors.IsGeneration(err))
	assert.Empty(t, store.Snapshot().Molecules)
}

func TestSubmit_RemoteFailureKeepsPreviousList(t *testing.T) {
	store := session.NewStore()
	fail := false
	remote := &fakeRemote{fn: func(req molecule.GenerationRequest) ([]molecule.Molecule, error) {
		if fail {
			return nil, fmt.Errorf("dial tcp 127.0.0.1:8000: connection refused")
		}
		return remoteBatch(req.NumMolecules, "ok")(req)
	}}
	log := testutil.NewMockLogger()
	c := NewCoordinator(store, nil, testConfig(), log, WithRemote(remote))

	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)))
	before := store.Snapshot().Molecules

	fail = true
	err := c.Submit(context.Background(), request(molecule.DiseaseGLP1, 30))
	require.Error(t, err)
	assert.True(t, errors.IsGeneration(err))

	st := store.Snapshot()
	assert.False(t, st.InFlight)
	assert.Equal(t, before, st.Molecules)
	require.NotNil(t, st.Banner)
	assert.Equal(t, session.BannerError, st.Banner.Kind)
	assert.Equal(t, "GEN_001", st.Banner.Code)
	assert.True(t, log.HasMessage("error", "generation cycle failed"))
}

func TestSubmit_OracleSupersession(t *testing.T) {
	store := session.NewStore()
	oracle := &countingOracle{inner: synthesis.NewMock()}
	cfg := testConfig()
	cfg.FallbackLatency = 80 * time.Millisecond
	c := NewCoordinator(store, oracle, cfg, nil)

	first := make(chan error, 1)
	go func() { first <- c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)) }()
	require.Eventually(t, func() bool { return store.Snapshot().Cycle == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseLongevity, 30)))

	err := <-first
	require.Error(t, err)
	assert.True(t, errors.IsSuperseded(err))

	st := store.Snapshot()
	require.Len(t, st.Molecules, 30)
	for _, m := range st.Molecules {
		assert.Equal(t, molecule.DiseaseLongevity, m.TargetDisease)
	}
	assert.Equal(t, 1, oracle.Calls(), "the superseded timer never fires")
}

func TestSubmit_RemoteSupersessionDiscardsLateResponse(t *testing.T) {
	store := session.NewStore()
	slow := &fakeRemote{fn: remoteBatch(10, "slow"), gate: make(chan struct{})}
	var current atomic.Value
	current.Store(slow)
	router := &routingRemote{pick: func() RemoteGenerator { return current.Load().(RemoteGenerator) }}
	c := NewCoordinator(store, nil, testConfig(), nil, WithRemote(router))

	first := make(chan error, 1)
	go func() { first <- c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&slow.calls) == 1 }, time.Second, time.Millisecond)

	fast := &fakeRemote{fn: remoteBatch(10, "fast")}
	current.Store(RemoteGenerator(fast))
	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)))

	close(slow.gate)
	err := <-first
	assert.True(t, errors.IsSuperseded(err))

	st := store.Snapshot()
	require.Len(t, st.Molecules, 10)
	assert.Equal(t, "fast-0", st.Molecules[0].Name)
	assert.False(t, st.InFlight)
}

type routingRemote struct {
	pick func() RemoteGenerator
}

func (r *routingRemote) Generate(ctx context.Context, req molecule.GenerationRequest) ([]molecule.Molecule, error) {
	return r.pick().Generate(ctx, req)
}

func TestSubmit_OracleFailuresBecomeOracleErrors(t *testing.T) {
	cases := map[string]synthesis.Oracle{
		"panic": synthesis.OracleFunc(func(molecule.Disease, int, *molecule.Constraints) ([]molecule.Molecule, error) {
			panic("division by zero in scoring")
		}),
		"error": synthesis.OracleFunc(func(molecule.Disease, int, *molecule.Constraints) ([]molecule.Molecule, error) {
			return nil, fmt.Errorf("scaffold table empty")
		}),
		"short": synthesis.OracleFunc(func(molecule.Disease, int, *molecule.Constraints) ([]molecule.Molecule, error) {
			return make([]molecule.Molecule, 3), nil
		}),
	}
	for name, oracle := range cases {
		t.Run(name, func(t *testing.T) {
			store := session.NewStore()
			c := NewCoordinator(store, oracle, testConfig(), nil)

			err := c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10))
			require.Error(t, err)
			assert.True(t, errors.IsOracle(err), "got %v", err)

			st := store.Snapshot()
			assert.False(t, st.InFlight)
			require.NotNil(t, st.Banner)
			assert.Equal(t, session.BannerError, st.Banner.Kind)
			assert.Equal(t, "GEN_002", st.Banner.Code)
		})
	}
}

func TestClose_CancelsPendingTimer(t *testing.T) {
	store := session.NewStore()
	oracle := &countingOracle{inner: synthesis.NewMock()}
	cfg := testConfig()
	cfg.FallbackLatency = 100 * time.Millisecond
	c := NewCoordinator(store, oracle, cfg, nil)

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)) }()
	require.Eventually(t, func() bool { return store.Snapshot().InFlight }, time.Second, time.Millisecond)

	c.Close()
	err := <-done
	assert.True(t, errors.IsCode(err, errors.ErrCodeGenerationClosed))
	assert.False(t, store.Snapshot().InFlight)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, oracle.Calls())

	err = c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10))
	assert.True(t, errors.IsCode(err, errors.ErrCodeGenerationClosed))
}

func TestSubmit_CallerCancellation(t *testing.T) {
	store := session.NewStore()
	cfg := testConfig()
	cfg.FallbackLatency = time.Second
	c := NewCoordinator(store, synthesis.NewMock(), cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Submit(ctx, request(molecule.DiseaseGLP1, 10))
	assert.True(t, errors.IsCode(err, errors.ErrCodeGenerationClosed))

	st := store.Snapshot()
	assert.False(t, st.InFlight)
	assert.Nil(t, st.Banner)
}

func TestSubmit_RemoteTimeout(t *testing.T) {
	store := session.NewStore()
	blocking := RemoteGeneratorFunc(func(ctx context.Context, _ molecule.GenerationRequest) ([]molecule.Molecule, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cfg := testConfig()
	cfg.RemoteTimeout = 20 * time.Millisecond
	c := NewCoordinator(store, nil, cfg, nil, WithRemote(blocking))

	err := c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10))
	assert.True(t, errors.IsGeneration(err))
	assert.False(t, store.Snapshot().InFlight)
}

func TestRetry(t *testing.T) {
	store := session.NewStore()
	var fail atomic.Bool
	fail.Store(true)
	remote := RemoteGeneratorFunc(func(_ context.Context, req molecule.GenerationRequest) ([]molecule.Molecule, error) {
		if fail.Load() {
			return nil, fmt.Errorf("503")
		}
		return remoteBatch(req.NumMolecules, "retry")(req)
	})
	c := NewCoordinator(store, nil, testConfig(), nil, WithRemote(remote))

	err := c.Retry(context.Background())
	assert.True(t, errors.IsValidation(err))

	require.Error(t, c.Submit(context.Background(), request(molecule.DiseaseHairLoss, 40)))
	fail.Store(false)
	require.NoError(t, c.Retry(context.Background()))

	st := store.Snapshot()
	assert.Len(t, st.Molecules, 40)
	assert.Equal(t, molecule.DiseaseHairLoss, st.Molecules[0].TargetDisease)
}

func TestDismissBanner(t *testing.T) {
	store := session.NewStore()
	c := NewCoordinator(store, nil, testConfig(), nil,
		WithRemote(RemoteGeneratorFunc(func(context.Context, molecule.GenerationRequest) ([]molecule.Molecule, error) {
			return nil, fmt.Errorf("down")
		})))

	_ = c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10))
	require.NotNil(t, store.Snapshot().Banner)
	assert.True(t, c.DismissBanner())
	assert.Nil(t, store.Snapshot().Banner)
}

func TestReset_ClearsSession(t *testing.T) {
	store := session.NewStore()
	c := NewCoordinator(store, synthesis.NewMock(), testConfig(), nil)
	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)))

	c.Reset()
	st := store.Snapshot()
	assert.Empty(t, st.Molecules)
	assert.Nil(t, st.Banner)
	assert.Nil(t, st.Form)
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) ObserveCycle(_ session.Source, outcome string, _ time.Duration) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, outcome)
	m.mu.Unlock()
}

func TestMetrics_Outcomes(t *testing.T) {
	metrics := &recordingMetrics{}
	store := session.NewStore()
	c := NewCoordinator(store, synthesis.NewMock(), testConfig(), nil, WithMetrics(metrics))

	_ = c.Submit(context.Background(), request(molecule.DiseaseGLP1, 1))
	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{OutcomeInvalid, OutcomeSuccess}, metrics.outcomes)
}

func TestStamp_FreshIDsEveryCycle(t *testing.T) {
	store := session.NewStore()
	dup := synthesis.OracleFunc(func(d molecule.Disease, n int, _ *molecule.Constraints) ([]molecule.Molecule, error) {
		out := make([]molecule.Molecule, n)
		for i := range out {
			out[i] = molecule.Molecule{ID: "same", SMILES: "C"}
		}
		out[0].ID = "first"
		return out, nil
	})
	var seq int32
	c := NewCoordinator(store, dup, testConfig(), nil,
		WithIDGenerator(func() string { return fmt.Sprintf("gen-%d", atomic.AddInt32(&seq, 1)) }))

	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)))
	st := store.Snapshot()
	assert.Equal(t, "gen-1", st.Molecules[0].ID)
	assert.Equal(t, "gen-10", st.Molecules[9].ID)

	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseGLP1, 10)))
	st = store.Snapshot()
	assert.Equal(t, "gen-11", st.Molecules[0].ID)
}

func TestStamp_RepeatedMockBatchGetsNewIDs(t *testing.T) {
	store := session.NewStore()
	c := NewCoordinator(store, synthesis.NewMock(), testConfig(), nil)

	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseHepatitisB, 10)))
	first := store.Snapshot().Molecules
	require.NoError(t, c.Submit(context.Background(), request(molecule.DiseaseHepatitisB, 10)))
	second := store.Snapshot().Molecules

	require.Len(t, second, len(first))
	ids := map[string]bool{}
	for i := range first {
		assert.Equal(t, first[i].SMILES, second[i].SMILES, "the oracle is deterministic")
		ids[first[i].ID] = true
	}
	for _, m := range second {
		assert.False(t, ids[m.ID], "id %s reused across batches", m.ID)
		assert.NotContains(t, m.ID, "mock-")
	}
}
