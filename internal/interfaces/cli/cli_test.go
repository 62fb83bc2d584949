package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-process generation service.
type fakeBackend struct {
	*httptest.Server
	generateCalls atomic.Int32
	admetCalls    atomic.Int32
	failADMET     bool
	noStructure   bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("POST /api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		fb.generateCalls.Add(1)
		var req struct {
			TargetDisease string `json:"target_disease"`
			NumMolecules  int    `json:"num_molecules"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeTestJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
			return
		}
		mols := make([]map[string]interface{}, req.NumMolecules)
		for i := range mols {
			mols[i] = map[string]interface{}{
				"name":             fmt.Sprintf("REMOTE-%03d", i+1),
				"smiles":           "CC(=O)Oc1ccccc1C(=O)O",
				"molecular_weight": 180.16,
				"logp":             1.19,
				"tpsa":             63.6,
				"binding_affinity": -7.5,
			}
		}
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "success",
			"target_disease": req.TargetDisease,
			"num_generated":  req.NumMolecules,
			"molecules":      mols,
		})
	})
	mux.HandleFunc("GET /api/v1/molecules/{smiles}/properties", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"hbd": 1, "hba": 4, "rotatable_bonds": 3, "qed": 0.55,
			"molecular_weight": 180.16, "logp": 1.19, "lipinski_violations": 0,
		})
	})
	mux.HandleFunc("GET /api/v1/molecules/{smiles}/sdf", func(w http.ResponseWriter, r *http.Request) {
		if fb.noStructure {
			writeTestJSON(w, http.StatusNotFound, map[string]string{"detail": "no conformer"})
			return
		}
		w.Header().Set("Content-Type", "chemical/x-mdl-sdfile")
		_, _ = w.Write([]byte(r.PathValue("smiles") + "\n  RDKit          3D\n\nM  END\n$$$$\n"))
	})
	mux.HandleFunc("POST /api/v1/molecules/search/similar", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"molecules": []map[string]interface{}{
				{"name": "Aspirin", "smiles": "CC(=O)Oc1ccccc1C(=O)O", "similarity": 0.95, "molecular_weight": 180.16, "logp": 1.19, "tpsa": 63.6},
				{"name": "Salicylic acid", "smiles": "OC(=O)c1ccccc1O", "similarity": 0.81, "molecular_weight": 138.12, "logp": 1.09, "tpsa": 57.5},
			},
		})
	})
	mux.HandleFunc("POST /api/v1/admet/predict", func(w http.ResponseWriter, r *http.Request) {
		fb.admetCalls.Add(1)
		if fb.failADMET {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"detail": "model unavailable"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"smiles": r.URL.Query().Get("smiles"), "absorption": 0.85, "distribution": 0.6,
			"metabolism": 0.5, "excretion": 0.7, "toxicity": 0.3, "overall_score": 0.66,
			"details": map[string]interface{}{
				"bioavailability": 0.8, "half_life": 4.5, "ld50": 1200,
				"cyp_inhibition": []string{"CYP2C9"}, "herg_inhibition": true,
			},
			"timestamp": "2024-05-01T12:00:00",
		})
	})

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func writeTestJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeTestConfig writes a config file with millisecond timings.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "molforge.yaml")
	content := `
backend:
  retry_max: 0
  probe_timeout: 500ms
generation:
  fallback_latency: 1ms
  banner_ttl: 1h
metrics:
  namespace: clitest
` + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCLI executes the root command and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
