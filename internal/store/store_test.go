package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/mdsolve/internal/core"
	"github.com/san-kum/mdsolve/internal/study"
)

func sampleResult() *study.Result {
	return &study.Result{
		Study:       "twodisc",
		Kind:        study.KindSolve,
		Converged:   true,
		Iterations:  3,
		Values:      core.Values{"y21": {2.0 / 3}, "y12": {4.0 / 3}},
		Residuals:   []float64{1.2, 0.03, 1e-9},
		Evaluations: map[string]int{"Disc1": 4, "Disc2": 4},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(sampleResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	res, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if res.Study != "twodisc" || !res.Converged || res.Iterations != 3 {
		t.Errorf("loaded result differs: %+v", res)
	}
	if res.Values["y21"][0] != 2.0/3 {
		t.Errorf("y21 = %v, want 2/3", res.Values["y21"])
	}
	if len(res.Residuals) != 3 {
		t.Errorf("residuals = %v, want 3 entries", res.Residuals)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if _, err := st.Save(sampleResult()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Study != "twodisc" || !runs[0].Converged {
		t.Errorf("metadata differs: %+v", runs[0])
	}
}

func TestStoreFileStructure(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(sampleResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(dir, runID)
	if _, err := os.Stat(filepath.Join(runDir, "metadata.json")); os.IsNotExist(err) {
		t.Error("metadata.json not created")
	}
	if _, err := os.Stat(filepath.Join(runDir, "result.json")); os.IsNotExist(err) {
		t.Error("result.json not created")
	}
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := ExportJSON(path, sampleResult()); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("export produced no data: %v", err)
	}
}
