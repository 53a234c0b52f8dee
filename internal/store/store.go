// Package store persists study results as JSON run directories and exports
// them for downstream tooling.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/mdsolve/internal/study"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata summarizes one stored run.
type RunMetadata struct {
	ID         string    `json:"id"`
	Study      string    `json:"study"`
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	Converged  bool      `json:"converged"`
	Iterations int       `json:"iterations"`
	Objective  float64   `json:"objective"`
}

// Save writes a run directory holding metadata.json and result.json and
// returns the run id.
func (s *Store) Save(res *study.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", res.Study, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Study:      res.Study,
		Kind:       res.Kind,
		Timestamp:  time.Now(),
		Converged:  res.Converged,
		Iterations: res.Iterations,
		Objective:  res.Objective,
	}
	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "result.json"), res); err != nil {
		return "", err
	}
	return runID, nil
}

// Load reads a stored run's full result.
func (s *Store) Load(runID string) (*study.Result, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "result.json"))
	if err != nil {
		return nil, err
	}
	var res study.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &res, nil
}

// List returns the metadata of all stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, e.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

// ExportJSON writes a result to a file as indented JSON.
func ExportJSON(path string, res *study.Result) error {
	return writeJSON(path, res)
}

// ExportJSONStdout writes a result to stdout as indented JSON.
func ExportJSONStdout(res *study.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeJSON(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
