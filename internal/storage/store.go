package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/pitchsim/internal/experiment"
	"github.com/san-kum/pitchsim/internal/integrators"
	"github.com/san-kum/pitchsim/internal/metrics"
	"github.com/san-kum/pitchsim/internal/optim"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
)

// Kinds of saved runs.
const (
	KindRun      = "run"
	KindCampaign = "campaign"
	KindSweep    = "sweep"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
	overshootCSV = "overshoot.csv"
	settlingCSV  = "settling_time.csv"
)

var ErrNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata describes a saved run. Only the section matching Kind is set.
type RunMetadata struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Name      string         `json:"name,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Mode      string         `json:"mode"`
	Params    physics.Params `json:"params"`

	Response *metrics.Response  `json:"response,omitempty"`
	Solver   *integrators.Stats `json:"solver,omitempty"`

	Campaign *CampaignInfo `json:"campaign,omitempty"`
	Sweep    *SweepInfo    `json:"sweep,omitempty"`
}

type CampaignInfo struct {
	Perturbation float64                `json:"perturbation"`
	Seed         int64                  `json:"seed"`
	Requirement  experiment.Requirement `json:"requirement"`
	Stats        *experiment.Statistics `json:"stats"`
}

type SweepInfo struct {
	K    []float64   `json:"k"`
	C    []float64   `json:"c"`
	Best *optim.Cell `json:"best,omitempty"`
}

func (s *Store) newRun(kind, name string, p physics.Params) (RunMetadata, string, error) {
	id := kind + "_" + uuid.NewString()
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return RunMetadata{}, "", err
	}
	return RunMetadata{
		ID:        id,
		Kind:      kind,
		Name:      name,
		Timestamp: time.Now().UTC(),
		Mode:      p.ControlMode(),
		Params:    p,
	}, dir, nil
}

// SaveRun stores a single simulation with its response. A run directory is
// removed again when any of its files cannot be written.
func (s *Store) SaveRun(name string, result *sim.Result, resp metrics.Response) (id string, err error) {
	if err := result.Validate(); err != nil {
		return "", err
	}
	meta, dir, err := s.newRun(KindRun, name, result.Params)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()
	meta.Response = &resp
	stats := result.Stats
	meta.Solver = &stats

	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(dir, statesFile), result); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func (s *Store) SaveCampaign(name string, nominal physics.Params, frac float64, seed int64, req experiment.Requirement, stats *experiment.Statistics) (id string, err error) {
	meta, dir, err := s.newRun(KindCampaign, name, nominal)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()
	meta.Campaign = &CampaignInfo{
		Perturbation: frac,
		Seed:         seed,
		Requirement:  req,
		Stats:        stats,
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// SaveSweep stores the grid axes in the metadata and each matrix as a CSV
// with one row per c value.
func (s *Store) SaveSweep(name string, base physics.Params, g *optim.Grid, best *optim.Cell) (id string, err error) {
	meta, dir, err := s.newRun(KindSweep, name, base)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()
	meta.Sweep = &SweepInfo{K: g.K, C: g.C, Best: best}

	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeMatrix(filepath.Join(dir, overshootCSV), g.K, g.C, g.Overshoot.At); err != nil {
		return "", err
	}
	if err := writeMatrix(filepath.Join(dir, settlingCSV), g.K, g.C, g.SettlingTime.At); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// List returns the saved runs, oldest first. Unreadable entries are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadResult rebuilds the time history of a saved single run.
func (s *Store) LoadResult(runID string) (*sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	if meta.Kind != KindRun {
		return nil, fmt.Errorf("storage: %s is a %s, not a run", runID, meta.Kind)
	}

	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}

	result := &sim.Result{Params: meta.Params}
	if meta.Solver != nil {
		result.Stats = *meta.Solver
	}

	for i, record := range records {
		if i == 0 {
			continue
		}
		if len(record) != 5 {
			return nil, fmt.Errorf("storage: %s: row %d has %d fields", runID, i, len(record))
		}
		var row [5]float64
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s: row %d: %w", runID, i, err)
			}
			row[j] = v
		}
		result.Times = append(result.Times, row[0])
		result.Theta = append(result.Theta, row[1])
		result.Q = append(result.Q, row[2])
		result.EInt = append(result.EInt, row[3])
		result.ThetaCmd = append(result.ThetaCmd, row[4])
	}

	return result, nil
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

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeStates(path string, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"time", "theta", "q", "e_int", "theta_cmd"}); err != nil {
		return err
	}
	for i := range result.Times {
		row := []string{
			formatFloat(result.Times[i]),
			formatFloat(result.Theta[i]),
			formatFloat(result.Q[i]),
			formatFloat(result.EInt[i]),
			formatFloat(result.ThetaCmd[i]),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeMatrix(path string, ks, cs []float64, at func(i, j int) float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{"c\\k"}
	for _, k := range ks {
		header = append(header, formatFloat(k))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, c := range cs {
		row := []string{formatFloat(c)}
		for j := range ks {
			row = append(row, formatFloat(at(i, j)))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
