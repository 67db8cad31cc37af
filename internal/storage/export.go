package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/pitchsim/internal/sim"
)

// ExportData is the self-contained JSON form of a saved run.
type ExportData struct {
	Meta     RunMetadata `json:"meta"`
	Steps    int         `json:"steps"`
	Times    []float64   `json:"times,omitempty"`
	Theta    []float64   `json:"theta,omitempty"`
	Q        []float64   `json:"q,omitempty"`
	EInt     []float64   `json:"e_int,omitempty"`
	ThetaCmd []float64   `json:"theta_cmd,omitempty"`
}

// ExportJSON writes runID to w. Time histories are included for single
// runs only.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}

	data := ExportData{Meta: *meta}
	if meta.Kind == KindRun {
		var result *sim.Result
		if result, err = s.LoadResult(runID); err != nil {
			return err
		}
		data.Steps = result.Len()
		data.Times = result.Times
		data.Theta = result.Theta
		data.Q = result.Q
		data.EInt = result.EInt
		data.ThetaCmd = result.ThetaCmd
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
