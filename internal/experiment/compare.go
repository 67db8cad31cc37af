package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/pitchsim/internal/physics"
)

// Scenario is a named nominal configuration.
type Scenario struct {
	Name   string
	Params physics.Params
}

type Outcome struct {
	Scenario Scenario
	Stats    *Statistics
}

// Compare runs the same campaign, seed included, for each scenario in turn.
func (c *Campaign) Compare(ctx context.Context, scenarios []Scenario, frac float64, trials int, req Requirement, seed int64) ([]Outcome, error) {
	out := make([]Outcome, 0, len(scenarios))
	for _, sc := range scenarios {
		stats, err := c.Run(ctx, sc.Params, frac, trials, req, seed)
		if err != nil {
			return nil, fmt.Errorf("experiment: scenario %q: %w", sc.Name, err)
		}
		out = append(out, Outcome{Scenario: sc, Stats: stats})
	}
	return out, nil
}
