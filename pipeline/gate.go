package pipeline

import "github.com/khaledhikmat/vs-belt/service/inference"

// Gate decides whether a primary result warrants the secondary stage.
// Exact label match and an inclusive threshold; every tick is judged on
// its own.
type Gate struct {
	Label     string
	Threshold float64
}

func (g Gate) Fires(res inference.Result) bool {
	return res.Label == g.Label && res.Confidence >= g.Threshold
}
