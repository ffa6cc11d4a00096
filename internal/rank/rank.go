package rank

import (
	"sort"

	"github.com/ASKEROS1449/router-auto-connect/internal/probe"
)

// Score terms. A clean open response dominates any TLS-anomalous one:
// the 50-point gap is larger than anything the scheme and port terms
// can close, so unambiguous reachability always wins. Scheme and port
// only matter among equally confident results.
const (
	openScore    = 100
	anomalyScore = 50
	httpsBonus   = 10
)

// Weights carries the configurable port-priority table. Unlisted ports
// contribute nothing.
type Weights struct {
	Ports map[int]int
}

func DefaultWeights() Weights {
	return Weights{
		Ports: map[int]int{
			443:  3,
			8080: 2,
			8888: 1,
		},
	}
}

// Scored is a probe outcome plus its derived score. It exists only
// during ranking.
type Scored struct {
	probe.Outcome
	Score int
}

type Ranker struct {
	weights Weights
}

func NewRanker(w Weights) *Ranker {
	return &Ranker{weights: w}
}

// Rank filters reachable outcomes and orders them best-first. Closed
// outcomes are discarded. Ties keep the relative order the outcomes had
// in the candidate list, which the scan preserves.
func (r *Ranker) Rank(outcomes []probe.Outcome) []Scored {
	scored := make([]Scored, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Status == probe.StatusClosed {
			continue
		}
		scored = append(scored, Scored{Outcome: out, Score: r.score(out)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func (r *Ranker) score(out probe.Outcome) int {
	score := 0
	switch out.Status {
	case probe.StatusOpen:
		score += openScore
	case probe.StatusSSLAnomaly:
		score += anomalyScore
	}
	if out.Scheme == "https" {
		score += httpsBonus
	}
	score += r.weights.Ports[out.Port]
	return score
}
