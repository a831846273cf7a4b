// Package aggregator rolls stored call summaries up per agent.
package aggregator

import (
	"sort"
	"time"

	"call-insights-go/internal/rubric"
	"call-insights-go/internal/types"
)

// Rubrics resolves the rubric a summary was scored with.
type Rubrics interface {
	Get(bucket string) (*rubric.Rubric, error)
}

type AgentStats struct {
	Agent        string              `json:"agent"`
	Calls        int                 `json:"calls"`
	Scored       int                 `json:"scored"`
	AverageScore float64             `json:"average_score"`
	Bands        map[rubric.Band]int `json:"bands"`
	LastCallAt   time.Time           `json:"last_call_at"`
}

type Insight struct {
	Agents []AgentStats        `json:"agents"`
	Bands  map[rubric.Band]int `json:"bands"`
	Calls  int                 `json:"calls"`
}

// Aggregate groups summaries by agent name. Only calls whose rubric carries a
// total contribute to the average; the rest are counted as unscored. A bucket
// that no longer resolves (e.g. after a rubric reload) is also unscored.
func Aggregate(summaries []types.CallSummary, rubrics Rubrics) Insight {
	byAgent := map[string]*AgentStats{}
	sums := map[string]float64{}
	overall := map[rubric.Band]int{}

	for _, s := range summaries {
		st, ok := byAgent[s.AgentName]
		if !ok {
			st = &AgentStats{Agent: s.AgentName, Bands: map[rubric.Band]int{}}
			byAgent[s.AgentName] = st
		}
		st.Calls++
		if s.CreatedAt.After(st.LastCallAt) {
			st.LastCallAt = s.CreatedAt
		}

		band := rubric.BandUnscored
		if s.TotalScore != nil {
			if r, err := rubrics.Get(s.Bucket); err == nil {
				band = r.Band(*s.TotalScore)
			}
		}
		if band != rubric.BandUnscored {
			st.Scored++
			sums[s.AgentName] += *s.TotalScore
		}
		st.Bands[band]++
		overall[band]++
	}

	agents := make([]AgentStats, 0, len(byAgent))
	for name, st := range byAgent {
		if st.Scored > 0 {
			st.AverageScore = sums[name] / float64(st.Scored)
		}
		agents = append(agents, *st)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Agent < agents[j].Agent })

	return Insight{Agents: agents, Bands: overall, Calls: len(summaries)}
}
