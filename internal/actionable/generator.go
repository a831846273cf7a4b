package actionable

import (
	"fmt"

	"call-insights-go/internal/aggregator"
	"call-insights-go/internal/rubric"
)

type ActionCard struct {
	Agent   string `json:"agent"`
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// Generate turns one agent's rollup into a coaching card.
func Generate(st aggregator.AgentStats) ActionCard {
	card := ActionCard{Agent: st.Agent}
	if st.Scored == 0 {
		card.Insight = fmt.Sprintf("No scored calls yet (%d unscored)", st.Calls)
		card.Action = "Submit calls with an x or y bucket to get a total score"
		card.Impact = "No immediate intervention"
		return card
	}

	scored := float64(st.Scored)
	bad := float64(st.Bands[rubric.BandBad]) / scored
	below := float64(st.Bands[rubric.BandBad]+st.Bands[rubric.BandAtRisk]) / scored
	excellent := float64(st.Bands[rubric.BandExcellent]) / scored

	switch {
	case bad >= 0.35:
		card.Insight = fmt.Sprintf("%.0f%% of scored calls are bad (avg %.1f)", bad*100, st.AverageScore)
		card.Action = "Review the lowest-scoring calls with a team lead; pair with a senior agent"
		card.Impact = "Stops repeated compliance and collection misses"
	case below >= 0.5:
		card.Insight = fmt.Sprintf("%.0f%% of scored calls fall below excellent (avg %.1f)", below*100, st.AverageScore)
		card.Action = "Targeted coaching on objection handling and urgency creation"
		card.Impact = "Moves at-risk calls into the excellent band"
	case excellent >= 0.7:
		card.Insight = fmt.Sprintf("%.0f%% of scored calls are excellent (avg %.1f)", excellent*100, st.AverageScore)
		card.Action = "Use this agent's calls as reference recordings for training"
		card.Impact = "Spreads working call patterns across the team"
	default:
		card.Insight = fmt.Sprintf("Mixed results across %d scored calls (avg %.1f)", st.Scored, st.AverageScore)
		card.Action = "Monitor and collect more data"
		card.Impact = "Low immediate intervention"
	}
	return card
}

// GenerateAll builds one card per agent, in rollup order.
func GenerateAll(ins aggregator.Insight) []ActionCard {
	cards := make([]ActionCard, 0, len(ins.Agents))
	for _, st := range ins.Agents {
		cards = append(cards, Generate(st))
	}
	return cards
}
