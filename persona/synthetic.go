package persona

import (
	"fmt"

	"github.com/zuzya/try.idea-validator/core"
)

// SourceSynthetic marks personas produced by Synthetic.
const SourceSynthetic = "synthetic"

var archetypes = []core.Persona{
	{
		Name:       "Anna",
		Role:       "Operations manager",
		Archetype:  "Pragmatist",
		Background: "Runs a small team, buys tools only when they save measurable time.",
		Attitude:   "Curious",
	},
	{
		Name:       "Mark",
		Role:       "Freelance consultant",
		Archetype:  "Early adopter",
		Background: "Tries new products weekly and churns quickly when they disappoint.",
		Attitude:   "Enthusiastic",
	},
	{
		Name:       "Olga",
		Role:       "Chief accountant",
		Archetype:  "Conservative",
		Background: "Has used the same software for fifteen years and distrusts cloud services.",
		Attitude:   "Skeptical",
	},
	{
		Name:       "Ivan",
		Role:       "Department head",
		Archetype:  "Critic",
		Background: "Controls the budget and looks for the catch in every pitch.",
		Attitude:   "Critical",
	},
}

// Synthetic returns n deterministic personas cycling through a fixed set of
// archetypes. It is the recruiting fallback when the persona index fails.
func Synthetic(n int) []core.Persona {
	out := make([]core.Persona, 0, max(n, 0))
	for i := 0; i < n; i++ {
		p := archetypes[i%len(archetypes)]
		if i >= len(archetypes) {
			p.Name = fmt.Sprintf("%s %d", p.Name, i/len(archetypes)+1)
		}
		p.Source = SourceSynthetic
		out = append(out, p)
	}
	return out
}
