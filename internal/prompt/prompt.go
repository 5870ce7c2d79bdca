// Package prompt renders retrieved memory facts into the system prompt.
// Everything here is pure and deterministic: the same ordered fact sequence
// always produces byte-identical output.
package prompt

import (
	"strings"

	"github.com/ent0n29/recall/internal/memory"
)

// NoKnownFacts is rendered when retrieval returned nothing, so the prompt is
// never ambiguous about whether memory lookup ran.
const NoKnownFacts = "no known facts"

const systemPreamble = "You are a helpful AI assistant with memory. " +
	"Answer the question based on the query and the user's memories."

// RenderFacts formats facts one per line in the order received from the
// memory store (relevance-ranked, best first).
func RenderFacts(facts []memory.Fact) string {
	if len(facts) == 0 {
		return NoKnownFacts
	}
	var b strings.Builder
	for i, f := range facts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(f.Text)
	}
	return b.String()
}

// BuildSystemPrompt assembles the augmented system instruction for one turn.
func BuildSystemPrompt(facts []memory.Fact) string {
	return systemPreamble + "\nUser memories:\n" + RenderFacts(facts)
}
