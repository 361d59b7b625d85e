package persistence

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

// Describe writes a human-readable summary of a state document.
func Describe(w io.Writer, state *explorer.State) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Artifacts captured:\t%d\n", state.ArtifactsCaptured)
	fmt.Fprintf(tw, "Decision depth:\t%d\n", len(state.DecisionStack))
	fmt.Fprintf(tw, "Frontier pages:\t%d\n", len(state.Frontier))

	fmt.Fprintln(tw, "\nDecision path:")
	if len(state.DecisionStack) == 0 {
		fmt.Fprintln(tw, "  (at root)")
	}
	for i, n := range state.DecisionStack {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", i, n.PageID, n.Candidate)
	}

	fmt.Fprintln(tw, "\nFrontier:")
	pages := make([]explorer.PageID, 0, len(state.Frontier))
	for id := range state.Frontier {
		pages = append(pages, id)
	}
	slices.Sort(pages)
	for _, id := range pages {
		q := state.Frontier[id]
		next := "(in progress, last candidate applied)"
		if len(q) > 0 {
			next = "next " + q[0].String()
		}
		fmt.Fprintf(tw, "  %s\t%d remaining\t%s\n", id, len(q), next)
	}
	return tw.Flush()
}
