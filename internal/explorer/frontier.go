package explorer

import (
	"fmt"
	"slices"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
)

// Frontier maps each visited page instance to the candidates not yet tried
// there. Entries are keyed by InstanceKey.
//
// An entry whose queue has been emptied stays present until the next arrival
// at that page instance retires it. Until then the last candidate is still in
// progress and must not be regenerated.
type Frontier struct {
	queues map[PageID][]candidate.Candidate
}

// InstanceKey names the entry for the n-th occurrence of a page along one
// path. The first occurrence uses the page id itself.
func InstanceKey(id PageID, n int) PageID {
	if n <= 1 {
		return id
	}
	return PageID(fmt.Sprintf("%s#%d", id, n))
}

// NewFrontier returns an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{queues: make(map[PageID][]candidate.Candidate)}
}

// Ensure installs the generated candidate sequence for a page on its first
// visit. probe is only called when no entry exists.
func (f *Frontier) Ensure(id PageID, probe func() (candidate.Shape, error)) (bool, error) {
	if _, ok := f.queues[id]; ok {
		return false, nil
	}
	shape, err := probe()
	if err != nil {
		return false, fmt.Errorf("probe shape of %q: %w", id, err)
	}
	seq, err := candidate.Generate(shape)
	if err != nil {
		return false, fmt.Errorf("generate candidates for %q: %w", id, err)
	}
	f.install(id, seq)
	return true, nil
}

// Peek returns the next candidate for a page without consuming it. ok is
// false when the page is exhausted or absent.
func (f *Frontier) Peek(id PageID) (candidate.Candidate, bool) {
	q := f.queues[id]
	if len(q) == 0 {
		return candidate.Candidate{}, false
	}
	return q[0], true
}

// ConsumeHead removes and returns the next candidate for a page.
func (f *Frontier) ConsumeHead(id PageID) (candidate.Candidate, error) {
	q, ok := f.queues[id]
	if !ok || len(q) == 0 {
		return candidate.Candidate{}, fmt.Errorf("consume head of %q: %w", id, ErrExhausted)
	}
	f.queues[id] = q[1:]
	return q[0], nil
}

// Exhausted reports whether a page has nothing left to try. A page without an
// entry counts as exhausted.
func (f *Frontier) Exhausted(id PageID) bool {
	return len(f.queues[id]) == 0
}

// Has reports whether the page currently has an entry.
func (f *Frontier) Has(id PageID) bool {
	_, ok := f.queues[id]
	return ok
}

// Retire deletes a page's entry. A later visit starts a fresh queue.
func (f *Frontier) Retire(id PageID) {
	delete(f.queues, id)
}

// Remaining returns a copy of the candidates left for a page.
func (f *Frontier) Remaining(id PageID) []candidate.Candidate {
	q, ok := f.queues[id]
	if !ok {
		return nil
	}
	return append([]candidate.Candidate{}, q...)
}

// Pages lists the pages with an entry in sorted order.
func (f *Frontier) Pages() []PageID {
	pages := make([]PageID, 0, len(f.queues))
	for id := range f.queues {
		pages = append(pages, id)
	}
	slices.Sort(pages)
	return pages
}

// Len is the number of pages with an entry.
func (f *Frontier) Len() int {
	return len(f.queues)
}

// Queues copies the whole cache. Empty queues are kept as empty, non-nil slices.
func (f *Frontier) Queues() map[PageID][]candidate.Candidate {
	out := make(map[PageID][]candidate.Candidate, len(f.queues))
	for id, q := range f.queues {
		out[id] = append([]candidate.Candidate{}, q...)
	}
	return out
}

func (f *Frontier) install(id PageID, seq []candidate.Candidate) {
	f.queues[id] = append([]candidate.Candidate{}, seq...)
}
