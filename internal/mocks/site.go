// File: internal/mocks/site.go
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

// -- Simulated Site --

// SitePage is one page of a simulated quiz.
type SitePage struct {
	ID    explorer.PageID
	Shape candidate.Shape
	// Next picks the page reached by moving forward after c was applied.
	// Returning "" means the continue button does nothing.
	Next func(c candidate.Candidate) explorer.PageID
	// Route replaces Next when set. It also sees the pages visited so far,
	// oldest first, so a page can lead somewhere else on a later visit.
	Route func(visited []explorer.PageID, c candidate.Candidate) explorer.PageID
	// Capture pages submit the quiz when a candidate is applied.
	Capture bool
}

// To returns a Next func that always leads to id.
func To(id explorer.PageID) func(candidate.Candidate) explorer.PageID {
	return func(candidate.Candidate) explorer.PageID { return id }
}

// Site is an in-memory page graph.
type Site struct {
	Root  explorer.PageID
	mu    sync.RWMutex
	pages map[explorer.PageID]SitePage
}

// NewSite builds a site whose Open lands on root.
func NewSite(root explorer.PageID, pages ...SitePage) *Site {
	s := &Site{Root: root, pages: make(map[explorer.PageID]SitePage, len(pages))}
	for _, p := range pages {
		s.pages[p.ID] = p
	}
	return s
}

// Replace swaps a page definition, simulating a layout change between runs.
func (s *Site) Replace(p SitePage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[p.ID] = p
}

// Page looks up a page definition.
func (s *Site) Page(id explorer.PageID) (SitePage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	return p, ok
}

// -- Simulated Driver --

type frame struct {
	page    explorer.PageID
	applied *candidate.Candidate
}

// SiteDriver implements explorer.PageDriver and explorer.ArtifactCounter over a Site.
// Submitting on a capture page increments the artifact counter and records the
// path that led there.
type SiteDriver struct {
	site *Site

	mu          sync.Mutex
	history     []frame
	artifacts   int
	submissions []string
	applied     []explorer.DecisionNode
	opens       int

	// StallForward swallows the given number of forward navigations per page.
	StallForward map[explorer.PageID]int
	// HangForward makes forward navigation block until its context ends.
	HangForward bool
	// BackBroken makes back navigation report no movement.
	BackBroken bool
	// ApplyErr is returned by every Apply when set.
	ApplyErr error
	// OnApply runs after each successful Apply, outside the driver lock.
	OnApply func(n explorer.DecisionNode)
}

// NewSiteDriver creates a driver whose artifact counter starts at seed.
func NewSiteDriver(site *Site, seed int) *SiteDriver {
	return &SiteDriver{site: site, artifacts: seed, StallForward: map[explorer.PageID]int{}}
}

func (d *SiteDriver) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = []frame{{page: d.site.Root}}
	d.opens++
	return nil
}

func (d *SiteDriver) CurrentPageID(ctx context.Context) (explorer.PageID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	top, err := d.top()
	if err != nil {
		return "", err
	}
	return top.page, nil
}

func (d *SiteDriver) ProbeShape(ctx context.Context) (candidate.Shape, error) {
	if err := ctx.Err(); err != nil {
		return candidate.Shape{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	top, err := d.top()
	if err != nil {
		return candidate.Shape{}, err
	}
	p, ok := d.site.Page(top.page)
	if !ok {
		return candidate.Shape{}, fmt.Errorf("no such page %q", top.page)
	}
	return p.Shape, nil
}

func (d *SiteDriver) Apply(ctx context.Context, c candidate.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.ApplyErr != nil {
		d.mu.Unlock()
		return d.ApplyErr
	}
	top, err := d.top()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	p, ok := d.site.Page(top.page)
	if !ok || !c.Fits(p.Shape) {
		d.mu.Unlock()
		return fmt.Errorf("candidate %s does not fit page %q", c, top.page)
	}
	applied := c
	d.history[len(d.history)-1].applied = &applied
	node := explorer.DecisionNode{PageID: top.page, Candidate: c}
	d.applied = append(d.applied, node)
	if p.Capture {
		d.artifacts++
		d.submissions = append(d.submissions, d.pathKey())
	}
	hook := d.OnApply
	d.mu.Unlock()

	if hook != nil {
		hook(node)
	}
	return nil
}

func (d *SiteDriver) NavigateForward(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if d.HangForward {
		<-ctx.Done()
		return false, ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	top, err := d.top()
	if err != nil {
		return false, err
	}
	if n := d.StallForward[top.page]; n > 0 {
		d.StallForward[top.page] = n - 1
		return false, nil
	}
	p, ok := d.site.Page(top.page)
	if !ok || top.applied == nil {
		return false, nil
	}
	var next explorer.PageID
	switch {
	case p.Route != nil:
		visited := make([]explorer.PageID, 0, len(d.history))
		for _, f := range d.history {
			visited = append(visited, f.page)
		}
		next = p.Route(visited, *top.applied)
	case p.Next != nil:
		next = p.Next(*top.applied)
	}
	if next == "" || next == top.page {
		return false, nil
	}
	d.history = append(d.history, frame{page: next})
	return true, nil
}

func (d *SiteDriver) NavigateBack(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.BackBroken || len(d.history) <= 1 {
		return false, nil
	}
	d.history = d.history[:len(d.history)-1]
	return true, nil
}

// ArtifactsCaptured implements explorer.ArtifactCounter.
func (d *SiteDriver) ArtifactsCaptured() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.artifacts
}

// Submissions lists the paths submitted on capture pages, in order.
func (d *SiteDriver) Submissions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.submissions...)
}

// Applied lists every candidate applied, in order.
func (d *SiteDriver) Applied() []explorer.DecisionNode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]explorer.DecisionNode(nil), d.applied...)
}

// Depth is the number of pages in the navigation history.
func (d *SiteDriver) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history)
}

// Opens counts calls to Open.
func (d *SiteDriver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *SiteDriver) top() (frame, error) {
	if len(d.history) == 0 {
		return frame{}, fmt.Errorf("session not opened")
	}
	return d.history[len(d.history)-1], nil
}

// pathKey renders the applied candidates along the current history.
func (d *SiteDriver) pathKey() string {
	parts := make([]string, 0, len(d.history))
	for _, f := range d.history {
		if f.applied == nil {
			continue
		}
		parts = append(parts, string(f.page)+"="+f.applied.String())
	}
	return strings.Join(parts, " > ")
}
