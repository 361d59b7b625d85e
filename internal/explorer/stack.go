package explorer

import "github.com/xkilldash9x/quizwalk/internal/candidate"

// DecisionNode records the candidate applied on a page along the current path.
type DecisionNode struct {
	PageID    PageID              `json:"page_id"`
	Candidate candidate.Candidate `json:"candidate"`
}

// Stack is the root-to-frontier path of decisions. It mirrors the call stack
// of a recursive depth-first search.
type Stack struct {
	nodes []DecisionNode
}

// NewStack builds a stack holding a copy of nodes, bottom first.
func NewStack(nodes ...DecisionNode) *Stack {
	return &Stack{nodes: append([]DecisionNode(nil), nodes...)}
}

func (s *Stack) Push(id PageID, c candidate.Candidate) {
	s.nodes = append(s.nodes, DecisionNode{PageID: id, Candidate: c})
}

func (s *Stack) Pop() (DecisionNode, bool) {
	if len(s.nodes) == 0 {
		return DecisionNode{}, false
	}
	top := s.nodes[len(s.nodes)-1]
	s.nodes = s.nodes[:len(s.nodes)-1]
	return top, true
}

func (s *Stack) Top() (DecisionNode, bool) {
	if len(s.nodes) == 0 {
		return DecisionNode{}, false
	}
	return s.nodes[len(s.nodes)-1], true
}

// IsEmptyOrRoot reports whether nothing but the root decision is left.
func (s *Stack) IsEmptyOrRoot(root PageID) bool {
	switch len(s.nodes) {
	case 0:
		return true
	case 1:
		return s.nodes[0].PageID == root
	}
	return false
}

func (s *Stack) Len() int { return len(s.nodes) }

// Nodes returns a copy of the path, bottom first.
func (s *Stack) Nodes() []DecisionNode {
	return append([]DecisionNode{}, s.nodes...)
}
