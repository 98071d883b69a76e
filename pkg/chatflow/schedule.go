package chatflow

import "slices"

// schedule tracks readiness while a run drains its ready-queue.
//
// Every inbound edge of a node is eventually resolved, either live (its
// source ran and kept the edge) or dead (its source was pruned or did not
// select it). A node becomes ready once all inbound edges are resolved and
// at least one is live. A node is pruned instead when none is live, or when
// a branching node ran and selected none of its edges into it; pruning
// resolves the node's own outbound edges as dead, so joins downstream of a
// skipped branch are released rather than starved.
type schedule struct {
	plan      *plan
	remaining map[string]int
	live      map[string]bool
	vetoed    map[string]bool
	pruned    map[string]bool
	executed  map[string]bool
	queue     []string
}

func newSchedule(p *plan) *schedule {
	s := &schedule{
		plan:      p,
		remaining: make(map[string]int, len(p.incoming)),
		live:      make(map[string]bool),
		vetoed:    make(map[string]bool),
		pruned:    make(map[string]bool),
		executed:  make(map[string]bool),
	}
	for id, n := range p.incoming {
		s.remaining[id] = n
	}
	for _, id := range p.declared {
		if s.remaining[id] == 0 {
			s.queue = append(s.queue, id)
		}
	}
	return s
}

// next pops the ready-queue, skipping nodes that already ran.
func (s *schedule) next() (string, bool) {
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		if !s.executed[id] {
			return id, true
		}
	}
	return "", false
}

// peek returns the node that would run next, for cancellation reports.
func (s *schedule) peek() string {
	for _, id := range s.queue {
		if !s.executed[id] {
			return id
		}
	}
	return ""
}

func (s *schedule) pending() bool {
	return s.peek() != ""
}

// complete records that id ran and resolves its outbound edges. With
// declared false every edge is live; otherwise an edge is live when its
// source port or its id is among handles. It returns the number of nodes
// pruned as a consequence.
func (s *schedule) complete(id string, handles []string, declared bool) int {
	s.executed[id] = true

	edges := s.plan.outgoing[id]
	selected := make([]bool, len(edges))
	feeds := make(map[string]bool)
	for i, e := range edges {
		selected[i] = !declared || slices.Contains(handles, e.SourcePort) || slices.Contains(handles, e.ID)
		if selected[i] {
			feeds[e.Target] = true
		}
	}

	before := len(s.pruned)
	tail := len(s.queue)
	for i, e := range edges {
		s.resolve(e.Target, selected[i], !selected[i] && !feeds[e.Target])
	}
	// Nodes released together run in declaration order.
	slices.SortStableFunc(s.queue[tail:], func(a, b string) int {
		return s.plan.index[a] - s.plan.index[b]
	})
	return len(s.pruned) - before
}

func (s *schedule) resolve(target string, live, veto bool) {
	if s.pruned[target] || s.executed[target] {
		return
	}
	s.remaining[target]--
	if live {
		s.live[target] = true
	}
	if veto {
		s.vetoed[target] = true
	}
	if s.remaining[target] > 0 {
		return
	}
	if s.live[target] && !s.vetoed[target] {
		s.queue = append(s.queue, target)
		return
	}
	s.prune(target)
}

func (s *schedule) prune(id string) {
	s.pruned[id] = true
	for _, e := range s.plan.outgoing[id] {
		s.resolve(e.Target, false, false)
	}
}

// stranded returns nodes that neither ran nor were pruned, in declaration
// order.
func (s *schedule) stranded() []string {
	var out []string
	for _, id := range s.plan.declared {
		if !s.executed[id] && !s.pruned[id] {
			out = append(out, id)
		}
	}
	return out
}

// prunedNodes returns pruned nodes in declaration order.
func (s *schedule) prunedNodes() []string {
	var out []string
	for _, id := range s.plan.declared {
		if s.pruned[id] {
			out = append(out, id)
		}
	}
	return out
}
