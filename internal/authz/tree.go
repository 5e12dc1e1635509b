package authz

import (
	"fmt"
	"sort"
)

// CompanyKind distinguishes the structural node types of the hierarchy.
type CompanyKind string

const (
	CompanyCorp   CompanyKind = "CORP"
	CompanySub    CompanyKind = "SUB"
	CompanyBranch CompanyKind = "BRANCH"
)

// Company is the hierarchy node the engine operates on. ParentID is zero for
// corporate roots.
type Company struct {
	ID       int64
	Name     string
	Kind     CompanyKind
	ParentID int64
	Active   bool
}

// Snapshot is an immutable view of the company forest taken at one point in
// time. It carries a parent->children adjacency index so descendant
// expansion touches only the companies below the inputs, not the whole tree.
// Snapshots are never mutated after construction and are safe to share
// across requests.
type Snapshot struct {
	nodes    map[int64]Company
	children map[int64][]int64
}

// NewSnapshot indexes the given companies into a Snapshot. Children lists
// are kept sorted by id so traversal order is deterministic for a fixed
// snapshot.
func NewSnapshot(companies []Company) *Snapshot {
	s := &Snapshot{
		nodes:    make(map[int64]Company, len(companies)),
		children: make(map[int64][]int64),
	}
	for _, c := range companies {
		s.nodes[c.ID] = c
		if c.ParentID != 0 {
			s.children[c.ParentID] = append(s.children[c.ParentID], c.ID)
		}
	}
	for parent := range s.children {
		ids := s.children[parent]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return s
}

// Len returns the number of companies in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.nodes)
}

// Company looks up a node by id.
func (s *Snapshot) Company(id int64) (Company, bool) {
	c, ok := s.nodes[id]
	return c, ok
}

// Ancestors returns the parent chain of id, nearest parent first, ending at
// the root. A corporate root yields an empty chain. Revisiting a node while
// walking parents reports ErrCycleDetected: the stored data is corrupt and
// must not silently widen or loop.
func (s *Snapshot) Ancestors(id int64) ([]Company, error) {
	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownCompany, id)
	}
	seen := map[int64]struct{}{id: {}}
	var chain []Company
	for node.ParentID != 0 {
		parent, ok := s.nodes[node.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: id %d (parent of %d)", ErrUnknownCompany, node.ParentID, node.ID)
		}
		if _, dup := seen[parent.ID]; dup {
			return nil, fmt.Errorf("%w: via company %d", ErrCycleDetected, parent.ID)
		}
		seen[parent.ID] = struct{}{}
		chain = append(chain, parent)
		node = parent
	}
	return chain, nil
}

// Descendants returns every company whose ancestor chain includes id,
// regardless of depth. The result order is deterministic for a fixed
// snapshot.
func (s *Snapshot) Descendants(id int64) ([]Company, error) {
	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownCompany, id)
	}
	var out []Company
	seen := map[int64]struct{}{id: {}}
	stack := append([]int64(nil), s.children[id]...)
	for len(stack) > 0 {
		next := stack[0]
		stack = stack[1:]
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("%w: via company %d", ErrCycleDetected, next)
		}
		seen[next] = struct{}{}
		out = append(out, s.nodes[next])
		stack = append(stack, s.children[next]...)
	}
	return out, nil
}

// ExpandToDescendantIDs unions each input id with all of its descendants'
// ids, deduplicated. This is the closure operation the scope resolver feeds
// into document filters; expanding an already-expanded set is a no-op.
func (s *Snapshot) ExpandToDescendantIDs(ids []int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.nodes[id]; !ok {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownCompany, id)
		}
		if _, done := out[id]; done {
			continue
		}
		out[id] = struct{}{}
		descendants, err := s.Descendants(id)
		if err != nil {
			return nil, err
		}
		for _, d := range descendants {
			out[d.ID] = struct{}{}
		}
	}
	return out, nil
}

// ValidateParent checks that assigning parentID as the parent of id cannot
// create a cycle. It must be called on every parent assignment before the
// write is committed; nothing in the stored model prevents a company from
// becoming its own ancestor otherwise. id may be zero for a company that is
// not persisted yet, in which case only the parent's existence is checked.
func (s *Snapshot) ValidateParent(id, parentID int64) error {
	if parentID == 0 {
		return nil
	}
	if _, ok := s.nodes[parentID]; !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownCompany, parentID)
	}
	if id == 0 {
		return nil
	}
	if id == parentID {
		return fmt.Errorf("%w: company %d cannot be its own parent", ErrCycleDetected, id)
	}
	ancestors, err := s.Ancestors(parentID)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		if a.ID == id {
			return fmt.Errorf("%w: company %d is an ancestor of %d", ErrCycleDetected, id, parentID)
		}
	}
	return nil
}
