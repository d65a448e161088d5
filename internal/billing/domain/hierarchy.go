package billing

import "fmt"

// Hierarchy is the parent/child structure of one tenant's meters: an index by
// meter id plus a parent -> children adjacency, both in insertion order.
type Hierarchy struct {
	order    []string
	byID     map[string]Meter
	children map[string][]string
}

// NewHierarchy validates meters and builds the hierarchy.
func NewHierarchy(meters []Meter) (*Hierarchy, error) {
	h := &Hierarchy{
		order:    make([]string, 0, len(meters)),
		byID:     make(map[string]Meter, len(meters)),
		children: make(map[string][]string),
	}
	for _, m := range meters {
		if m.ID == "" {
			return nil, ErrEmptyMeterID
		}
		if _, ok := h.byID[m.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMeter, m.ID)
		}
		h.order = append(h.order, m.ID)
		h.byID[m.ID] = m
	}
	for _, id := range h.order {
		m := h.byID[id]
		if !m.IsChild() {
			continue
		}
		if m.ParentID == m.ID {
			return nil, fmt.Errorf("%w: meter %s is its own parent", ErrMeterCycle, m.ID)
		}
		parent, ok := h.byID[m.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: meter %s references %s", ErrUnknownParent, m.ID, m.ParentID)
		}
		if parent.TenantID != m.TenantID {
			return nil, fmt.Errorf("%w: meter %s (tenant %s) under %s (tenant %s)", ErrCrossTenantParent, m.ID, m.TenantID, parent.ID, parent.TenantID)
		}
		h.children[m.ParentID] = append(h.children[m.ParentID], m.ID)
	}
	if err := h.checkCycles(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hierarchy) checkCycles() error {
	// 0 = unvisited, 1 = on the current path, 2 = known to reach a root
	state := make(map[string]int, len(h.order))
	for _, id := range h.order {
		var path []string
		cur := id
		for cur != "" && state[cur] == 0 {
			state[cur] = 1
			path = append(path, cur)
			cur = h.byID[cur].ParentID
		}
		if cur != "" && state[cur] == 1 {
			return fmt.Errorf("%w: through meter %s", ErrMeterCycle, cur)
		}
		for _, visited := range path {
			state[visited] = 2
		}
	}
	return nil
}

// Meter returns the meter with the given id.
func (h *Hierarchy) Meter(id string) (Meter, bool) {
	m, ok := h.byID[id]
	return m, ok
}

// Meters returns all meters in insertion order.
func (h *Hierarchy) Meters() []Meter {
	result := make([]Meter, 0, len(h.order))
	for _, id := range h.order {
		result = append(result, h.byID[id])
	}
	return result
}

// Children returns the direct children of a meter in insertion order.
func (h *Hierarchy) Children(id string) []Meter {
	ids := h.children[id]
	result := make([]Meter, 0, len(ids))
	for _, childID := range ids {
		result = append(result, h.byID[childID])
	}
	return result
}

// HasChildren reports whether any meter deducts from id.
func (h *Hierarchy) HasChildren(id string) bool { return len(h.children[id]) > 0 }

// Billable returns meters that produce their own line item, in insertion order.
func (h *Hierarchy) Billable() []Meter {
	var result []Meter
	for _, id := range h.order {
		if m := h.byID[id]; m.Billable() {
			result = append(result, m)
		}
	}
	return result
}
