package action

import (
	"context"
	"slices"
	"sync"
)

// FilterFunc runs before or after the responder. A before filter returning
// a non-nil value preempts the rest of the lifecycle with that value.
type FilterFunc func(ctx context.Context, a Action, p *Params) (any, error)

// Filter is a named filter. Names deduplicate filters inherited from more
// than one level of a declaration chain; unnamed filters are never merged.
type Filter struct {
	Name string
	Run  FilterFunc
}

// Filters declares the filters of an action type. Parent links to the
// declaration the type extends, so a chain of Filters mirrors a chain of
// embedded action types. Declare one package-level *Filters per type: the
// flattened chain is computed once per declaration and reused.
type Filters struct {
	Parent *Filters
	Before []Filter
	After  []Filter
}

// Extend returns a child declaration of f.
func (f *Filters) Extend(before, after []Filter) *Filters {
	return &Filters{Parent: f, Before: before, After: after}
}

type chain struct {
	before []Filter
	after  []Filter
}

var chainCache sync.Map // *Filters -> *chain

// Chain returns the flattened before and after filters, ancestors first.
func (f *Filters) Chain() (before, after []Filter) {
	if f == nil {
		return nil, nil
	}
	if c, ok := chainCache.Load(f); ok {
		ch := c.(*chain)
		return ch.before, ch.after
	}

	var lineage []*Filters
	for cur := f; cur != nil; cur = cur.Parent {
		lineage = append(lineage, cur)
	}
	slices.Reverse(lineage)

	ch := &chain{}
	seenBefore := make(map[string]bool)
	seenAfter := make(map[string]bool)
	for _, decl := range lineage {
		ch.before = appendUnique(ch.before, decl.Before, seenBefore)
		ch.after = appendUnique(ch.after, decl.After, seenAfter)
	}

	actual, _ := chainCache.LoadOrStore(f, ch)
	ch = actual.(*chain)
	return ch.before, ch.after
}

func appendUnique(dst, src []Filter, seen map[string]bool) []Filter {
	for _, flt := range src {
		if flt.Run == nil {
			continue
		}
		if flt.Name != "" {
			if seen[flt.Name] {
				continue
			}
			seen[flt.Name] = true
		}
		dst = append(dst, flt)
	}
	return dst
}

func filtersOf(a Action) (before, after []Filter) {
	if d, ok := a.(FilterDeclarer); ok {
		return d.DeclaredFilters().Chain()
	}
	return nil, nil
}
