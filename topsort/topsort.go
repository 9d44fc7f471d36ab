// Package topsort orders named vertices so that every before/after
// constraint between them holds.
//
// A vertex V with Before: ["x"] must come before x; with After: ["y"] it must
// come after y. Names that are not part of the vertex set are ignored, so a
// vertex may mention optional peers that are absent. Vertices without a
// constraint between them keep their input order.
package topsort

import (
	"fmt"
	"slices"
)

// Vertex is a named value with ordering hints.
type Vertex[T any] struct {
	Name   string
	Before []string
	After  []string
	Value  T
}

// Sort returns the vertex values in an order satisfying every constraint.
// It fails with a *CycleError when the constraints are contradictory.
func Sort[T any](vertices []Vertex[T]) ([]T, error) {
	order, err := sortIndexes(vertices)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(order))
	for i, idx := range order {
		out[i] = vertices[idx].Value
	}
	return out, nil
}

// Names is Sort for callers that only need the resulting name order.
func Names[T any](vertices []Vertex[T]) ([]string, error) {
	order, err := sortIndexes(vertices)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = vertices[idx].Name
	}
	return out, nil
}

func sortIndexes[T any](vertices []Vertex[T]) ([]int, error) {
	index := make(map[string]int, len(vertices))
	for i, v := range vertices {
		if _, dup := index[v.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVertex, v.Name)
		}
		index[v.Name] = i
	}

	// edges[a] holds every b that a must precede
	edges := make([][]int, len(vertices))
	inDegree := make([]int, len(vertices))
	addEdge := func(from, to int) {
		if from == to || slices.Contains(edges[from], to) {
			return
		}
		edges[from] = append(edges[from], to)
		inDegree[to]++
	}
	for i, v := range vertices {
		for _, name := range v.Before {
			if j, ok := index[name]; ok {
				addEdge(i, j)
			}
		}
		for _, name := range v.After {
			if j, ok := index[name]; ok {
				addEdge(j, i)
			}
		}
	}

	// Kahn's algorithm, always releasing the earliest ready vertex so ties
	// keep discovery order.
	ready := make([]int, 0, len(vertices))
	for i := range vertices {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, len(vertices))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, to := range edges[next] {
			inDegree[to]--
			if inDegree[to] == 0 {
				pos, _ := slices.BinarySearch(ready, to)
				ready = slices.Insert(ready, pos, to)
			}
		}
	}

	if len(order) != len(vertices) {
		return nil, &CycleError{Cycle: findCycle(vertices, edges, inDegree)}
	}
	return order, nil
}

// findCycle walks the vertices left with a positive in-degree and returns
// one closed path through them, e.g. [a b a].
func findCycle[T any](vertices []Vertex[T], edges [][]int, inDegree []int) []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(vertices))
	var stack []int
	var cycle []string

	var visit func(int) bool
	visit = func(n int) bool {
		state[n] = onStack
		stack = append(stack, n)
		for _, to := range edges[n] {
			if inDegree[to] == 0 {
				continue
			}
			switch state[to] {
			case onStack:
				start := slices.Index(stack, to)
				for _, idx := range stack[start:] {
					cycle = append(cycle, vertices[idx].Name)
				}
				cycle = append(cycle, vertices[to].Name)
				return true
			case unvisited:
				if visit(to) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}

	for i := range vertices {
		if inDegree[i] > 0 && state[i] == unvisited {
			if visit(i) {
				return cycle
			}
		}
	}

	// Unreachable when the remaining subgraph is non-empty, but report the
	// stuck vertices rather than nothing.
	for i, v := range vertices {
		if inDegree[i] > 0 {
			cycle = append(cycle, v.Name)
		}
	}
	return cycle
}
