// Package graph checks a batch of tasks for dependency cycles and orders them
// so that dependencies come first. It is used when a session is created; at
// runtime the store's per-task dependency check is authoritative.
package graph

import (
	"errors"
	"sort"

	"github.com/corralhq/corral/pkg/models"
)

// ErrCycle indicates a circular dependency within the batch.
var ErrCycle = errors.New("circular dependency detected")

// Graph is a directed dependency graph over one batch of tasks. Edges point
// from a task to the tasks it depends on. Dependencies on ids outside the
// batch are ignored; those are resolved against the store at claim time.
type Graph struct {
	nodes map[string]*models.Task
	edges map[string][]string
	order []string
}

// Build constructs a Graph from tasks, preserving input order for ties, and
// fails with ErrCycle if the batch depends on itself.
func Build(tasks []*models.Task) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]*models.Task, len(tasks)),
		edges: make(map[string][]string, len(tasks)),
	}
	for _, t := range tasks {
		g.nodes[t.ID] = t
		g.order = append(g.order, t.ID)
	}
	for _, t := range tasks {
		for _, depID := range t.DependsOn {
			if _, inBatch := g.nodes[depID]; inBatch {
				g.edges[t.ID] = append(g.edges[t.ID], depID)
			}
		}
	}

	if g.hasCycle() {
		return nil, ErrCycle
	}
	return g, nil
}

// hasCycle runs a depth-first search with coloring to find back edges.
func (g *Graph) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case gray:
				return true
			case white:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range g.order {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalOrder returns the task ids with every dependency before its
// dependents. Among unordered pairs the input order is kept, so a manifest's
// author-chosen ordering survives where the dependencies allow it.
func (g *Graph) TopologicalOrder() []string {
	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result
}

// Dependents returns the ids of tasks in the batch that depend on taskID,
// sorted.
func (g *Graph) Dependents(taskID string) []string {
	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	return len(g.nodes)
}
