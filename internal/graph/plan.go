package graph

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// ExecutionPlan is a dependency-respecting ordering of the graph's tasks.
type ExecutionPlan struct {
	// Order lists task IDs so every dependency precedes its dependents.
	Order []string
	// Groups partitions Order into levels that can run in parallel.
	Groups [][]string
}

// TotalTasks returns the number of tasks in the plan.
func (p *ExecutionPlan) TotalTasks() int {
	return len(p.Order)
}

// Plan computes a topological ordering of the graph along with parallel
// execution groups (all tasks in one group have their dependencies in
// earlier groups).
func (g *Graph) Plan() (*ExecutionPlan, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []toposort.Edge
	for id := range g.nodes {
		deps := g.edges[id]
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range deps {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		// AddTask validates acyclicity, so this only fires if the graph was
		// corrupted out of band.
		return nil, fmt.Errorf("topological sort: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, v := range sorted {
		if id, ok := v.(string); ok {
			order = append(order, id)
		}
	}

	// Level of a task is 1 + max level of its dependencies.
	levels := make(map[string]int, len(order))
	maxLevel := 0
	for _, id := range order {
		level := 0
		for _, depID := range g.edges[id] {
			if levels[depID]+1 > level {
				level = levels[depID] + 1
			}
		}
		levels[id] = level
		if level > maxLevel {
			maxLevel = level
		}
	}

	groups := make([][]string, maxLevel+1)
	for _, id := range order {
		groups[levels[id]] = append(groups[levels[id]], id)
	}

	return &ExecutionPlan{Order: order, Groups: groups}, nil
}
