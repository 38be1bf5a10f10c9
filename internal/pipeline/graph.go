package pipeline

import (
	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/refinery-cli/refinery/internal/config"
)

// Plan is the resolved execution order of a pipeline.
type Plan struct {
	// Ordered lists the stages in execution order: a topological sort
	// of the needs DAG with declaration order breaking ties.
	Ordered []*config.Stage

	// Levels groups the stages by dependency depth. Stages within one
	// level have no path between them and may run concurrently in
	// parallel mode. Levels preserve declaration order internally.
	Levels [][]*config.Stage
}

// Resolve builds the execution plan for a validated config. It fails
// on dependency cycles, which static validation cannot catch.
func Resolve(cfg *config.Config) (*Plan, error) {
	// Declaration index doubles as the tie-breaker for the stable sort.
	index := make(map[string]int, len(cfg.Stages))
	stages := make(map[string]*config.Stage, len(cfg.Stages))
	for i := range cfg.Stages {
		s := &cfg.Stages[i]
		index[s.Name] = i
		stages[s.Name] = s
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for i := range cfg.Stages {
		if err := g.AddVertex(cfg.Stages[i].Name); err != nil {
			return nil, errors.Wrapf(err, "adding stage %q", cfg.Stages[i].Name)
		}
	}
	for i := range cfg.Stages {
		s := &cfg.Stages[i]
		for _, dep := range s.Needs {
			if err := g.AddEdge(dep, s.Name); err != nil {
				if errors.Is(err, graph.ErrEdgeCreatesCycle) {
					return nil, errors.Errorf("dependency cycle involving stages %q and %q", dep, s.Name)
				}
				return nil, errors.Wrapf(err, "linking %q -> %q", dep, s.Name)
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return index[a] < index[b]
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolving stage order")
	}

	plan := &Plan{Ordered: make([]*config.Stage, 0, len(order))}
	for _, name := range order {
		plan.Ordered = append(plan.Ordered, stages[name])
	}

	// Dependency depth: one more than the deepest stage a stage needs.
	// Walking in topological order guarantees depths of all needs are
	// already known.
	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, s := range plan.Ordered {
		d := 0
		for _, dep := range s.Needs {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[s.Name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	plan.Levels = make([][]*config.Stage, maxDepth+1)
	for _, s := range plan.Ordered {
		d := depth[s.Name]
		plan.Levels[d] = append(plan.Levels[d], s)
	}

	return plan, nil
}
