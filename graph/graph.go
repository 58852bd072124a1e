// Package graph orders named render passes.
//
// A Graph holds nodes registered under a Label and edges that constrain
// one node to run before another. Build resolves the graph once into a
// Plan, a linear execution order that is then run every frame.
package graph

import (
	"errors"
	"fmt"
	"slices"
)

// Label names a graph node.
type Label string

// Labels of the main 3D frame.
const (
	StartMainPass             Label = "start_main_pass"
	Sky                       Label = "sky"
	MainOpaquePass            Label = "main_opaque_pass"
	EndMainPass               Label = "end_main_pass"
	Tonemapping               Label = "tonemapping"
	Water                     Label = "water"
	EndMainPassPostProcessing Label = "end_main_pass_post_processing"
	Upscaling                 Label = "upscaling"
)

// Errors returned by Graph.
var (
	ErrDuplicateNode = errors.New("graph: duplicate node")
	ErrUnknownNode   = errors.New("graph: unknown node")
	ErrCycle         = errors.New("graph: cycle")
)

// RunFunc executes one node against the frame context.
type RunFunc[C any] func(ctx C) error

type node[C any] struct {
	label Label
	run   RunFunc[C]
}

type edge struct {
	before, after Label
}

// Graph collects nodes and ordering edges. It is not safe for
// concurrent use; build it once at startup.
type Graph[C any] struct {
	nodes []node[C]
	index map[Label]int
	edges []edge
	err   error
}

// New creates an empty graph.
func New[C any]() *Graph[C] {
	return &Graph[C]{index: make(map[Label]int)}
}

// AddNode registers a node. A nil run function makes the node a pure
// ordering marker. Errors are deferred to Build.
func (g *Graph[C]) AddNode(label Label, run RunFunc[C]) *Graph[C] {
	if _, ok := g.index[label]; ok {
		g.fail(fmt.Errorf("%w: %s", ErrDuplicateNode, label))
		return g
	}
	g.index[label] = len(g.nodes)
	g.nodes = append(g.nodes, node[C]{label: label, run: run})
	return g
}

// AddEdge requires before to run before after.
func (g *Graph[C]) AddEdge(before, after Label) *Graph[C] {
	g.edges = append(g.edges, edge{before: before, after: after})
	return g
}

// Chain adds edges between each consecutive pair of labels.
func (g *Graph[C]) Chain(labels ...Label) *Graph[C] {
	for i := 1; i < len(labels); i++ {
		g.AddEdge(labels[i-1], labels[i])
	}
	return g
}

func (g *Graph[C]) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

// Build resolves the graph into an execution order. Nodes without an
// ordering constraint between them keep their registration order.
func (g *Graph[C]) Build() (*Plan[C], error) {
	if g.err != nil {
		return nil, g.err
	}

	n := len(g.nodes)
	indegree := make([]int, n)
	succ := make([][]int, n)
	for _, e := range g.edges {
		from, ok := g.index[e.before]
		if !ok {
			return nil, fmt.Errorf("%w: %s (edge %s -> %s)", ErrUnknownNode, e.before, e.before, e.after)
		}
		to, ok := g.index[e.after]
		if !ok {
			return nil, fmt.Errorf("%w: %s (edge %s -> %s)", ErrUnknownNode, e.after, e.before, e.after)
		}
		if slices.Contains(succ[from], to) {
			continue
		}
		succ[from] = append(succ[from], to)
		indegree[to]++
	}

	// Kahn's algorithm; ready is kept sorted so ties resolve by
	// registration index.
	var ready []int
	for i := range n {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]node[C], 0, n)
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[cur])
		for _, next := range succ[cur] {
			indegree[next]--
			if indegree[next] == 0 {
				pos, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, pos, next)
			}
		}
	}
	if len(order) != n {
		var stuck []Label
		for i := range n {
			if indegree[i] > 0 {
				stuck = append(stuck, g.nodes[i].label)
			}
		}
		return nil, fmt.Errorf("%w among %v", ErrCycle, stuck)
	}
	return &Plan[C]{nodes: order}, nil
}

// Plan is a resolved execution order. It is immutable and may be run
// once per frame.
type Plan[C any] struct {
	nodes []node[C]
}

// Order returns the node labels in execution order.
func (p *Plan[C]) Order() []Label {
	out := make([]Label, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.label
	}
	return out
}

// Position returns a label's index in the execution order, or -1.
func (p *Plan[C]) Position(label Label) int {
	for i, n := range p.nodes {
		if n.label == label {
			return i
		}
	}
	return -1
}

// Run executes every node in order and stops at the first error.
func (p *Plan[C]) Run(ctx C) error {
	for _, n := range p.nodes {
		if n.run == nil {
			continue
		}
		if err := n.run(ctx); err != nil {
			return fmt.Errorf("graph node %s: %w", n.label, err)
		}
	}
	return nil
}
