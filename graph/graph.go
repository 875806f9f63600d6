// Package graph runs small sequential state machines. Step nodes mutate a
// shared state, condition nodes pick the outgoing edge, and execution stops
// at the end node. There is no fan-out: exactly one node runs at a time.
package graph

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/ai-factcheck/pkg/telemetry"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeStep      NodeType = "step"
	NodeTypeCondition NodeType = "condition"
	NodeTypeEnd       NodeType = "end"
)

// ErrMaxVisits is returned when a node is entered more often than allowed.
var ErrMaxVisits = errors.New("graph: node visit limit exceeded")

// NodeFunc is the function executed by a node
type NodeFunc[S any] func(context.Context, S) error

// ConditionFunc evaluates a condition and returns the branch label to follow
type ConditionFunc[S any] func(context.Context, S) (string, error)

// Node represents a node in the execution graph
type Node[S any] struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc[S]
	Condition ConditionFunc[S] // only for condition nodes
	Next      string           // outgoing edge for start and step nodes
	Branches  map[string]string
}

// Graph represents an execution flow graph over state S
type Graph[S any] struct {
	name      string
	nodes     map[string]*Node[S]
	start     string
	end       string
	maxVisits int
}

// Visits records how many times each node ran during one execution.
type Visits map[string]int

// Run executes the graph from the start node until the end node finishes.
// Each node runs inside its own span.
func (g *Graph[S]) Run(ctx context.Context, state S) (Visits, error) {
	visits := make(Visits, len(g.nodes))
	current := g.start
	for {
		if err := ctx.Err(); err != nil {
			return visits, err
		}
		node, ok := g.nodes[current]
		if !ok {
			return visits, fmt.Errorf("graph %s: node %s not found", g.name, current)
		}
		visits[current]++
		if visits[current] > g.maxVisits {
			return visits, fmt.Errorf("%w: %s entered %d times", ErrMaxVisits, current, visits[current])
		}

		next, err := g.step(ctx, node, state, visits[current])
		if err != nil {
			return visits, err
		}
		if node.Type == NodeTypeEnd {
			return visits, nil
		}
		current = next
	}
}

func (g *Graph[S]) step(ctx context.Context, node *Node[S], state S, visit int) (next string, err error) {
	ctx, span := telemetry.Start(ctx, g.name+"."+node.Name,
		attribute.String("node_type", string(node.Type)),
		attribute.Int("visit", visit),
	)
	defer func() { telemetry.End(span, err) }()

	if node.Type == NodeTypeCondition {
		branch, err := node.Condition(ctx, state)
		if err != nil {
			return "", fmt.Errorf("evaluate condition %s: %w", node.Name, err)
		}
		next, ok := node.Branches[branch]
		if !ok {
			return "", fmt.Errorf("condition %s returned unknown branch %q", node.Name, branch)
		}
		span.SetAttributes(attribute.String("branch", branch))
		return next, nil
	}
	if node.Execute != nil {
		if err := node.Execute(ctx, state); err != nil {
			return "", fmt.Errorf("%s: %w", node.Name, err)
		}
	}
	return node.Next, nil
}

// Node returns a node by name
func (g *Graph[S]) Node(name string) (*Node[S], bool) {
	node, ok := g.nodes[name]
	return node, ok
}

// Builder helps build graphs fluently. Definition errors are collected and
// reported by Build.
type Builder[S any] struct {
	graph *Graph[S]
	errs  []error
}

// NewBuilder creates a new graph builder
func NewBuilder[S any](name string) *Builder[S] {
	return &Builder[S]{
		graph: &Graph[S]{
			name:      name,
			nodes:     make(map[string]*Node[S]),
			maxVisits: 10,
		},
	}
}

func (b *Builder[S]) add(node *Node[S]) *Builder[S] {
	if node.Name == "" {
		b.errs = append(b.errs, errors.New("node name cannot be empty"))
		return b
	}
	if _, exists := b.graph.nodes[node.Name]; exists {
		b.errs = append(b.errs, fmt.Errorf("node %s already exists", node.Name))
		return b
	}
	b.graph.nodes[node.Name] = node
	switch node.Type {
	case NodeTypeStart:
		b.graph.start = node.Name
	case NodeTypeEnd:
		b.graph.end = node.Name
	}
	return b
}

// Start adds the start node.
func (b *Builder[S]) Start(name string, fn NodeFunc[S]) *Builder[S] {
	return b.add(&Node[S]{Name: name, Type: NodeTypeStart, Execute: fn})
}

// Step adds a step node.
func (b *Builder[S]) Step(name string, fn NodeFunc[S]) *Builder[S] {
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("step %s must have an Execute function", name))
		return b
	}
	return b.add(&Node[S]{Name: name, Type: NodeTypeStep, Execute: fn})
}

// Condition adds a condition node mapping branch labels to node names.
func (b *Builder[S]) Condition(name string, fn ConditionFunc[S], branches map[string]string) *Builder[S] {
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("condition %s must have a Condition function", name))
		return b
	}
	return b.add(&Node[S]{Name: name, Type: NodeTypeCondition, Condition: fn, Branches: branches})
}

// End adds the end node. fn may be nil.
func (b *Builder[S]) End(name string, fn NodeFunc[S]) *Builder[S] {
	return b.add(&Node[S]{Name: name, Type: NodeTypeEnd, Execute: fn})
}

// Edge connects a start or step node to its successor.
func (b *Builder[S]) Edge(from, to string) *Builder[S] {
	node, ok := b.graph.nodes[from]
	switch {
	case !ok:
		b.errs = append(b.errs, fmt.Errorf("edge from unknown node %s", from))
	case node.Type == NodeTypeCondition || node.Type == NodeTypeEnd:
		b.errs = append(b.errs, fmt.Errorf("node %s of type %s cannot have a plain edge", from, node.Type))
	case node.Next != "":
		b.errs = append(b.errs, fmt.Errorf("node %s already has an edge to %s", from, node.Next))
	default:
		node.Next = to
	}
	return b
}

// MaxVisits bounds how often a single node may run.
func (b *Builder[S]) MaxVisits(n int) *Builder[S] {
	if n > 0 {
		b.graph.maxVisits = n
	}
	return b
}

// Build validates the definition and returns the graph.
func (b *Builder[S]) Build() (*Graph[S], error) {
	g := b.graph
	errs := append([]error(nil), b.errs...)
	if g.start == "" {
		errs = append(errs, errors.New("start node not set"))
	}
	if g.end == "" {
		errs = append(errs, errors.New("end node not set"))
	}
	for name, node := range g.nodes {
		switch node.Type {
		case NodeTypeCondition:
			if len(node.Branches) == 0 {
				errs = append(errs, fmt.Errorf("condition %s has no branches", name))
			}
			for label, target := range node.Branches {
				if _, ok := g.nodes[target]; !ok {
					errs = append(errs, fmt.Errorf("condition %s branch %q targets unknown node %s", name, label, target))
				}
			}
		case NodeTypeEnd:
		default:
			if node.Next == "" {
				errs = append(errs, fmt.Errorf("node %s has no outgoing edge", name))
			} else if _, ok := g.nodes[node.Next]; !ok {
				errs = append(errs, fmt.Errorf("node %s links to unknown node %s", name, node.Next))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("graph %s: %w", g.name, err)
	}
	return g, nil
}
