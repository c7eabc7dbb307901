// Package explain reconstructs how a stored metric was derived.
//
// Starting from one metric instance, it loads the stored version at the
// requested point in time and walks the registry's input edges, loading each
// input at the parent's calculated_at. Absent records and absent domain
// entities are recorded on the node instead of aborting the walk. Nothing is
// written.
package explain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// DefaultMaxDepth bounds the walk when the caller passes zero.
const DefaultMaxDepth = 8

// Error kinds recorded on a Node.
const (
	ErrorMissingMetric        = "MissingMetric"
	ErrorMissingDependency    = "MissingDependency"
	ErrorMissingConfiguration = "MissingConfiguration"
)

// Node is one metric instance in an explain tree.
type Node struct {
	Kind         types.MetricKind `json:"kind"`
	Key          string           `json:"key"`
	Value        *float64         `json:"value,omitempty"`
	StdDev       *float64         `json:"stddev,omitempty"`
	CalculatedAt *time.Time       `json:"calculatedAt,omitempty"`
	Inputs       map[string]any   `json:"inputs,omitempty"`
	Params       map[string]any   `json:"params,omitempty"`
	Children     []*Node          `json:"children,omitempty"`
	ErrorKind    string           `json:"errorKind,omitempty"`
	Error        string           `json:"error,omitempty"`
	// Truncated is set when the depth bound stopped the walk here.
	Truncated bool `json:"truncated,omitempty"`
}

// Explainer builds explain trees.
type Explainer struct {
	reg      *registry.Registry
	env      *registry.Env
	maxDepth int
}

// New creates an Explainer. A non-positive maxDepth uses DefaultMaxDepth.
func New(reg *registry.Registry, env *registry.Env, maxDepth int) *Explainer {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Explainer{reg: reg, env: env, maxDepth: maxDepth}
}

// Explain returns the tree rooted at kind/key as of asOf (latest when nil).
// Store failures other than a missing record abort the walk.
func (e *Explainer) Explain(ctx context.Context, kind types.MetricKind, key types.EntityKey, asOf *time.Time) (*Node, error) {
	job := types.NewJob(kind, key)
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if _, ok := e.reg.Definition(kind); !ok {
		return nil, fmt.Errorf("explain: unknown kind %q", kind)
	}
	return e.node(ctx, job, asOf, 0)
}

func (e *Explainer) node(ctx context.Context, job types.CalculationJob, asOf *time.Time, depth int) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := &Node{Kind: job.Kind, Key: job.Key.Format(job.Kind.Shape())}

	childAsOf := asOf
	rec, err := e.env.Metrics.Load(ctx, job.Kind, job.Key, asOf)
	switch {
	case err == nil:
		n.Value = &rec.Value
		n.StdDev = rec.StdDev
		at := rec.CalculatedAt
		n.CalculatedAt = &at
		n.Inputs = rec.Inputs
		n.Params = rec.Params
		childAsOf = &at
	case !n.record(err):
		return nil, fmt.Errorf("explain %s: %w", job, err)
	}

	if depth >= e.maxDepth {
		n.Truncated = true
		return n, nil
	}

	inputs, err := e.inputs(ctx, job, childAsOf)
	if err != nil {
		if !n.record(err) {
			return nil, fmt.Errorf("explain inputs of %s: %w", job, err)
		}
		return n, nil
	}
	for _, in := range inputs {
		child, err := e.node(ctx, in, childAsOf, depth+1)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// inputs lists job's inputs resolved to the owning tenant's variants.
func (e *Explainer) inputs(ctx context.Context, job types.CalculationJob, asOf *time.Time) ([]types.CalculationJob, error) {
	canonical, err := e.reg.Inputs(ctx, e.env, job)
	if err != nil || len(canonical) == 0 {
		return nil, err
	}
	tenant, err := e.reg.Tenant(ctx, e.env, job)
	if err != nil {
		return nil, err
	}
	view := e.reg.NewInputs(e.env, job, registry.Resolution{Kind: job.Kind, TenantID: tenant}, asOf, nil)
	return view.ResolveJobs(ctx, canonical)
}

// record notes a recoverable error on n and reports whether it was one.
func (n *Node) record(err error) bool {
	switch {
	case errors.Is(err, types.ErrMissingMetric):
		n.ErrorKind = ErrorMissingMetric
	case errors.Is(err, types.ErrMissingDependency):
		n.ErrorKind = ErrorMissingDependency
	case errors.Is(err, types.ErrMissingConfiguration):
		n.ErrorKind = ErrorMissingConfiguration
	default:
		return false
	}
	n.Error = err.Error()
	return true
}

// Walk visits n and its descendants depth first.
func (n *Node) Walk(fn func(n *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Errors returns every node carrying a recorded error.
func (n *Node) Errors() []*Node {
	var out []*Node
	n.Walk(func(c *Node, _ int) {
		if c.ErrorKind != "" {
			out = append(out, c)
		}
	})
	return out
}

// WriteText renders the tree as indented text.
func (n *Node) WriteText(w io.Writer) error {
	var err error
	n.Walk(func(c *Node, depth int) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), c.line())
	})
	return err
}

func (n *Node) line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)", n.Kind, n.Key)
	if n.Value != nil {
		fmt.Fprintf(&b, " = %g", *n.Value)
		if n.StdDev != nil {
			fmt.Fprintf(&b, " ± %g", *n.StdDev)
		}
		fmt.Fprintf(&b, " @ %s", n.CalculatedAt.Format(time.RFC3339Nano))
	}
	if len(n.Params) > 0 {
		names := make([]string, 0, len(n.Params))
		for k := range n.Params {
			names = append(names, k)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, " params=%s", strings.Join(names, ","))
	}
	if n.ErrorKind != "" {
		fmt.Fprintf(&b, " [%s]", n.ErrorKind)
	}
	if n.Truncated {
		b.WriteString(" …")
	}
	return b.String()
}
