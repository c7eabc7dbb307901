// Package registry holds the static table of metric definitions: how each
// kind resolves its tenant, which inputs it reads, which dependents it
// invalidates and which constructor computes it.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/domain"
	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Env carries the collaborators a calculation may read. Its fields are the
// worker-local injectables re-bound when a job is decoded.
type Env struct {
	Domain  domain.Reader
	Sites   domain.SiteConditionEvaluator
	Metrics metricstore.Store
	Config  *configstore.Store
	Clock   domain.Clock
	Window  types.PlanningWindow
	Logger  *slog.Logger
}

// Injectables are the Env fields every job needs bound on the consumer side.
var Injectables = []string{"domain", "sites", "metrics", "config", "clock"}

// Bound reports which injectables are set on e.
func (e *Env) Bound() map[string]bool {
	return map[string]bool{
		"domain":  e.Domain != nil,
		"sites":   e.Sites != nil,
		"metrics": e.Metrics != nil,
		"config":  e.Config != nil,
		"clock":   e.Clock != nil,
	}
}

// Today is the current calendar day per the env clock.
func (e *Env) Today() types.Date { return types.DateOf(e.Clock.Now()) }

// WindowDates lists the planning-window days that fall within [start, end].
// A zero bound is open.
func (e *Env) WindowDates(start, end types.Date) []types.Date {
	today := e.Today()
	var out []types.Date
	for _, d := range types.DateRange(today.AddDays(-e.Window.PastDays), today.AddDays(e.Window.FutureDays)) {
		if d.Within(start, end) {
			out = append(out, d)
		}
	}
	return out
}

// Result is what a calculation produces.
type Result struct {
	Value  float64
	StdDev *float64
	Inputs map[string]any
	Params map[string]any
}

// Calculation computes one metric instance from its inputs.
type Calculation interface {
	Calc(ctx context.Context, in *Inputs) (Result, error)
}

// CalcFunc adapts a function to Calculation.
type CalcFunc func(ctx context.Context, in *Inputs) (Result, error)

// Calc implements Calculation.
func (f CalcFunc) Calc(ctx context.Context, in *Inputs) (Result, error) { return f(ctx, in) }

// JobsFunc derives jobs from the key of a metric instance.
type JobsFunc func(ctx context.Context, env *Env, key types.EntityKey) ([]types.CalculationJob, error)

// TenantFunc resolves the tenant owning a metric instance. Library-level
// kinds return uuid.Nil.
type TenantFunc func(ctx context.Context, env *Env, key types.EntityKey) (uuid.UUID, error)

// Definition describes one metric kind.
type Definition struct {
	Kind types.MetricKind
	// Family is the configuration family whose TYPE label selects the
	// implementation. Empty means the kind is always computed.
	Family configstore.Family
	// Impl is the implementation this kind provides within its family.
	Impl types.Implementation
	// Canonical is the kind other definitions refer to when they depend on
	// this family slot. Empty means Kind itself.
	Canonical types.MetricKind
	Tenant    TenantFunc
	// Inputs lists the metric instances Calc reads, by canonical kind.
	Inputs JobsFunc
	// Dependents lists the canonical jobs to enqueue after a successful store.
	Dependents JobsFunc
	// Params names the parameter bundle merged over DefaultParams.
	Params        string
	DefaultParams map[string]any
	// NonNegative rejects negative results as deterministic errors.
	NonNegative bool
	New         func() Calculation
}

func (d *Definition) canonical() types.MetricKind {
	if d.Canonical == "" {
		return d.Kind
	}
	return d.Canonical
}

// Registry is the immutable table of definitions.
type Registry struct {
	defs     map[types.MetricKind]*Definition
	variants map[types.MetricKind]map[types.Implementation]types.MetricKind
}

// New validates and indexes defs. Every known metric kind must be defined
// exactly once.
func New(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:     make(map[types.MetricKind]*Definition, len(defs)),
		variants: map[types.MetricKind]map[types.Implementation]types.MetricKind{},
	}
	for i := range defs {
		d := defs[i]
		if !d.Kind.Valid() {
			return nil, fmt.Errorf("registry: unknown kind %q", d.Kind)
		}
		if _, dup := r.defs[d.Kind]; dup {
			return nil, fmt.Errorf("registry: duplicate definition for %s", d.Kind)
		}
		if d.New == nil || d.Tenant == nil {
			return nil, fmt.Errorf("registry: %s needs a constructor and tenant resolver", d.Kind)
		}
		if d.Family != "" {
			if !d.Impl.Valid() || d.Impl == types.Disabled {
				return nil, fmt.Errorf("registry: %s has invalid implementation %q", d.Kind, d.Impl)
			}
			c := d.canonical()
			if r.variants[c] == nil {
				r.variants[c] = map[types.Implementation]types.MetricKind{}
			}
			if other, dup := r.variants[c][d.Impl]; dup {
				return nil, fmt.Errorf("registry: %s and %s both provide %s for %s", other, d.Kind, d.Impl, c)
			}
			r.variants[c][d.Impl] = d.Kind
		}
		r.defs[d.Kind] = &d
	}
	for _, k := range types.AllKinds() {
		if _, ok := r.defs[k]; !ok {
			return nil, fmt.Errorf("registry: no definition for %s", k)
		}
	}
	for c, vs := range r.variants {
		cd, ok := r.defs[c]
		if !ok {
			return nil, fmt.Errorf("registry: canonical kind %s is not defined", c)
		}
		for _, k := range vs {
			if r.defs[k].Family != cd.Family {
				return nil, fmt.Errorf("registry: %s and %s disagree on family", k, c)
			}
		}
	}
	return r, nil
}

// MustNew is New for static tables.
func MustNew(defs ...Definition) *Registry {
	r, err := New(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Definition returns the definition for kind.
func (r *Registry) Definition(kind types.MetricKind) (*Definition, bool) {
	d, ok := r.defs[kind]
	return d, ok
}

// Kinds returns every defined kind sorted by name.
func (r *Registry) Kinds() []types.MetricKind {
	out := make([]types.MetricKind, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Family returns the configuration family of kind, if any.
func (r *Registry) Family(kind types.MetricKind) (configstore.Family, bool) {
	d, ok := r.defs[kind]
	if !ok || d.Family == "" {
		return "", false
	}
	return d.Family, true
}

// Selector returns the TYPE label choosing the implementation of kind.
func (r *Registry) Selector(kind types.MetricKind) (string, bool) {
	f, ok := r.Family(kind)
	if !ok {
		return "", false
	}
	return f.TypeLabel(), true
}

// Canonical maps a variant kind to the kind dependents refer to.
func (r *Registry) Canonical(kind types.MetricKind) types.MetricKind {
	if d, ok := r.defs[kind]; ok {
		return d.canonical()
	}
	return kind
}

// Resolution is the tenant-specific outcome of resolving a kind.
type Resolution struct {
	Kind     types.MetricKind
	Impl     types.Implementation
	TenantID uuid.UUID
	// Active is false when the family is disabled for the tenant or no
	// variant provides the selected implementation.
	Active bool
}

// Resolve maps kind to the variant the tenant has selected. Kinds without a
// family always resolve to themselves.
func (r *Registry) Resolve(ctx context.Context, cfg *configstore.Store, kind types.MetricKind, tenantID uuid.UUID) (Resolution, error) {
	d, ok := r.defs[kind]
	if !ok {
		return Resolution{}, fmt.Errorf("registry: unknown kind %q", kind)
	}
	if d.Family == "" {
		return Resolution{Kind: kind, Impl: types.RuleBasedEngine, TenantID: tenantID, Active: true}, nil
	}
	impl, err := cfg.Implementation(ctx, d.Family, tenantID)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Kind: kind, Impl: impl, TenantID: tenantID}
	if impl == types.Disabled {
		return res, nil
	}
	if v, ok := r.variants[d.canonical()][impl]; ok {
		res.Kind, res.Active = v, true
	}
	return res, nil
}

// Tenant resolves the tenant owning job.
func (r *Registry) Tenant(ctx context.Context, env *Env, job types.CalculationJob) (uuid.UUID, error) {
	d, ok := r.defs[job.Kind]
	if !ok {
		return uuid.Nil, fmt.Errorf("registry: unknown kind %q", job.Kind)
	}
	return d.Tenant(ctx, env, job.Key)
}

// Inputs returns the canonical input jobs of job.
func (r *Registry) Inputs(ctx context.Context, env *Env, job types.CalculationJob) ([]types.CalculationJob, error) {
	d, ok := r.defs[job.Kind]
	if !ok {
		return nil, fmt.Errorf("registry: unknown kind %q", job.Kind)
	}
	if d.Inputs == nil {
		return nil, nil
	}
	return d.Inputs(ctx, env, job.Key)
}

// Dependents returns the canonical jobs invalidated by a new value of job.
func (r *Registry) Dependents(ctx context.Context, env *Env, job types.CalculationJob) ([]types.CalculationJob, error) {
	d, ok := r.defs[job.Kind]
	if !ok {
		return nil, fmt.Errorf("registry: unknown kind %q", job.Kind)
	}
	if d.Dependents == nil {
		return nil, nil
	}
	return d.Dependents(ctx, env, job.Key)
}

// ThresholdFamily returns the family whose THRESHOLDS label ranks kind.
func (r *Registry) ThresholdFamily(kind types.MetricKind) (configstore.Family, bool) {
	return r.Family(kind)
}
