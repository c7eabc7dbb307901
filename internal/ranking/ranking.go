// Package ranking buckets stored risk scores into LOW, MEDIUM and HIGH using
// the tenant's configured thresholds.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/domain"
	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Result is one ranking with the evidence behind it.
type Result struct {
	Kind       types.MetricKind        `json:"kind"`
	Key        types.EntityKey         `json:"key"`
	Level      types.RiskLevel         `json:"level"`
	Value      *float64                `json:"value,omitempty"`
	Thresholds *configstore.Thresholds `json:"thresholds,omitempty"`
	// Reason explains an UNKNOWN level.
	Reason string `json:"reason,omitempty"`
}

// Request names one metric instance to rank.
type Request struct {
	Kind types.MetricKind
	Key  types.EntityKey
}

// Engine ranks stored metrics. It only reads.
type Engine struct {
	reg     *registry.Registry
	metrics metricstore.Store
	config  *configstore.Store
	domain  domain.Reader
	logger  *slog.Logger
}

// New creates an Engine. A nil logger uses slog.Default.
func New(reg *registry.Registry, env *registry.Env, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{reg: reg, metrics: env.Metrics, config: env.Config, domain: env.Domain, logger: logger}
}

// Level buckets value: below Low is LOW, below Medium is MEDIUM, anything
// else HIGH. A value equal to a boundary falls in the higher bucket.
func Level(value float64, th configstore.Thresholds) types.RiskLevel {
	switch {
	case value < th.Low:
		return types.RiskLow
	case value < th.Medium:
		return types.RiskMedium
	default:
		return types.RiskHigh
	}
}

// Rank loads the version of kind/key current at asOf (latest when nil) and
// ranks it against the tenant's thresholds for the kind's family. A missing
// record or missing thresholds yield UNKNOWN rather than an error; store
// failures are returned.
func (e *Engine) Rank(ctx context.Context, kind types.MetricKind, key types.EntityKey, tenantID uuid.UUID, asOf *time.Time) (Result, error) {
	res := Result{Kind: kind, Key: key, Level: types.RiskUnknown}

	rec, err := e.metrics.Load(ctx, kind, key, asOf)
	if errors.Is(err, types.ErrMissingMetric) {
		res.Reason = "no stored value"
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("rank %s: %w", types.NewJob(kind, key), err)
	}
	res.Value = &rec.Value

	family, ok := e.reg.ThresholdFamily(kind)
	if !ok {
		res.Reason = "kind has no thresholds"
		return res, nil
	}
	th, err := e.config.Thresholds(ctx, family, tenantID)
	if errors.Is(err, types.ErrMissingConfiguration) {
		res.Reason = fmt.Sprintf("%s not configured", family.ThresholdsLabel())
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("rank %s: %w", types.NewJob(kind, key), err)
	}
	res.Thresholds = &th
	res.Level = Level(rec.Value, th)
	return res, nil
}

// RankBulk ranks every request for one tenant. Results are in request order.
func (e *Engine) RankBulk(ctx context.Context, reqs []Request, tenantID uuid.UUID, asOf *time.Time) ([]Result, error) {
	out := make([]Result, 0, len(reqs))
	for _, r := range reqs {
		res, err := e.Rank(ctx, r.Kind, r.Key, tenantID, asOf)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// WorkPackageRank is the ranking of one work package's total risk on a day.
type WorkPackageRank struct {
	WorkPackage types.WorkPackage `json:"workPackage"`
	Result
}

// RankWorkPackages ranks the total risk of every tenant work package active
// on d, using whichever implementation the tenant has selected. With the
// family disabled every work package ranks UNKNOWN.
func (e *Engine) RankWorkPackages(ctx context.Context, tenantID uuid.UUID, d types.Date) ([]WorkPackageRank, error) {
	wps, err := e.domain.WorkPackages(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list work packages: %w", err)
	}
	resolved, err := e.reg.Resolve(ctx, e.config, types.KindTotalWorkPackageRisk, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", types.KindTotalWorkPackageRisk, err)
	}

	var reqs []Request
	var active []types.WorkPackage
	for _, wp := range wps {
		if !wp.ActiveOn(d) {
			continue
		}
		active = append(active, wp)
		reqs = append(reqs, Request{Kind: resolved.Kind, Key: types.DatedKey(wp.ID, d)})
	}

	out := make([]WorkPackageRank, len(active))
	if !resolved.Active {
		e.logger.Debug("work package ranking disabled", "tenant", tenantID, "implementation", resolved.Impl)
		for i, wp := range active {
			out[i] = WorkPackageRank{WorkPackage: wp, Result: Result{
				Kind: resolved.Kind, Key: reqs[i].Key, Level: types.RiskUnknown,
				Reason: fmt.Sprintf("implementation %s", resolved.Impl),
			}}
		}
		return out, nil
	}

	results, err := e.RankBulk(ctx, reqs, tenantID, nil)
	if err != nil {
		return nil, err
	}
	for i, wp := range active {
		out[i] = WorkPackageRank{WorkPackage: wp, Result: results[i]}
	}
	return out, nil
}
