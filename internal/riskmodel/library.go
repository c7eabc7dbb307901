package riskmodel

import (
	"context"
	"math"

	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Library-level kinds are shared by every tenant and always computed.
func libraryDefinitions() []registry.Definition {
	return []registry.Definition{
		{
			Kind:        types.KindLibraryTaskRelativePrecursorRisk,
			Tenant:      libraryTenant,
			NonNegative: true,
			New:         calc(libraryTaskPrecursorRisk),
		},
		{
			Kind:        types.KindLibrarySiteConditionRelativePrecursorRisk,
			Tenant:      libraryTenant,
			NonNegative: true,
			New:         calc(librarySiteConditionPrecursorRisk),
		},
	}
}

func checkPrecursor(v float64, what string, key types.EntityKey) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return types.Deterministicf("%s %s has invalid precursor risk %v", what, key.ID, v)
	}
	return nil
}

func libraryTaskPrecursorRisk(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	lt, err := in.Env.Domain.LibraryTask(ctx, in.Job.Key.ID)
	if err != nil {
		return registry.Result{}, err
	}
	if err := checkPrecursor(lt.PrecursorRisk, "library task", in.Job.Key); err != nil {
		return registry.Result{}, err
	}
	return registry.Result{Value: lt.PrecursorRisk, Inputs: map[string]any{"library_task": lt.Name}}, nil
}

func librarySiteConditionPrecursorRisk(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	sc, err := in.Env.Domain.LibrarySiteCondition(ctx, in.Job.Key.ID)
	if err != nil {
		return registry.Result{}, err
	}
	if err := checkPrecursor(sc.PrecursorRisk, "library site condition", in.Job.Key); err != nil {
		return registry.Result{}, err
	}
	return registry.Result{Value: sc.PrecursorRisk, Inputs: map[string]any{"library_site_condition": sc.Name}}, nil
}
