// Package trigger expands domain change events into the metric calculations
// they invalidate.
package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/internal/riskmodel"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Expander maps a TriggerEvent to the calculation jobs to enqueue. Emitted
// jobs use canonical kinds; the worker resolves each tenant's variant.
// Expansion reads the domain but never writes.
type Expander struct {
	env    *registry.Env
	logger *slog.Logger
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExpanderOption {
	return func(e *Expander) { e.logger = l }
}

// NewExpander creates an Expander reading through env.
func NewExpander(env *registry.Env, opts ...ExpanderOption) *Expander {
	e := &Expander{env: env, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Expand returns the deduplicated jobs for ev in emission order.
func (e *Expander) Expand(ctx context.Context, ev types.TriggerEvent) ([]types.CalculationJob, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	var (
		jobs []types.CalculationJob
		err  error
	)
	switch ev.Type {
	case types.TriggerWorkPackageChanged:
		jobs, err = e.workPackageChanged(ctx, ev.ID)
	case types.TriggerLocationChanged:
		jobs, err = e.locationChanged(ctx, ev.ID)
	case types.TriggerActivityChanged:
		jobs, err = e.activityChanged(ctx, ev.ID)
	case types.TriggerActivityDeleted:
		jobs, err = e.activityDeleted(ctx, ev.ID)
	case types.TriggerTaskChanged:
		jobs, err = e.taskChanged(ctx, ev.ID)
	case types.TriggerTaskDeleted:
		jobs, err = e.taskDeleted(ctx, ev.ID)
	case types.TriggerUpdateTaskRisk:
		jobs = []types.CalculationJob{types.NewJob(types.KindTaskSpecificRisk, types.DatedKey(ev.ID, ev.Date))}
	case types.TriggerContractorDataChanged:
		jobs, err = e.contractorChanged(ctx, ev.ID)
	case types.TriggerContractorDataChangedForTenant:
		jobs, err = e.contractorsOfTenant(ctx, ev.ID)
	case types.TriggerSupervisorDataChanged:
		jobs, err = e.supervisorChanged(ctx, ev.ID)
	case types.TriggerSupervisorDataChangedForTenant:
		jobs, err = e.supervisorsOfTenant(ctx, ev.ID)
	case types.TriggerSupervisorsChangedForWorkPackage:
		jobs, err = e.supervisorsOfWorkPackage(ctx, ev.ID)
	case types.TriggerSupervisorChangedForLocation:
		jobs, err = e.supervisorsOfLocation(ctx, ev.ID)
	case types.TriggerContractorChangedForWorkPackage:
		jobs, err = e.contractorOfWorkPackage(ctx, ev.ID)
	case types.TriggerCrewDataChangedForTenant:
		jobs, err = e.crewsOfTenant(ctx, ev.ID)
	case types.TriggerIncidentChanged:
		jobs, err = e.incidentChanged(ctx, ev.ID)
	case types.TriggerLibraryTaskDataChanged:
		jobs, err = e.libraryTaskChanged(ctx, ev.ID)
	case types.TriggerLocationSiteConditionsChanged:
		jobs, err = e.siteConditionsChanged(ctx, ev.ID)
	default:
		return nil, fmt.Errorf("unhandled trigger type %q", ev.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", ev, err)
	}
	jobs = dedupe(jobs)
	e.logger.Debug("trigger expanded", "trigger", ev.String(), "jobs", len(jobs))
	return jobs, nil
}

func dedupe(jobs []types.CalculationJob) []types.CalculationJob {
	seen := make(map[types.CalculationJob]bool, len(jobs))
	out := jobs[:0]
	for _, j := range jobs {
		if seen[j] {
			continue
		}
		seen[j] = true
		out = append(out, j)
	}
	return out
}

func dated(kind types.MetricKind, id uuid.UUID, days []types.Date) []types.CalculationJob {
	out := make([]types.CalculationJob, 0, len(days))
	for _, d := range days {
		out = append(out, types.NewJob(kind, types.DatedKey(id, d)))
	}
	return out
}

func entity(kind types.MetricKind, id uuid.UUID) types.CalculationJob {
	return types.NewJob(kind, types.EntityKeyOf(id))
}

func tenant(kind types.MetricKind, id uuid.UUID) types.CalculationJob {
	return types.NewJob(kind, types.TenantKey(id))
}

// workPackageDays are the window days the work package is scheduled.
func (e *Expander) workPackageDays(ctx context.Context, id uuid.UUID) ([]types.Date, error) {
	wp, err := e.env.Domain.WorkPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.env.WindowDates(wp.StartDate, wp.EndDate), nil
}

func (e *Expander) activityDays(ctx context.Context, id uuid.UUID) (types.Activity, []types.Date, error) {
	act, err := e.env.Domain.Activity(ctx, id)
	if err != nil {
		return act, nil, err
	}
	return act, e.env.WindowDates(act.StartDate, act.EndDate), nil
}

func (e *Expander) workPackageChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	wp, err := e.env.Domain.WorkPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	if !wp.Archived {
		locs, err := e.env.Domain.LocationsOfWorkPackage(ctx, id)
		if err != nil {
			return nil, err
		}
		if out, err = riskmodel.LocationChain(ctx, e.env, locs); err != nil {
			return nil, err
		}
	}
	out = append(out, dated(types.KindTotalWorkPackageRisk, id, e.env.WindowDates(wp.StartDate, wp.EndDate))...)
	if wp.ContractorID != nil {
		out = append(out,
			entity(types.KindContractorSafetyHistory, *wp.ContractorID),
			entity(types.KindContractorSafetyScore, *wp.ContractorID))
	}
	return out, nil
}

func (e *Expander) locationChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	loc, err := e.env.Domain.Location(ctx, id)
	if err != nil {
		return nil, err
	}
	days, err := e.workPackageDays(ctx, loc.WorkPackageID)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	if !loc.Archived {
		out = append(out, dated(types.KindProjectLocationSiteConditionsMultiplier, id, days)...)
		out = append(out, dated(types.KindTotalLocationRisk, id, days)...)
	}
	return append(out, dated(types.KindTotalWorkPackageRisk, loc.WorkPackageID, days)...), nil
}

func (e *Expander) activityChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	act, days, err := e.activityDays(ctx, id)
	if err != nil {
		return nil, err
	}
	if act.Archived {
		return e.activityDeleted(ctx, id)
	}
	tasks, err := e.env.Domain.TasksOfActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	for _, t := range tasks {
		out = append(out, dated(types.KindTaskSpecificSiteConditionsMultiplier, t.ID, days)...)
		out = append(out, dated(types.KindTaskSpecificRisk, t.ID, days)...)
	}
	out = append(out, dated(types.KindActivityTotalTaskRisk, id, days)...)
	// The activity may have moved out of days it used to cover.
	loc, err := e.env.Domain.Location(ctx, act.LocationID)
	if err != nil {
		return nil, err
	}
	locDays, err := e.workPackageDays(ctx, loc.WorkPackageID)
	if err != nil {
		return nil, err
	}
	return append(out, dated(types.KindTotalLocationRisk, act.LocationID, locDays)...), nil
}

// activityDeleted recomputes the parent location totals; the archived
// activity is excluded by their calculation.
func (e *Expander) activityDeleted(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	act, days, err := e.activityDays(ctx, id)
	if err != nil {
		return nil, err
	}
	return dated(types.KindTotalLocationRisk, act.LocationID, days), nil
}

func (e *Expander) taskChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	task, err := e.env.Domain.Task(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Archived {
		return e.taskDeleted(ctx, id)
	}
	_, days, err := e.activityDays(ctx, task.ActivityID)
	if err != nil {
		return nil, err
	}
	out := dated(types.KindTaskSpecificSiteConditionsMultiplier, id, days)
	return append(out, dated(types.KindTaskSpecificRisk, id, days)...), nil
}

// taskDeleted recomputes the parent activity totals for every affected day.
func (e *Expander) taskDeleted(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	task, err := e.env.Domain.Task(ctx, id)
	if err != nil {
		return nil, err
	}
	_, days, err := e.activityDays(ctx, task.ActivityID)
	if err != nil {
		return nil, err
	}
	return dated(types.KindActivityTotalTaskRisk, task.ActivityID, days), nil
}

func (e *Expander) contractorChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	c, err := e.env.Domain.Contractor(ctx, id)
	if err != nil {
		return nil, err
	}
	out := []types.CalculationJob{
		entity(types.KindContractorSafetyHistory, id),
		entity(types.KindContractorSafetyRating, id),
		entity(types.KindContractorSafetyScore, id),
		tenant(types.KindGlobalContractorSafetyScore, c.TenantID),
	}
	chain, err := riskmodel.ContractorChain(ctx, e.env, id)
	if err != nil {
		return nil, err
	}
	return append(out, chain...), nil
}

func (e *Expander) contractorsOfTenant(ctx context.Context, tenantID uuid.UUID) ([]types.CalculationJob, error) {
	cs, err := e.env.Domain.Contractors(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	for _, c := range cs {
		out = append(out, entity(types.KindContractorSafetyHistory, c.ID), entity(types.KindContractorSafetyRating, c.ID))
	}
	out = append(out, tenant(types.KindGlobalContractorProjectHistoryBaseline, tenantID))
	for _, c := range cs {
		out = append(out, entity(types.KindContractorSafetyScore, c.ID))
	}
	return append(out, tenant(types.KindGlobalContractorSafetyScore, tenantID)), nil
}

func (e *Expander) supervisorChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	s, err := e.env.Domain.Supervisor(ctx, id)
	if err != nil {
		return nil, err
	}
	out := []types.CalculationJob{
		entity(types.KindSupervisorEngagementFactor, id),
		tenant(types.KindGlobalSupervisorEngagementFactor, s.TenantID),
	}
	locs, err := e.env.Domain.LocationsOfSupervisor(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := riskmodel.LocationChain(ctx, e.env, locs)
	if err != nil {
		return nil, err
	}
	return append(out, chain...), nil
}

func (e *Expander) supervisorsOfTenant(ctx context.Context, tenantID uuid.UUID) ([]types.CalculationJob, error) {
	ss, err := e.env.Domain.Supervisors(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.CalculationJob, 0, len(ss)+1)
	for _, s := range ss {
		out = append(out, entity(types.KindSupervisorEngagementFactor, s.ID))
	}
	return append(out, tenant(types.KindGlobalSupervisorEngagementFactor, tenantID)), nil
}

// supervisorsAt emits the factors of the locations' supervisors, the tenant
// global and the location totals.
func (e *Expander) supervisorsAt(ctx context.Context, tenantID uuid.UUID, locs []types.Location) ([]types.CalculationJob, error) {
	var out []types.CalculationJob
	for _, l := range locs {
		for _, s := range l.SupervisorIDs {
			out = append(out, entity(types.KindSupervisorEngagementFactor, s))
		}
	}
	out = append(out, tenant(types.KindGlobalSupervisorEngagementFactor, tenantID))
	chain, err := riskmodel.LocationChain(ctx, e.env, locs)
	if err != nil {
		return nil, err
	}
	return append(out, chain...), nil
}

func (e *Expander) supervisorsOfWorkPackage(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	wp, err := e.env.Domain.WorkPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	locs, err := e.env.Domain.LocationsOfWorkPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.supervisorsAt(ctx, wp.TenantID, locs)
}

func (e *Expander) supervisorsOfLocation(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	loc, err := e.env.Domain.Location(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.supervisorsAt(ctx, loc.TenantID, []types.Location{loc})
}

func (e *Expander) contractorOfWorkPackage(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	wp, err := e.env.Domain.WorkPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	if wp.ContractorID != nil {
		out = append(out,
			entity(types.KindContractorSafetyHistory, *wp.ContractorID),
			entity(types.KindContractorSafetyScore, *wp.ContractorID),
			tenant(types.KindGlobalContractorSafetyScore, wp.TenantID))
	}
	locs, err := e.env.Domain.LocationsOfWorkPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := riskmodel.LocationChain(ctx, e.env, locs)
	if err != nil {
		return nil, err
	}
	return append(out, chain...), nil
}

func (e *Expander) crewsOfTenant(ctx context.Context, tenantID uuid.UUID) ([]types.CalculationJob, error) {
	crews, err := e.env.Domain.Crews(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.CalculationJob, 0, len(crews)+1)
	for _, c := range crews {
		out = append(out, entity(types.KindCrewRisk, c.ID))
	}
	return append(out, tenant(types.KindGlobalCrewRisk, tenantID)), nil
}

// incidentChanged refreshes every score an incident contributes to. Only the
// first level of each task chain is emitted; fan-out carries the rest.
func (e *Expander) incidentChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	inc, err := e.env.Domain.Incident(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	for _, lt := range inc.LibraryTaskIDs {
		out = append(out, types.NewJob(types.KindTaskSpecificSafetyClimateMultiplier, types.EntityTenantKey(lt, inc.TenantID)))
	}
	for _, lt := range inc.LibraryTaskIDs {
		chain, err := e.tasksOfLibraryTask(ctx, inc.TenantID, lt)
		if err != nil {
			return nil, err
		}
		out = append(out, chain...)
	}
	if inc.ContractorID != nil {
		out = append(out,
			entity(types.KindContractorSafetyHistory, *inc.ContractorID),
			entity(types.KindContractorSafetyScore, *inc.ContractorID),
			tenant(types.KindGlobalContractorSafetyScore, inc.TenantID))
	}
	if inc.SupervisorID != nil {
		out = append(out,
			entity(types.KindSupervisorEngagementFactor, *inc.SupervisorID),
			tenant(types.KindGlobalSupervisorEngagementFactor, inc.TenantID))
	}
	if inc.CrewID != nil {
		out = append(out, entity(types.KindCrewRisk, *inc.CrewID), tenant(types.KindGlobalCrewRisk, inc.TenantID))
	}
	return out, nil
}

func (e *Expander) tasksOfLibraryTask(ctx context.Context, tenantID, libraryTaskID uuid.UUID) ([]types.CalculationJob, error) {
	tasks, err := e.env.Domain.TasksOfLibraryTask(ctx, tenantID, libraryTaskID)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	for _, t := range tasks {
		act, days, err := e.activityDays(ctx, t.ActivityID)
		if err != nil {
			return nil, err
		}
		if act.Archived {
			continue
		}
		out = append(out, dated(types.KindTaskSpecificRisk, t.ID, days)...)
	}
	return out, nil
}

func (e *Expander) libraryTaskChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	if _, err := e.env.Domain.LibraryTask(ctx, id); err != nil {
		return nil, err
	}
	out := []types.CalculationJob{entity(types.KindLibraryTaskRelativePrecursorRisk, id)}
	tenants, err := e.env.Domain.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tenants {
		chain, err := e.tasksOfLibraryTask(ctx, t.ID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, chain...)
	}
	return out, nil
}

func (e *Expander) siteConditionsChanged(ctx context.Context, id uuid.UUID) ([]types.CalculationJob, error) {
	loc, err := e.env.Domain.Location(ctx, id)
	if err != nil {
		return nil, err
	}
	days, err := e.workPackageDays(ctx, loc.WorkPackageID)
	if err != nil {
		return nil, err
	}
	out := dated(types.KindProjectLocationSiteConditionsMultiplier, id, days)
	acts, err := e.env.Domain.ActivitiesOfLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, a := range acts {
		actDays := e.env.WindowDates(a.StartDate, a.EndDate)
		tasks, err := e.env.Domain.TasksOfActivity(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			out = append(out, dated(types.KindTaskSpecificSiteConditionsMultiplier, t.ID, actDays)...)
		}
		out = append(out, dated(types.KindStochasticActivitySiteConditionRelativePrecursorRisk, a.ID, actDays)...)
	}
	return out, nil
}
