package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/domain"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func stubDefs() []Definition {
	tenant := func(context.Context, *Env, types.EntityKey) (uuid.UUID, error) { return uuid.Nil, nil }
	newCalc := func() Calculation {
		return CalcFunc(func(context.Context, *Inputs) (Result, error) { return Result{}, nil })
	}
	defs := make([]Definition, 0, len(types.AllKinds()))
	for _, k := range types.AllKinds() {
		defs = append(defs, Definition{Kind: k, Tenant: tenant, New: newCalc})
	}
	return defs
}

func TestNew_RequiresEveryKind(t *testing.T) {
	defs := stubDefs()
	_, err := New(defs...)
	require.NoError(t, err)

	_, err = New(defs[1:]...)
	assert.ErrorContains(t, err, "no definition")

	_, err = New(append(defs, defs[0])...)
	assert.ErrorContains(t, err, "duplicate")
}

func TestNew_RejectsConflictingVariants(t *testing.T) {
	defs := stubDefs()
	for i := range defs {
		switch defs[i].Kind {
		case types.KindTaskSpecificRisk, types.KindStochasticTaskSpecific:
			defs[i].Family = configstore.FamilyTaskSpecific
			defs[i].Impl = types.RuleBasedEngine
			defs[i].Canonical = types.KindTaskSpecificRisk
		}
	}
	_, err := New(defs...)
	assert.ErrorContains(t, err, "both provide")
}

func TestNew_RejectsDisabledImplementation(t *testing.T) {
	defs := stubDefs()
	defs[0].Family = configstore.FamilyCrew
	defs[0].Impl = types.Disabled
	_, err := New(defs...)
	assert.ErrorContains(t, err, "invalid implementation")
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() { MustNew() })
}

func TestEnv_WindowDates(t *testing.T) {
	day := types.MustDate("2024-03-10")
	env := &Env{Window: types.PlanningWindow{PastDays: 2, FutureDays: 2}}
	env.Clock = clockAt(day)

	all := env.WindowDates(types.Date{}, types.Date{})
	assert.Equal(t, types.DateRange(day.AddDays(-2), day.AddDays(2)), all)

	assert.Equal(t, []types.Date{day, day.AddDays(1)}, env.WindowDates(day, day.AddDays(9)))
	assert.Empty(t, env.WindowDates(day.AddDays(5), day.AddDays(9)))
}

func clockAt(d types.Date) domain.ClockFunc {
	return func() time.Time { return d.Time().Add(6 * time.Hour) }
}
