package ranking_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/internal/ranking"
	"github.com/dwsmith1983/riskreactor/internal/riskmodel"
	"github.com/dwsmith1983/riskreactor/internal/testutil"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func setup(t *testing.T) (*testutil.World, *ranking.Engine) {
	t.Helper()
	w := testutil.NewWorld(t)
	reg, err := riskmodel.NewRegistry()
	require.NoError(t, err)
	return w, ranking.New(reg, w.Env, nil)
}

func putThresholds(t *testing.T, w *testutil.World, f configstore.Family, tenant *uuid.UUID, low, medium float64) {
	t.Helper()
	require.NoError(t, w.Config.Put(context.Background(), f.ThresholdsLabel(), tenant,
		configstore.Thresholds{Low: low, Medium: medium}))
}

func TestLevel_Boundaries(t *testing.T) {
	th := configstore.Thresholds{Low: 85.0, Medium: 210.0}
	tests := []struct {
		value float64
		want  types.RiskLevel
	}{
		{85.0, types.RiskMedium},
		{84.999, types.RiskLow},
		{210.0, types.RiskHigh},
		{209.999, types.RiskMedium},
		{0, types.RiskLow},
		{1e9, types.RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ranking.Level(tt.value, th), "value %v", tt.value)
	}
}

func TestLevel_Monotonic(t *testing.T) {
	th := configstore.Thresholds{Low: 10, Medium: 20}
	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		a, b := r.Float64()*40, r.Float64()*40
		if a > b {
			a, b = b, a
		}
		assert.LessOrEqual(t, ranking.Level(a, th).Ordinal(), ranking.Level(b, th).Ordinal(), "%v <= %v", a, b)
	}
}

func TestRank_StoredValues(t *testing.T) {
	w, e := setup(t)
	putThresholds(t, w, configstore.FamilyProjectTotal, &w.Tenant, 85.0, 210.0)

	values := []float64{85.0, 84.999, 210.0, 209.999}
	want := []types.RiskLevel{types.RiskMedium, types.RiskLow, types.RiskHigh, types.RiskMedium}
	var reqs []ranking.Request
	for _, v := range values {
		key := types.DatedKey(uuid.New(), w.Day)
		w.Store(t, types.KindTotalWorkPackageRisk, key, v)
		reqs = append(reqs, ranking.Request{Kind: types.KindTotalWorkPackageRisk, Key: key})
	}

	results, err := e.RankBulk(context.Background(), reqs, w.Tenant, nil)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))
	for i, r := range results {
		assert.Equal(t, reqs[i].Key, r.Key, "order preserved")
		assert.Equal(t, want[i], r.Level, "value %v", values[i])
		require.NotNil(t, r.Value)
		assert.Equal(t, values[i], *r.Value)
	}
}

func TestRank_UnknownWithoutRecord(t *testing.T) {
	w, e := setup(t)
	putThresholds(t, w, configstore.FamilyProjectTotal, nil, 1, 2)

	r, err := e.Rank(context.Background(), types.KindTotalWorkPackageRisk, types.DatedKey(w.WorkPackage, w.Day), w.Tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, types.RiskUnknown, r.Level)
	assert.Nil(t, r.Value)
}

func TestRank_UnknownWithoutThresholds(t *testing.T) {
	w, e := setup(t)
	key := types.DatedKey(w.WorkPackage, w.Day)
	w.Store(t, types.KindTotalWorkPackageRisk, key, 50)

	r, err := e.Rank(context.Background(), types.KindTotalWorkPackageRisk, key, w.Tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, types.RiskUnknown, r.Level)
	assert.Contains(t, r.Reason, configstore.FamilyProjectTotal.ThresholdsLabel())
}

func TestRank_DefaultThresholdsShadowedByTenant(t *testing.T) {
	w, e := setup(t)
	key := types.DatedKey(w.WorkPackage, w.Day)
	w.Store(t, types.KindTotalWorkPackageRisk, key, 50)
	putThresholds(t, w, configstore.FamilyProjectTotal, nil, 10, 20)

	r, err := e.Rank(context.Background(), types.KindTotalWorkPackageRisk, key, w.Tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, types.RiskHigh, r.Level)

	putThresholds(t, w, configstore.FamilyProjectTotal, &w.Tenant, 100, 200)
	r, err = e.Rank(context.Background(), types.KindTotalWorkPackageRisk, key, w.Tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, types.RiskLow, r.Level)
}

func TestRank_AsOf(t *testing.T) {
	w, e := setup(t)
	putThresholds(t, w, configstore.FamilyProjectTotal, nil, 10, 20)
	key := types.DatedKey(w.WorkPackage, w.Day)
	first := w.Store(t, types.KindTotalWorkPackageRisk, key, 5)
	w.Store(t, types.KindTotalWorkPackageRisk, key, 25)

	at := first.CalculatedAt
	r, err := e.Rank(context.Background(), types.KindTotalWorkPackageRisk, key, w.Tenant, &at)
	require.NoError(t, err)
	assert.Equal(t, types.RiskLow, r.Level)

	before := at.Add(-time.Second)
	r, err = e.Rank(context.Background(), types.KindTotalWorkPackageRisk, key, w.Tenant, &before)
	require.NoError(t, err)
	assert.Equal(t, types.RiskUnknown, r.Level)
}

type brokenStore struct{ *metricstore.Memory }

func (brokenStore) Load(context.Context, types.MetricKind, types.EntityKey, *time.Time) (types.MetricRecord, error) {
	return types.MetricRecord{}, types.Transient(errors.New("pool closed"))
}

func TestRank_StoreErrorsPropagate(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Env.Metrics = brokenStore{w.Metrics}
	reg, err := riskmodel.NewRegistry()
	require.NoError(t, err)
	e := ranking.New(reg, w.Env, nil)

	_, err = e.Rank(context.Background(), types.KindTotalWorkPackageRisk, types.DatedKey(w.WorkPackage, w.Day), w.Tenant, nil)
	assert.ErrorIs(t, err, types.ErrTransientStore)
}

func TestRankWorkPackages(t *testing.T) {
	w, e := setup(t)
	putThresholds(t, w, configstore.FamilyProjectTotal, nil, 10, 20)
	w.Store(t, types.KindTotalWorkPackageRisk, types.DatedKey(w.WorkPackage, w.Day), 15)

	got, err := e.RankWorkPackages(context.Background(), w.Tenant, w.Day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, w.WorkPackage, got[0].WorkPackage.ID)
	assert.Equal(t, types.RiskMedium, got[0].Level)

	got, err = e.RankWorkPackages(context.Background(), w.Tenant, w.Day.AddDays(90))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRankWorkPackages_FollowsImplementation(t *testing.T) {
	w, e := setup(t)
	putThresholds(t, w, configstore.FamilyProjectTotal, nil, 10, 20)
	key := types.DatedKey(w.WorkPackage, w.Day)
	w.Store(t, types.KindTotalWorkPackageRisk, key, 15)
	w.Store(t, types.KindStochasticTotalWorkPackage, key, 30)

	w.SetImplementation(t, configstore.FamilyProjectTotal, w.Tenant, types.StochasticModel)
	got, err := e.RankWorkPackages(context.Background(), w.Tenant, w.Day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.KindStochasticTotalWorkPackage, got[0].Kind)
	assert.Equal(t, types.RiskHigh, got[0].Level)

	w.SetImplementation(t, configstore.FamilyProjectTotal, w.Tenant, types.Disabled)
	got, err = e.RankWorkPackages(context.Background(), w.Tenant, w.Day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.RiskUnknown, got[0].Level)
}
