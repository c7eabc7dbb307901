package types

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_ParseAndString(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", d.String())
	assert.Equal(t, MustDate("2024-01-16"), d.AddDays(1))

	_, err = ParseDate("15/01/2024")
	assert.Error(t, err)
}

func TestDate_Within(t *testing.T) {
	start, end := MustDate("2024-01-10"), MustDate("2024-01-20")
	assert.True(t, MustDate("2024-01-10").Within(start, end))
	assert.True(t, MustDate("2024-01-20").Within(start, end))
	assert.False(t, MustDate("2024-01-21").Within(start, end))
	assert.True(t, MustDate("2030-01-01").Within(start, Date{}))
}

func TestDateRange(t *testing.T) {
	r := DateRange(MustDate("2024-02-28"), MustDate("2024-03-01"))
	require.Len(t, r, 3)
	assert.Equal(t, MustDate("2024-02-29"), r[1])
	assert.Nil(t, DateRange(MustDate("2024-03-01"), MustDate("2024-02-28")))
}

func TestErrorTaxonomy(t *testing.T) {
	mm := MissingMetric(KindCrewRisk, EntityKeyOf(uuid.New()), nil)
	assert.True(t, errors.Is(mm, ErrMissingMetric))

	var target *MissingMetricError
	require.True(t, errors.As(mm, &target))
	assert.Equal(t, KindCrewRisk, target.Job().Kind)

	assert.True(t, errors.Is(MissingDependency("task", uuid.New()), ErrMissingDependency))
	assert.True(t, errors.Is(Transient(errors.New("conn reset")), ErrTransientStore))
	assert.Nil(t, Transient(nil))
	assert.True(t, errors.Is(Deterministicf("negative %d", -1), ErrDeterministicCalc))
	assert.True(t, errors.Is(MissingConfiguration("X", uuid.Nil), ErrMissingConfiguration))
}

func TestRiskLevel_Ordinal(t *testing.T) {
	assert.Less(t, RiskLow.Ordinal(), RiskMedium.Ordinal())
	assert.Less(t, RiskMedium.Ordinal(), RiskHigh.Ordinal())
	assert.Equal(t, 0, RiskUnknown.Ordinal())
}
