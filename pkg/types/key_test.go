package types

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityKey_ValidateByShape(t *testing.T) {
	id, tenant := uuid.New(), uuid.New()
	d := MustDate("2024-01-15")

	tests := []struct {
		name    string
		shape   KeyShape
		key     EntityKey
		wantErr bool
	}{
		{"tenant ok", ShapeTenant, TenantKey(tenant), false},
		{"tenant with id", ShapeTenant, EntityTenantKey(id, tenant), true},
		{"entity ok", ShapeEntity, EntityKeyOf(id), false},
		{"entity missing id", ShapeEntity, EntityKey{}, true},
		{"entity tenant ok", ShapeEntityTenant, EntityTenantKey(id, tenant), false},
		{"dated ok", ShapeEntityDate, DatedKey(id, d), false},
		{"dated missing date", ShapeEntityDate, EntityKeyOf(id), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate(tt.shape)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEntityKey_FormatParse(t *testing.T) {
	key := DatedKey(uuid.New(), MustDate("2024-02-29"))
	s := key.Format(ShapeEntityDate)

	parsed, err := ParseKey(ShapeEntityDate, s)
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseKey(ShapeEntityDate, key.ID.String())
	assert.Error(t, err)
}

func TestCalculationJob_Comparable(t *testing.T) {
	id := uuid.New()
	a := NewJob(KindTaskSpecificRisk, DatedKey(id, MustDate("2024-01-15")))
	b := NewJob(KindTaskSpecificRisk, DatedKey(id, MustDate("2024-01-15")))
	c := NewJob(KindTaskSpecificRisk, DatedKey(id, MustDate("2024-01-16")))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a.Identity(), b.Identity())

	set := map[CalculationJob]bool{a: true}
	assert.True(t, set[b])
	assert.False(t, set[c])
}

func TestCalculationJob_Validate(t *testing.T) {
	assert.NoError(t, NewJob(KindCrewRisk, EntityKeyOf(uuid.New())).Validate())
	assert.Error(t, NewJob(KindCrewRisk, TenantKey(uuid.New())).Validate())
	assert.Error(t, NewJob("Nope", EntityKeyOf(uuid.New())).Validate())
}

func TestParseJob(t *testing.T) {
	job := NewJob(KindTotalWorkPackageRisk, DatedKey(uuid.New(), MustDate("2024-01-15")))
	parsed, err := ParseJob(string(job.Kind), job.Key.Format(ShapeEntityDate))
	require.NoError(t, err)
	assert.Equal(t, job, parsed)

	_, err = ParseJob("Nope", job.Key.ID.String())
	assert.Error(t, err)
	_, err = ParseJob(string(KindGlobalCrewRisk), "not-a-uuid")
	assert.Error(t, err)
}

func TestAllKinds_HaveSpecs(t *testing.T) {
	tables := map[string]bool{}
	for _, k := range AllKinds() {
		spec, ok := k.Spec()
		require.True(t, ok)
		assert.NotEmpty(t, spec.Shape.Columns(), k)
		assert.False(t, tables[spec.Table], "duplicate table %s", spec.Table)
		tables[spec.Table] = true
	}
}

func TestTriggerEvent_JSON(t *testing.T) {
	ev := UpdateTaskRisk(uuid.New(), MustDate("2024-01-15"))
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"date":"2024-01-15"`)

	var got TriggerEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ev, got)
	assert.NoError(t, got.Validate())
}

func TestTriggerEvent_Validate(t *testing.T) {
	assert.Error(t, TriggerEvent{Type: "Bogus", ID: uuid.New()}.Validate())
	assert.Error(t, TriggerEvent{Type: TriggerUpdateTaskRisk, ID: uuid.New()}.Validate())
	assert.Error(t, NewTrigger(TriggerTaskChanged, uuid.Nil).Validate())
	assert.NoError(t, NewTrigger(TriggerTaskChanged, uuid.New()).Validate())
}
