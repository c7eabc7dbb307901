package postgres

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func TestTableDDL_DatedKind(t *testing.T) {
	spec, _ := types.KindTaskSpecificRisk.Spec()
	ddl := tableDDL(spec)

	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS rm_task_specific_risk")
	assert.Contains(t, ddl, "entity_id UUID NOT NULL")
	assert.Contains(t, ddl, "date DATE NOT NULL")
	assert.Contains(t, ddl, "PRIMARY KEY (entity_id, date, calculated_at)")
	assert.NotContains(t, ddl, "tenant_id")
}

func TestSchemaDDL_CoversAllKinds(t *testing.T) {
	ddl := schemaDDL()
	for _, k := range types.AllKinds() {
		spec, _ := k.Spec()
		assert.Contains(t, ddl, spec.Table)
	}
	assert.Equal(t, len(types.AllKinds())+1, strings.Count(ddl, "CREATE TABLE"))
}

func TestKeyPredicate(t *testing.T) {
	spec, _ := types.KindTaskSpecificSafetyClimateMultiplier.Spec()
	key := types.EntityTenantKey(uuid.New(), uuid.New())

	pred, args := keyPredicate(spec, key, 3)
	assert.Equal(t, "entity_id = $3 AND tenant_id = $4", pred)
	assert.Equal(t, []any{key.ID, key.TenantID}, args)
}
