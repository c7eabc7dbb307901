// Package postgres implements metricstore.Store on Postgres with one table
// per metric kind.
package postgres

import (
	"fmt"
	"strings"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

const parametersDDL = `
CREATE TABLE IF NOT EXISTS rm_parameters (
    tenant_id   UUID NOT NULL,
    name        TEXT NOT NULL,
    params      JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, name)
);
`

var columnTypes = map[string]string{
	"entity_id": "UUID NOT NULL",
	"tenant_id": "UUID NOT NULL",
	"date":      "DATE NOT NULL",
}

// tableDDL renders the CREATE TABLE statement for one kind.
func tableDDL(spec types.KindSpec) string {
	cols := spec.Shape.Columns()
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", spec.Table)
	for _, c := range cols {
		fmt.Fprintf(&b, "    %s %s,\n", c, columnTypes[c])
	}
	b.WriteString("    calculated_at TIMESTAMPTZ NOT NULL,\n")
	b.WriteString("    value DOUBLE PRECISION NOT NULL,\n")
	b.WriteString("    stddev DOUBLE PRECISION,\n")
	b.WriteString("    inputs JSONB,\n")
	b.WriteString("    params JSONB,\n")
	fmt.Fprintf(&b, "    PRIMARY KEY (%s, calculated_at)\n);\n", strings.Join(cols, ", "))
	return b.String()
}

// schemaDDL renders the full schema for every known kind.
func schemaDDL() string {
	var b strings.Builder
	for _, k := range types.AllKinds() {
		spec, _ := k.Spec()
		b.WriteString(tableDDL(spec))
	}
	b.WriteString(parametersDDL)
	return b.String()
}

// keyPredicate renders "col1 = $n AND col2 = $n+1" for the kind's key columns
// and returns the matching arguments.
func keyPredicate(spec types.KindSpec, key types.EntityKey, first int) (string, []any) {
	cols := spec.Shape.Columns()
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		conds[i] = fmt.Sprintf("%s = $%d", c, first+i)
		switch c {
		case "entity_id":
			args[i] = key.ID
		case "tenant_id":
			args[i] = key.TenantID
		case "date":
			args[i] = key.Date.Time()
		}
	}
	return strings.Join(conds, " AND "), args
}
