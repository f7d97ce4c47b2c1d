package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaCoversPipelineTables(t *testing.T) {
	ddl := Schema()
	for _, table := range []string{
		"production_orders",
		"subcontract_shipments",
		"shipment_payments",
		"stock_movements",
		"stock_balances",
		"idempotency_keys",
		"audit_logs",
	} {
		require.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS "+table, table)
	}
	require.False(t, strings.Contains(ddl, "DROP "), "schema must stay idempotent and non destructive")
}
