package metadata

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/registers/stock"
)

func TestCostLineSchemas_MatchRegistryKeys(t *testing.T) {
	reg := costing.DefaultRegistry()
	schemas := CostLineSchemas(reg)
	require.Len(t, schemas, 4)

	for _, kind := range []costing.LineKind{costing.LineTime, costing.LineMaterial, costing.LineAdjust} {
		s, ok := schemas[string(kind)]
		require.True(t, ok, kind)

		def, _ := reg.Schema(kind)
		names := PropertyNames(s)
		sort.Strings(names)
		assert.Equal(t, def.AllowedKeys(), names, kind)
		assert.Equal(t, "object", s.Type)
		assert.Empty(t, s.Required, kind)
	}

	assert.Equal(t, []string{"staff_id", "is_billable"}, schemas["time"].Extras[RequiredInActualKey])
	assert.NotContains(t, schemas["material"].Extras, RequiredInActualKey)
}

func TestCostLineSchemas_JSON(t *testing.T) {
	schemas := CostLineSchemas(costing.DefaultRegistry())

	raw, err := json.Marshal(schemas["time"])
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, false, doc["additionalProperties"])

	props := doc["properties"].(map[string]any)
	staff := props["staff_id"].(map[string]any)
	assert.Equal(t, "string", staff["type"])
	assert.Equal(t, "uuid", staff["format"])
	assert.Equal(t, "number", props["rate_multiplier"].(map[string]any)["type"])
	assert.Equal(t, "date", props["date"].(map[string]any)["format"])

	raw, err = json.Marshal(schemas["material"])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	source := doc["properties"].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, []any{"stock", "purchase", "manual"}, source["enum"])

	assert.Equal(t, []string{"stock_movement_id", "stock_id", "external"}, PropertyNames(schemas[ExtRefsSchemaName]))
}

func TestInspect(t *testing.T) {
	def := Inspect(stock.Stock{}, "Stock", TypeRegister)
	assert.Equal(t, "Stock", def.Name)

	byName := map[string]FieldDef{}
	for _, f := range def.Fields {
		byName[f.Name] = f
	}
	require.Contains(t, byName, "id")
	assert.Equal(t, TypeReference, byName["id"].Type)
	assert.True(t, byName["id"].ReadOnly)
	assert.Equal(t, TypeQuantity, byName["quantity"].Type)
	assert.Equal(t, TypeMoney, byName["unitCost"].Type)
	assert.Equal(t, "stock", byName["sourceParentStockId"].ReferenceType)
	assert.Equal(t, "po_line", byName["sourcePoLineId"].ReferenceType)
	assert.True(t, byName["sourcePoLineId"].Optional)

	order := Inspect(&po.PurchaseOrder{}, "", TypeDocument)
	assert.Equal(t, "PurchaseOrder", order.Name)
	require.Len(t, order.TableParts, 1)
	assert.Equal(t, "lines", order.TableParts[0].Name)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(EntityDef{Name: "Stock"})
	r.Register(EntityDef{Name: "CostLine"})
	RegisterCostLineSchemas(r, costing.DefaultRegistry())

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "CostLine", list[0].Name)

	_, ok := r.Schema("material")
	assert.True(t, ok)
	assert.Len(t, r.Schemas(), 4)
}

func TestSnake(t *testing.T) {
	assert.Equal(t, "po_line", snake("POLine"))
	assert.Equal(t, "item_code", snake("ItemCode"))
	assert.Equal(t, "stock", snake("Stock"))
}
