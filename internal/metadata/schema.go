package metadata

import (
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"jobcost/internal/domain/costing"
)

// ExtRefsSchemaName is the registry name of the ext_refs schema.
const ExtRefsSchemaName = "ext_refs"

// RequiredInActualKey lists the meta keys an actual cost set requires.
const RequiredInActualKey = "x-required-in-actual"

// NewReflector returns a reflector that inlines definitions, rejects
// additional properties and writes ids and decimals the way the API does.
func NewReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case idType:
				return &jsonschema.Schema{Type: "string", Format: "uuid"}
			case reflect.TypeOf(decimal.Decimal{}):
				return &jsonschema.Schema{Type: "number"}
			}
			return nil
		},
	}
}

var metaSamples = []costing.Meta{costing.TimeMeta{}, costing.MaterialMeta{}, costing.AdjustMeta{}}

// CostLineSchemas reflects the meta schema of every line kind known to reg,
// keyed by kind, plus the ext_refs schema.
func CostLineSchemas(reg *costing.Registry) map[string]*jsonschema.Schema {
	r := NewReflector()
	out := make(map[string]*jsonschema.Schema, len(metaSamples)+1)

	for _, sample := range metaSamples {
		kind := sample.Kind()
		def, ok := reg.Schema(kind)
		if !ok {
			continue
		}
		s := r.Reflect(sample)
		s.Title = string(kind) + " cost line meta"
		if len(def.RequiredInActual) > 0 {
			s.Extras = map[string]any{RequiredInActualKey: def.RequiredInActual}
		}
		out[string(kind)] = s
	}

	refs := r.Reflect(costing.ExtRefs{})
	refs.Title = "cost line external references"
	refs.Description = "stock_movement_id binds a material line to its consume movement; stock_id is legacy and must be migrated"
	out[ExtRefsSchemaName] = refs
	return out
}

// RegisterCostLineSchemas stores CostLineSchemas(reg) in r.
func RegisterCostLineSchemas(r *Registry, reg *costing.Registry) {
	for name, s := range CostLineSchemas(reg) {
		r.RegisterSchema(name, s)
	}
}

// PropertyNames returns the property names of s in declaration order.
func PropertyNames(s *jsonschema.Schema) []string {
	if s == nil || s.Properties == nil {
		return nil
	}
	names := make([]string, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
